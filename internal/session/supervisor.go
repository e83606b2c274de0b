package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/gatt"
	"github.com/sweeney/beacon-sensor/internal/mqtt"
	"github.com/sweeney/beacon-sensor/internal/transport"
)

// Supervisor starts a session, runs the Loop until the peer goes away, and
// starts the next one.
type Supervisor struct {
	Transport transport.Transport
	Registry  *gatt.Registry
	Loop      *Loop
	Log       logrus.FieldLogger
}

// Run returns only when StartSession fails (the error wraps
// transport.ErrStackInit) or when ctx is done (ctx.Err()).
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess, st, err := s.Transport.StartSession()
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}

		n := s.Loop.Stats.RecordSession()
		log := s.Log.WithField("session", n)
		if err := st.Err(); err != nil {
			log.WithError(err).Warn("advertising setup failed, waiting for a peer anyway")
		} else {
			log.Info("advertising")
		}

		// Fresh attribute state: subscriptions never outlive a session
		srv := s.Registry.NewServer()
		if s.Loop.Tracker != nil {
			s.Loop.Tracker.SetSession(n, true)
		}
		s.Loop.publishSystem(mqtt.SystemEvent{
			Timestamp: s.Loop.now(),
			Event:     mqtt.EventSessionStart,
			Session:   n,
		})

		runErr := s.Loop.Run(ctx, n, sess, srv)

		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("close session")
		}
		if s.Loop.Tracker != nil {
			s.Loop.Tracker.SetSession(n, false)
		}

		if runErr != nil {
			return runErr
		}
		s.Loop.publishSystem(mqtt.SystemEvent{
			Timestamp: s.Loop.now(),
			Event:     mqtt.EventDisconnected,
			Session:   n,
		})
	}
}
