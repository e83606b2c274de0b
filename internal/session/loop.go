// Package session runs the beacon: one Loop per connection, restarted by a
// Supervisor until the stack fails or the host shuts down.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/adc"
	"github.com/sweeney/beacon-sensor/internal/gatt"
	"github.com/sweeney/beacon-sensor/internal/gpio"
	"github.com/sweeney/beacon-sensor/internal/logic"
	"github.com/sweeney/beacon-sensor/internal/mqtt"
	"github.com/sweeney/beacon-sensor/internal/status"
	"github.com/sweeney/beacon-sensor/internal/transport"
)

// DefaultDelay is the fixed pause between sampling and the button check.
const DefaultDelay = 500 * time.Millisecond

// Loop drives one session: sample, wait, debounce the button, notify, and
// service the stack, once per iteration.
type Loop struct {
	Sampler adc.Sampler
	Button  gpio.Reader
	Stats   *logic.Stats
	Log     logrus.FieldLogger

	// Publisher, MQTTStatus and Tracker are optional.
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker

	Delay     time.Duration
	Threshold int
	// SampleRetries caps retries of a failed conversion. 0 retries forever.
	SampleRetries int
	// Heartbeat is the interval between HEARTBEAT events; 0 disables them.
	Heartbeat time.Duration

	// Sleep and Now are injectable for tests. Sleep returns early with
	// ctx.Err() if ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Run executes iterations until the session reports Disconnected (nil) or
// ctx is done (ctx.Err()). The debouncer starts idle on every call.
func (l *Loop) Run(ctx context.Context, n int, sess transport.Session, srv *gatt.Server) error {
	sleep := l.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := l.Log.WithField("session", n)
	debouncer := logic.NewDebouncer(l.Threshold)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		value, err := l.sample(ctx, log)
		sampleOK := err == nil
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("sensor unavailable, continuing without a reading")
		} else {
			log.WithField("value", value).Debug("adc sample")
		}

		if err := sleep(ctx, l.Delay); err != nil {
			return err
		}

		pressed, err := l.Button.Read()
		if err != nil {
			log.WithError(err).Warn("button read failed, treating as released")
			pressed = false
		}

		var notification *gatt.Notification
		if debouncer.Step(pressed) {
			notification = srv.Notify(gatt.Button, []byte(gatt.NotificationText))
			l.confirmed(log, n, notification != nil, l.now())
		}

		outcome, err := sess.ServicePending(srv, notification)
		if err != nil {
			l.Stats.RecordServiceError()
			log.WithError(err).Warn("servicing pending operations")
		}

		l.report(debouncer, srv, value, sampleOK, l.now())

		if outcome == transport.Disconnected {
			log.Info("peer disconnected")
			return nil
		}
	}
}

// sample performs one conversion, retrying failures. Each failure is logged
// and counted. With a retry cap, exhaustion wraps adc.ErrSensorUnavailable.
func (l *Loop) sample(ctx context.Context, log logrus.FieldLogger) (int, error) {
	for attempt := 1; ; attempt++ {
		v, err := l.Sampler.Sample()
		if err == nil {
			return v, nil
		}
		l.Stats.RecordSampleFailure()
		log.WithError(err).WithField("attempt", attempt).Warn("adc sample failed")

		if l.SampleRetries > 0 && attempt > l.SampleRetries {
			return 0, fmt.Errorf("%w after %d attempts: %v", adc.ErrSensorUnavailable, attempt, err)
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
}

func (l *Loop) confirmed(log logrus.FieldLogger, n int, delivered bool, t time.Time) {
	l.Stats.RecordPress(delivered)
	if delivered {
		log.Info("long press confirmed, notifying peer")
	} else {
		log.Info("long press confirmed, peer not subscribed")
	}

	if l.Publisher == nil {
		return
	}
	event := logic.Event{
		Timestamp: t,
		Type:      logic.EventPressConfirmed,
		Session:   n,
		Delivered: delivered,
	}
	if err := l.Publisher.Publish(event); err != nil {
		// Don't end the session on publish failure
		log.WithError(err).Warn("publish press event")
	}
}

func (l *Loop) report(d *logic.Debouncer, srv *gatt.Server, value int, sampleOK bool, t time.Time) {
	if l.Tracker != nil {
		l.Tracker.Update(status.Loop{
			DebounceState: d.State(),
			Counter:       d.Counter(),
			Subscribed:    srv.Subscribed(gatt.Button),
			LastSample:    value,
			SampleOK:      sampleOK,
			Counts:        l.Stats.Counts(),
		})
		if l.MQTTStatus != nil {
			l.Tracker.SetMQTTConnected(l.MQTTStatus.IsConnected())
		}
	}

	hb := l.Stats.CheckHeartbeat(t, l.Heartbeat)
	if hb == nil {
		return
	}
	l.Log.WithFields(logrus.Fields{
		"uptime":     hb.Uptime,
		"presses":    hb.Counts.Presses,
		"notified":   hb.Counts.Notified,
		"suppressed": hb.Counts.Suppressed,
		"sessions":   hb.Counts.Sessions,
	}).Info("heartbeat")

	event := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: mqtt.EventHeartbeat}
	if l.Tracker != nil {
		event.RawPayload = status.FormatStatusEvent(l.Tracker.Snapshot(), mqtt.EventHeartbeat, "")
	}
	l.publishSystem(event)
}

func (l *Loop) publishSystem(event mqtt.SystemEvent) {
	if l.Publisher == nil {
		return
	}
	if err := l.Publisher.PublishSystem(event); err != nil {
		l.Log.WithError(err).WithField("event", event.Event).Warn("publish system event")
	}
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsShutdown reports whether err is a host shutdown rather than a failure.
func IsShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
