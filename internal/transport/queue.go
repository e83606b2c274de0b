package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

// Queue defaults.
const (
	DefaultQueueDepth = 32
	DefaultBatch      = 16
)

type requestKind int

const (
	reqRead requestKind = iota
	reqWrite
	reqSubscribe
	reqUnsubscribe
	reqDisconnect
)

// notifier pushes values to a subscribed peer.
type notifier interface {
	Write(b []byte) (int, error)
}

type request struct {
	kind     requestKind
	handle   gatt.Handle
	offset   int
	data     []byte
	notifier notifier
	reply    chan response
}

type response struct {
	value []byte
	err   error
}

// queueSession turns stack callbacks, which run on stack goroutines, into
// requests answered by ServicePending on the loop goroutine.
type queueSession struct {
	requests chan request
	done     chan struct{}
	batch    int
	log      logrus.FieldLogger

	closeOnce sync.Once
	onClose   func()

	// Loop goroutine only.
	notifier notifier
}

func newQueueSession(depth, batch int, log logrus.FieldLogger) *queueSession {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	return &queueSession{
		requests: make(chan request, depth),
		done:     make(chan struct{}),
		batch:    batch,
		log:      log,
	}
}

// submit enqueues req. It returns false if the session has been closed.
func (s *queueSession) submit(req request) bool {
	select {
	case s.requests <- req:
		return true
	case <-s.done:
		return false
	}
}

// call enqueues req and waits for the loop to answer it.
func (s *queueSession) call(req request) (response, bool) {
	req.reply = make(chan response, 1)
	if !s.submit(req) {
		return response{}, false
	}
	select {
	case resp := <-req.reply:
		return resp, true
	case <-s.done:
		return response{}, false
	}
}

func (s *queueSession) ServicePending(srv *gatt.Server, n *gatt.Notification) (Outcome, error) {
	var errs []error

	if n != nil {
		if err := s.deliver(n); err != nil {
			errs = append(errs, err)
		}
	}

	for i := 0; i < s.batch; i++ {
		var req request
		select {
		case req = <-s.requests:
		default:
			return Continue, errors.Join(errs...)
		}

		switch req.kind {
		case reqRead:
			v, err := srv.Read(req.handle, req.offset)
			req.reply <- response{value: v, err: err}

		case reqWrite:
			err := srv.Write(req.handle, req.offset, req.data)
			req.reply <- response{err: err}

		case reqSubscribe:
			s.notifier = req.notifier
			if err := srv.Write(req.handle, 0, gatt.EnableNotifications()); err != nil {
				errs = append(errs, fmt.Errorf("subscribe: %w", err))
			}
			s.log.WithField("handle", req.handle).Info("peer subscribed")

		case reqUnsubscribe:
			if s.notifier == req.notifier {
				s.notifier = nil
			}
			if err := srv.Write(req.handle, 0, gatt.DisableNotifications()); err != nil {
				errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
			}
			s.log.WithField("handle", req.handle).Info("peer unsubscribed")

		case reqDisconnect:
			s.notifier = nil
			return Disconnected, errors.Join(errs...)
		}
	}
	return Continue, errors.Join(errs...)
}

func (s *queueSession) deliver(n *gatt.Notification) error {
	if s.notifier == nil {
		return fmt.Errorf("%w: handle 0x%04x", ErrNoSubscriber, n.Handle)
	}
	if _, err := s.notifier.Write(n.Value); err != nil {
		return fmt.Errorf("notify handle 0x%04x: %w", n.Handle, err)
	}
	return nil
}

func (s *queueSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
