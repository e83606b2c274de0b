// Package transport connects the session loop to the radio stack.
//
// The stack is opaque: a Transport hands out Sessions, and a Session reports
// pending attribute operations only when the loop asks for them. Whatever
// goroutines the stack runs, attribute state is only touched from
// ServicePending, on the caller's goroutine.
package transport

import (
	"errors"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

// ErrStackInit is returned by StartSession when the radio stack cannot be
// brought up. It is not recoverable.
var ErrStackInit = errors.New("transport: stack initialization failed")

// ErrNoSubscriber is reported when a notification is handed over but no
// peer notifier is attached.
var ErrNoSubscriber = errors.New("transport: no subscriber for notification")

// Outcome is the result of one servicing pass.
type Outcome int

const (
	Continue Outcome = iota
	Disconnected
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// StartStatus carries recoverable failures from session setup.
type StartStatus struct {
	// Advertising is set when advertising parameters, payload or enable
	// were rejected by the stack.
	Advertising error
}

// Err returns the combined soft failures, or nil.
func (s StartStatus) Err() error {
	return s.Advertising
}

// Transport produces sessions.
type Transport interface {
	// StartSession initializes the stack if needed and starts advertising.
	// A non-nil error wraps ErrStackInit.
	StartSession() (Session, StartStatus, error)
}

// Session is one connection lifetime, from advertising to disconnect.
type Session interface {
	// ServicePending delivers n (if not nil) and services one bounded batch
	// of pending attribute operations against srv. It never blocks waiting
	// for new work.
	ServicePending(srv *gatt.Server, n *gatt.Notification) (Outcome, error)

	// Close stops advertising and releases the session.
	Close() error
}
