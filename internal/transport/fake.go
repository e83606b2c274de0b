package transport

import (
	"fmt"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

// Fake is a scripted Transport for tests.
type Fake struct {
	// Sessions are handed out in order by StartSession. Once exhausted,
	// StartSession fails with ErrStackInit.
	Sessions []*FakeSession

	// StartErr, if set, is returned by StartSession.
	StartErr error

	// Status is returned with every session.
	Status StartStatus

	// Started counts successful StartSession calls.
	Started int
}

// NewFake creates a Fake handing out the given sessions.
func NewFake(sessions ...*FakeSession) *Fake {
	return &Fake{Sessions: sessions}
}

// StartSession returns the next scripted session.
func (f *Fake) StartSession() (Session, StartStatus, error) {
	if f.StartErr != nil {
		return nil, StartStatus{}, f.StartErr
	}
	if f.Started >= len(f.Sessions) {
		return nil, StartStatus{}, fmt.Errorf("%w: fake transport has no more sessions", ErrStackInit)
	}
	s := f.Sessions[f.Started]
	f.Started++
	return s, f.Status, nil
}

// FakeOp is a peer operation. Read is a read request; otherwise Data is written.
type FakeOp struct {
	Read   bool
	Handle gatt.Handle
	Offset int
	Data   []byte
}

// ReadOp returns a read of h at offset.
func ReadOp(h gatt.Handle, offset int) FakeOp {
	return FakeOp{Read: true, Handle: h, Offset: offset}
}

// WriteOp returns a write of data to h at offset.
func WriteOp(h gatt.Handle, offset int, data []byte) FakeOp {
	return FakeOp{Handle: h, Offset: offset, Data: data}
}

// SubscribeOp returns the control write enabling notifications.
func SubscribeOp(control gatt.Handle) FakeOp {
	return WriteOp(control, 0, gatt.EnableNotifications())
}

// UnsubscribeOp returns the control write disabling notifications.
func UnsubscribeOp(control gatt.Handle) FakeOp {
	return WriteOp(control, 0, gatt.DisableNotifications())
}

// FakeStep scripts one ServicePending call.
type FakeStep struct {
	Ops        []FakeOp
	Err        error
	Disconnect bool
	// Do runs before Ops.
	Do func()
}

// FakeResult records how an op was answered.
type FakeResult struct {
	Op    FakeOp
	Value []byte
	Err   error
}

// FakeSession is a scripted Session. When Steps run out, ServicePending
// reports Disconnected.
type FakeSession struct {
	Steps []FakeStep

	Notifications []gatt.Notification
	Results       []FakeResult
	Calls         int
	Closed        bool
}

// NewFakeSession creates a session with the given steps.
func NewFakeSession(steps ...FakeStep) *FakeSession {
	return &FakeSession{Steps: steps}
}

// Idle returns n steps with no peer activity.
func Idle(n int) []FakeStep {
	return make([]FakeStep, n)
}

// ServicePending records n and plays the next step.
func (f *FakeSession) ServicePending(srv *gatt.Server, n *gatt.Notification) (Outcome, error) {
	if n != nil {
		f.Notifications = append(f.Notifications, *n)
	}

	if f.Calls >= len(f.Steps) {
		f.Calls++
		return Disconnected, nil
	}
	step := f.Steps[f.Calls]
	f.Calls++

	if step.Do != nil {
		step.Do()
	}

	for _, op := range step.Ops {
		r := FakeResult{Op: op}
		if op.Read {
			r.Value, r.Err = srv.Read(op.Handle, op.Offset)
		} else {
			r.Err = srv.Write(op.Handle, op.Offset, op.Data)
		}
		f.Results = append(f.Results, r)
	}

	if step.Disconnect {
		return Disconnected, step.Err
	}
	return Continue, step.Err
}

// Close marks the session closed.
func (f *FakeSession) Close() error {
	f.Closed = true
	return nil
}
