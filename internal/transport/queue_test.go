package transport

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

type fakeNotifier struct {
	writes [][]byte
	err    error
}

func (f *fakeNotifier) Write(b []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, append([]byte(nil), b...))
	return len(b), nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T) *gatt.Server {
	t.Helper()
	reg, err := gatt.NewBeaconRegistry(gatt.DefaultBeaconUUIDs(), quietLogger())
	require.NoError(t, err)
	return reg.NewServer()
}

func TestQueueReadAnsweredByServicePending(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	srv := newServer(t)
	h := srv.Registry().Characteristic(gatt.Greeting).ValueHandle

	got := make(chan response, 1)
	go func() {
		resp, ok := q.call(request{kind: reqRead, handle: h, offset: 0})
		if ok {
			got <- resp
		}
	}()

	require.Eventually(t, func() bool { return len(q.requests) == 1 }, time.Second, time.Millisecond)

	out, err := q.ServicePending(srv, nil)
	require.NoError(t, err)
	assert.Equal(t, Continue, out)

	select {
	case resp := <-got:
		require.NoError(t, resp.err)
		assert.Equal(t, []byte(gatt.GreetingText), resp.value)
	case <-time.After(time.Second):
		t.Fatal("read was not answered")
	}
}

func TestQueueSubscribeAndNotify(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	srv := newServer(t)
	b := srv.Registry().Characteristic(gatt.Button)
	n := &fakeNotifier{}

	require.True(t, q.submit(request{kind: reqSubscribe, handle: b.ControlHandle, notifier: n}))
	out, err := q.ServicePending(srv, nil)
	require.NoError(t, err)
	assert.Equal(t, Continue, out)
	assert.True(t, srv.Subscribed(gatt.Button))

	note := srv.Notify(gatt.Button, []byte(gatt.NotificationText))
	require.NotNil(t, note)
	_, err = q.ServicePending(srv, note)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("Notification")}, n.writes)

	require.True(t, q.submit(request{kind: reqUnsubscribe, handle: b.ControlHandle, notifier: n}))
	_, err = q.ServicePending(srv, nil)
	require.NoError(t, err)
	assert.False(t, srv.Subscribed(gatt.Button))
	assert.Nil(t, q.notifier)
}

func TestQueueNotifyWithoutSubscriber(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	srv := newServer(t)

	out, err := q.ServicePending(srv, &gatt.Notification{Handle: 7, Value: []byte("x")})
	assert.Equal(t, Continue, out)
	assert.ErrorIs(t, err, ErrNoSubscriber)
}

func TestQueueNotifierErrorIsSoft(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	q.notifier = &fakeNotifier{err: errors.New("link busy")}

	out, err := q.ServicePending(newServer(t), &gatt.Notification{Handle: 7, Value: []byte("x")})
	assert.Equal(t, Continue, out)
	assert.ErrorContains(t, err, "link busy")
}

func TestQueueDisconnect(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	require.True(t, q.submit(request{kind: reqDisconnect}))

	out, err := q.ServicePending(newServer(t), nil)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, out)
}

func TestQueueBatchIsBounded(t *testing.T) {
	q := newQueueSession(8, 2, quietLogger())
	srv := newServer(t)
	h := srv.Registry().Characteristic(gatt.Inbox).ValueHandle

	for i := 0; i < 5; i++ {
		require.True(t, q.submit(request{kind: reqWrite, handle: h, data: []byte{byte(i)}, reply: make(chan response, 1)}))
	}

	_, err := q.ServicePending(srv, nil)
	require.NoError(t, err)
	assert.Len(t, q.requests, 3)

	_, _ = q.ServicePending(srv, nil)
	_, _ = q.ServicePending(srv, nil)
	assert.Empty(t, q.requests)
}

func TestQueueEmptyDoesNotBlock(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	srv := newServer(t)

	done := make(chan struct{})
	go func() {
		q.ServicePending(srv, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServicePending blocked on an empty queue")
	}
}

func TestQueueCloseReleasesCallers(t *testing.T) {
	q := newQueueSession(1, 1, quietLogger())
	closed := false
	q.onClose = func() { closed = true }

	result := make(chan bool, 1)
	go func() {
		_, ok := q.call(request{kind: reqRead, handle: 3})
		result <- ok
	}()

	require.Eventually(t, func() bool { return len(q.requests) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("caller not released by Close")
	}
	assert.True(t, closed)
	assert.False(t, q.submit(request{kind: reqDisconnect}), "queue is full and closed")
}

func TestQueueReadErrorPassedToPeer(t *testing.T) {
	q := newQueueSession(4, 4, quietLogger())
	srv := newServer(t)

	req := request{kind: reqRead, handle: srv.Registry().Characteristic(gatt.Inbox).ValueHandle, reply: make(chan response, 1)}
	require.True(t, q.submit(req))

	_, err := q.ServicePending(srv, nil)
	require.NoError(t, err, "peer errors are not servicing errors")

	resp := <-req.reply
	assert.ErrorIs(t, resp.err, gatt.ErrReadNotPermitted)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
