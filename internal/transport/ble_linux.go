//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/gatt"
)

// BLE is a peripheral on a local HCI controller.
type BLE struct {
	reg  *gatt.Registry
	opts BLEOptions
	log  logrus.FieldLogger

	newDevice func(opts ...ble.Option) (ble.Device, error)
	dev       ble.Device

	mu      sync.Mutex
	current *bleSession
}

// NewBLE creates the transport. The stack is brought up by the first StartSession.
func NewBLE(reg *gatt.Registry, opts BLEOptions, log logrus.FieldLogger) *BLE {
	return &BLE{
		reg:  reg,
		opts: opts,
		log:  log,
		newDevice: func(opts ...ble.Option) (ble.Device, error) {
			return linux.NewDevice(opts...)
		},
	}
}

// StartSession brings the stack up on first use, then starts advertising.
func (b *BLE) StartSession() (Session, StartStatus, error) {
	if b.dev == nil {
		dev, err := b.newDevice(
			ble.OptDeviceID(b.opts.DeviceID),
			ble.OptConnectHandler(b.connected),
			ble.OptDisconnectHandler(b.disconnected),
		)
		if err != nil {
			return nil, StartStatus{}, fmt.Errorf("%w: open hci%d: %v", ErrStackInit, b.opts.DeviceID, err)
		}
		if err := dev.SetServices([]*ble.Service{b.service()}); err != nil {
			dev.Stop()
			return nil, StartStatus{}, fmt.Errorf("%w: register services: %v", ErrStackInit, err)
		}
		b.dev = dev
		b.log.WithField("hci", b.opts.DeviceID).Info("ble stack initialized")
	}

	ctx, cancel := context.WithCancel(context.Background())
	advErr := make(chan error, 1)
	s := &bleSession{
		queueSession: newQueueSession(b.opts.QueueDepth, b.opts.Batch, b.log),
		advStopped:   make(chan struct{}),
	}
	s.onClose = func() {
		b.mu.Lock()
		if b.current == s {
			b.current = nil
		}
		b.mu.Unlock()

		// The stack clears its advertising enable flag when the old
		// advertiser returns; that must happen before the next session
		// turns advertising back on.
		cancel()
		select {
		case <-s.advStopped:
		case <-time.After(b.opts.StopTimeout):
			b.log.WithField("timeout", b.opts.StopTimeout).Warn("advertising did not stop in time")
		}
	}

	b.mu.Lock()
	b.current = s
	b.mu.Unlock()

	go func() {
		defer close(s.advStopped)
		advErr <- b.dev.AdvertiseNameAndServices(ctx, b.opts.Name, ble.UUID16(b.opts.AdvertisedUUID16))
	}()

	var status StartStatus
	select {
	case err := <-advErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			status.Advertising = fmt.Errorf("advertise: %w", err)
		}
	case <-time.After(b.opts.AdvertiseSettle):
		b.log.WithField("name", b.opts.Name).Info("started advertising")
	}
	return s, status, nil
}

// Close shuts the stack down.
func (b *BLE) Close() error {
	if b.dev == nil {
		return nil
	}
	return b.dev.Stop()
}

// connected runs on the HCI event goroutine.
func (b *BLE) connected(e evt.LEConnectionComplete) {
	if e.Status() != 0 {
		b.log.WithField("status", fmt.Sprintf("0x%02x", e.Status())).Warn("connection attempt failed")
		return
	}
	b.log.WithField("handle", e.ConnectionHandle()).Info("peer connected")
	if b.opts.OnPeer != nil {
		b.opts.OnPeer(true)
	}
}

// disconnected runs on the HCI event goroutine, so it must not wait on the
// session queue.
func (b *BLE) disconnected(e evt.DisconnectionComplete) {
	b.log.WithFields(logrus.Fields{
		"handle": e.ConnectionHandle(),
		"reason": fmt.Sprintf("0x%02x", e.Reason()),
	}).Info("peer disconnected")
	if b.opts.OnPeer != nil {
		b.opts.OnPeer(false)
	}
	if s := b.session(); s != nil {
		go s.submit(request{kind: reqDisconnect})
	}
}

func (b *BLE) session() *bleSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *BLE) service() *ble.Service {
	svc := ble.NewService(bleUUID(b.reg.Service()))
	for _, c := range b.reg.Characteristics() {
		c := c
		ch := svc.NewCharacteristic(bleUUID(c.UUID))
		if c.Props.Has(gatt.PropRead) {
			ch.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				b.handleRead(c, req, rsp)
			}))
		}
		if c.Props.Has(gatt.PropWrite) {
			ch.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				b.handleWrite(c, req, rsp)
			}))
		}
		if c.Props.Has(gatt.PropNotify) {
			ch.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				b.handleNotify(c, req, n)
			}))
		}
	}
	return svc
}

func (b *BLE) handleRead(c gatt.Characteristic, req ble.Request, rsp ble.ResponseWriter) {
	s := b.session()
	if s == nil {
		rsp.SetStatus(ble.ErrUnlikely)
		return
	}
	s.watch(req.Conn())

	resp, ok := s.call(request{kind: reqRead, handle: c.ValueHandle, offset: req.Offset()})
	if !ok {
		rsp.SetStatus(ble.ErrUnlikely)
		return
	}
	if resp.err != nil {
		rsp.SetStatus(attStatus(resp.err))
		return
	}
	rsp.Write(resp.value)
}

func (b *BLE) handleWrite(c gatt.Characteristic, req ble.Request, rsp ble.ResponseWriter) {
	s := b.session()
	if s == nil {
		rsp.SetStatus(ble.ErrUnlikely)
		return
	}
	s.watch(req.Conn())

	data := append([]byte(nil), req.Data()...)
	resp, ok := s.call(request{kind: reqWrite, handle: c.ValueHandle, offset: req.Offset(), data: data})
	if !ok {
		rsp.SetStatus(ble.ErrUnlikely)
		return
	}
	if resp.err != nil {
		rsp.SetStatus(attStatus(resp.err))
	}
}

// handleNotify runs for as long as the peer keeps notifications enabled.
func (b *BLE) handleNotify(c gatt.Characteristic, req ble.Request, n ble.Notifier) {
	s := b.session()
	if s == nil {
		return
	}
	s.watch(req.Conn())

	if !s.submit(request{kind: reqSubscribe, handle: c.ControlHandle, notifier: n}) {
		return
	}
	select {
	case <-n.Context().Done():
	case <-s.done:
		return
	}
	s.submit(request{kind: reqUnsubscribe, handle: c.ControlHandle, notifier: n})
}

// bleSession adds disconnect tracking to the request queue.
type bleSession struct {
	*queueSession

	// advStopped is closed once the advertiser has returned.
	advStopped chan struct{}

	mu   sync.Mutex
	conn ble.Conn
}

// watch starts a disconnect watcher for the first connection seen. The HCI
// disconnect handler normally ends the session first; this covers stacks
// that drop the event.
func (s *bleSession) watch(conn ble.Conn) {
	if conn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return
	}
	s.conn = conn
	s.log.WithField("peer", conn.RemoteAddr().String()).Debug("watching peer connection")

	go func() {
		select {
		case <-conn.Disconnected():
			s.submit(request{kind: reqDisconnect})
		case <-s.done:
		}
	}()
}

func attStatus(err error) ble.ATTError {
	switch {
	case errors.Is(err, gatt.ErrInvalidHandle):
		return ble.ErrInvalidHandle
	case errors.Is(err, gatt.ErrInvalidOffset):
		return ble.ErrInvalidOffset
	case errors.Is(err, gatt.ErrReadNotPermitted):
		return ble.ErrReadNotPerm
	case errors.Is(err, gatt.ErrWriteNotPermitted):
		return ble.ErrWriteNotPerm
	default:
		return ble.ErrUnlikely
	}
}

func bleUUID(u uuid.UUID) ble.UUID {
	return ble.MustParse(u.String())
}
