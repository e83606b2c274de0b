package transport

import "time"

// BLEOptions configures the HCI peripheral.
type BLEOptions struct {
	// DeviceID is the HCI device index (hci0 = 0).
	DeviceID int
	// Name is the complete local name advertised.
	Name string
	// AdvertisedUUID16 is placed in the 16-bit service UUID list.
	AdvertisedUUID16 uint16
	// QueueDepth bounds requests waiting for the loop.
	QueueDepth int
	// Batch bounds requests handled per ServicePending call.
	Batch int
	// AdvertiseSettle is how long StartSession waits for the stack to
	// reject the advertising setup before reporting success.
	AdvertiseSettle time.Duration
	// StopTimeout bounds how long closing a session waits for the stack to
	// turn advertising off.
	StopTimeout time.Duration
	// OnPeer, if set, is called from the stack goroutine when a central
	// connects (true) or drops (false).
	OnPeer func(connected bool)
}

// DefaultBLEOptions returns the factory settings.
func DefaultBLEOptions() BLEOptions {
	return BLEOptions{
		Name:             "Esp32",
		AdvertisedUUID16: 0x1809,
		QueueDepth:       DefaultQueueDepth,
		Batch:            DefaultBatch,
		AdvertiseSettle:  200 * time.Millisecond,
		StopTimeout:      2 * time.Second,
	}
}
