// Package logic contains the pure button and bookkeeping logic of the beacon.
// This package has NO external dependencies (no GPIO, BLE, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State is the debounce state of the button.
type State string

const (
	StateIdle      State = "IDLE"
	StateHolding   State = "HOLDING"
	StateConfirmed State = "CONFIRMED"
)

// EventType represents a button event.
type EventType string

const (
	EventPressConfirmed EventType = "PRESS_CONFIRMED"
)

// Event represents a confirmed long press to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Session   int
	// Delivered is true when a notification was handed to the transport,
	// false when the peer was not subscribed.
	Delivered bool
}

// EventCounts tracks the number of each outcome since startup.
type EventCounts struct {
	Presses        int
	Notified       int
	Suppressed     int
	Sessions       int
	SampleFailures int
	ServiceErrors  int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
