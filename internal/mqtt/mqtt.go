// Package mqtt mirrors beacon activity to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/beacon-sensor/internal/logic"
)

// Topic is the MQTT topic for button events.
const Topic = "beacon/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "beacon/sensor/system"

// System event names.
const (
	EventStartup      = "STARTUP"
	EventShutdown     = "SHUTDOWN"
	EventHeartbeat    = "HEARTBEAT"
	EventSessionStart = "SESSION_START"
	EventDisconnected = "DISCONNECTED"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a button event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, session start, heartbeat, ...).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	Session    int
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the button event message.
type Payload struct {
	Beacon BeaconPayload `json:"beacon"`
}

// BeaconPayload contains the button event details.
type BeaconPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Session   int    `json:"session"`
	Delivered bool   `json:"delivered"`
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(Payload{
		Beacon: BeaconPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Session:   event.Session,
			Delivered: event.Delivered,
		},
	})
}

// SystemPayload is the message for system events that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Session   int    `json:"session,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Session:   event.Session,
		},
	})
}
