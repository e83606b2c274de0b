// Package status provides a thread-safe status tracker for the beacon daemon.
// It is read by the HTTP handlers and by the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/beacon-sensor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	DeviceName  string
	DelayMs     int64
	Threshold   int
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	DebounceState logic.State
	Counter       int
	Session       int
	Active        bool // session running: advertising or connected
	Peer          bool // a central is connected
	Subscribed    bool
	LastSample    int
	SampleOK      bool
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Loop is the per-iteration state reported by the session loop.
type Loop struct {
	DebounceState logic.State
	Counter       int
	Subscribed    bool
	LastSample    int
	SampleOK      bool
	Counts        logic.EventCounts
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			DebounceState: logic.StateIdle,
			Counter:       cfg.Threshold,
			StartTime:     startTime,
			Config:        cfg,
		},
	}
}

// Update records the loop state. Called on every iteration.
func (t *Tracker) Update(l Loop) {
	t.mu.Lock()
	t.snap.DebounceState = l.DebounceState
	t.snap.Counter = l.Counter
	t.snap.Subscribed = l.Subscribed
	t.snap.Counts = l.Counts
	if l.SampleOK {
		t.snap.LastSample = l.LastSample
	}
	t.snap.SampleOK = l.SampleOK
	t.mu.Unlock()
}

// SetSession marks session n as started or ended. A session starts when
// advertising does, so active does not imply a connected peer.
func (t *Tracker) SetSession(n int, active bool) {
	t.mu.Lock()
	t.snap.Session = n
	t.snap.Active = active
	if !active {
		t.snap.Peer = false
		t.snap.Subscribed = false
	}
	t.mu.Unlock()
}

// SetPeer records a central connecting or dropping.
func (t *Tracker) SetPeer(connected bool) {
	t.mu.Lock()
	t.snap.Peer = connected
	if !connected {
		t.snap.Subscribed = false
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
