package mqtt

import (
	"sync"

	"github.com/sweeney/beacon-sensor/internal/logic"
)

// FakePublisher records what would have gone to the broker. Messages are
// routed to the same topics, QoS and retain flags as RealPublisher, and the
// last retained message per topic is kept the way a broker would keep it.
type FakePublisher struct {
	mu sync.Mutex

	// Events and Payloads are the button events, in publish order.
	Events   []logic.Event
	Payloads [][]byte

	// SystemEvents and SystemPayloads are the lifecycle events.
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// PublishError and PublishSystemError fail the matching call when set.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool

	sent     []pending
	retained map[string][]byte
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{retained: make(map[string][]byte)}
}

// Publish records a button event on Topic.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	f.record(pending{topic: Topic, payload: payload})
	return nil
}

// PublishSystem records a lifecycle event on TopicSystem.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	f.record(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

func (f *FakePublisher) record(msg pending) {
	f.sent = append(f.sent, msg)
	if msg.retained {
		if f.retained == nil {
			f.retained = make(map[string][]byte)
		}
		f.retained[msg.topic] = msg.payload
	}
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// LastSystemEvent returns the most recent lifecycle event.
func (f *FakePublisher) LastSystemEvent() (SystemEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SystemEvents) == 0 {
		return SystemEvent{}, false
	}
	return f.SystemEvents[len(f.SystemEvents)-1], true
}

// Topics returns the topic of every message in publish order.
func (f *FakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	topics := make([]string, len(f.sent))
	for i, m := range f.sent {
		topics[i] = m.topic
	}
	return topics
}

// Retained returns the payload a broker would hand a new subscriber on topic.
func (f *FakePublisher) Retained(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.retained[topic]
	return p, ok
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected returns Connected.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset forgets everything, including retained messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events, f.Payloads = nil, nil
	f.SystemEvents, f.SystemPayloads = nil, nil
	f.PublishError, f.PublishSystemError = nil, nil
	f.Closed, f.Connected = false, false
	f.sent = nil
	f.retained = make(map[string][]byte)
}
