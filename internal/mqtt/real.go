package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/beacon-sensor/internal/logic"
)

// DefaultOutboxSize is the number of messages kept while the broker is unreachable.
const DefaultOutboxSize = 64

// EventOffline is published by the broker as the last will.
const EventOffline = "OFFLINE"

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in an outbox and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    logrus.FieldLogger

	mu  sync.Mutex
	box *outbox
}

// NewRealPublisher creates a publisher for the given broker. It does not wait
// for the first connection; paho keeps retrying in the background.
func NewRealPublisher(broker, clientID string, log logrus.FieldLogger) *RealPublisher {
	p := &RealPublisher{
		log: log,
		box: newOutbox(DefaultOutboxSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline, Reason: "connection lost"})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt: connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends a button event. QoS 0, not retained.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(pending{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event. QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(pending{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		if p.box.add(msg) && p.box.dropped == 1 {
			p.log.Warnf("mqtt: outbox full (%d messages), dropping oldest", DefaultOutboxSize)
		}
		p.mu.Unlock()
		return nil
	}
	return p.publish(msg)
}

func (p *RealPublisher) publish(msg pending) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.box.flush()
	p.mu.Unlock()

	if len(msgs) == 0 && dropped == 0 {
		return
	}
	p.log.WithFields(logrus.Fields{"replayed": len(msgs), "dropped": dropped}).Info("mqtt: reconnected, replaying outbox")

	for _, msg := range msgs {
		if err := p.publish(msg); err != nil {
			p.log.WithError(err).Warn("mqtt: replay failed")
		}
	}
}
