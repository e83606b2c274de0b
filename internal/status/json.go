package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Button        ButtonJSON  `json:"button"`
	Session       SessionJSON `json:"session"`
	Sensor        SensorJSON  `json:"sensor"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"event_counts"`
	Config        ConfigJSON  `json:"config"`
}

// ButtonJSON reports the debounce machine.
type ButtonJSON struct {
	State   string `json:"state"`
	Counter int    `json:"counter"`
}

// SessionJSON reports the current BLE session.
type SessionJSON struct {
	Number     int  `json:"number"`
	Active     bool `json:"active"`
	Connected  bool `json:"connected"`
	Subscribed bool `json:"subscribed"`
}

// SensorJSON reports the last ADC conversion.
type SensorJSON struct {
	Value int  `json:"value"`
	OK    bool `json:"ok"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses        int `json:"presses"`
	Notified       int `json:"notified"`
	Suppressed     int `json:"suppressed"`
	Sessions       int `json:"sessions"`
	SampleFailures int `json:"sample_failures"`
	ServiceErrors  int `json:"service_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceName  string `json:"device_name"`
	DelayMs     int64  `json:"delay_ms"`
	Threshold   int    `json:"threshold"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.DebounceState)
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		Button: ButtonJSON{State: state, Counter: snap.Counter},
		Session: SessionJSON{
			Number:     snap.Session,
			Active:     snap.Active,
			Connected:  snap.Peer,
			Subscribed: snap.Subscribed,
		},
		Sensor:        SensorJSON{Value: snap.LastSample, OK: snap.SampleOK},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:        snap.Counts.Presses,
			Notified:       snap.Counts.Notified,
			Suppressed:     snap.Counts.Suppressed,
			Sessions:       snap.Counts.Sessions,
			SampleFailures: snap.Counts.SampleFailures,
			ServiceErrors:  snap.Counts.ServiceErrors,
		},
		Config: ConfigJSON{
			DeviceName:  snap.Config.DeviceName,
			DelayMs:     snap.Config.DelayMs,
			Threshold:   snap.Config.Threshold,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
