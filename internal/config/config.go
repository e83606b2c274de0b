// Package config loads the beacon daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/beacon-sensor/internal/adc"
	"github.com/sweeney/beacon-sensor/internal/gatt"
	"github.com/sweeney/beacon-sensor/internal/gpio"
	"github.com/sweeney/beacon-sensor/internal/logic"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/beacon-sensor/config.yaml"

// Config holds all daemon configuration.
type Config struct {
	DeviceName       string        `yaml:"device_name"`
	AdvertisedUUID16 uint16        `yaml:"advertised_uuid16"`
	UUIDs            UUIDConfig    `yaml:"uuids"`
	Button           ButtonConfig  `yaml:"button"`
	ADC              ADCConfig     `yaml:"adc"`
	Loop             LoopConfig    `yaml:"loop"`
	HCI              HCIConfig     `yaml:"hci"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
	HTTP             HTTPConfig    `yaml:"http"`
	Heartbeat        time.Duration `yaml:"heartbeat"`
	LogLevel         string        `yaml:"log_level"`
}

// UUIDConfig holds the 128-bit service and characteristic UUIDs.
type UUIDConfig struct {
	Service  string `yaml:"service"`
	Greeting string `yaml:"greeting"`
	Inbox    string `yaml:"inbox"`
	Button   string `yaml:"button"`
}

// ButtonConfig selects the GPIO line of the push-button.
type ButtonConfig struct {
	Chip string `yaml:"chip"`
	Pin  int    `yaml:"pin"`
}

// ADCConfig selects the IIO channel sampled each iteration.
type ADCConfig struct {
	Device  string `yaml:"device"`
	Channel int    `yaml:"channel"`
	Scale   string `yaml:"scale"` // written to in_voltageN_scale when set
}

// LoopConfig holds session loop timing.
type LoopConfig struct {
	Delay             time.Duration `yaml:"delay"`
	DebounceThreshold int           `yaml:"debounce_threshold"`
	SampleRetries     int           `yaml:"sample_retries"` // 0 retries forever
}

// HCIConfig selects the Bluetooth controller.
type HCIConfig struct {
	DeviceID int `yaml:"device_id"`
}

// MQTTConfig holds telemetry settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig holds status page settings. An empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with the factory values.
func Default() *Config {
	ids := gatt.DefaultBeaconUUIDs()
	return &Config{
		DeviceName:       "Esp32",
		AdvertisedUUID16: gatt.DefaultAdvertisedUUID16,
		UUIDs: UUIDConfig{
			Service:  ids.Service.String(),
			Greeting: ids.Greeting.String(),
			Inbox:    ids.Inbox.String(),
			Button:   ids.Button.String(),
		},
		Button: ButtonConfig{
			Chip: gpio.DefaultChip,
			Pin:  gpio.DefaultPinButton,
		},
		ADC: ADCConfig{
			Device:  adc.DefaultDevice,
			Channel: adc.DefaultChannel,
		},
		Loop: LoopConfig{
			Delay:             500 * time.Millisecond,
			DebounceThreshold: logic.DefaultThreshold,
		},
		MQTT: MQTTConfig{
			ClientID: "beacon-sensor",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if len(c.DeviceName) > 29 {
		return fmt.Errorf("device_name must fit an advertisement (29 bytes), got %d", len(c.DeviceName))
	}

	if _, err := c.BeaconUUIDs(); err != nil {
		return err
	}

	if c.Button.Chip == "" {
		return fmt.Errorf("button.chip must not be empty")
	}
	if c.Button.Pin < 0 {
		return fmt.Errorf("button.pin must be >= 0, got %d", c.Button.Pin)
	}

	if c.ADC.Device == "" {
		return fmt.Errorf("adc.device must not be empty")
	}
	if c.ADC.Channel < 0 {
		return fmt.Errorf("adc.channel must be >= 0, got %d", c.ADC.Channel)
	}

	if c.Loop.Delay <= 0 {
		return fmt.Errorf("loop.delay must be > 0")
	}
	if c.Loop.DebounceThreshold < 1 {
		return fmt.Errorf("loop.debounce_threshold must be >= 1, got %d", c.Loop.DebounceThreshold)
	}
	if c.Loop.SampleRetries < 0 {
		return fmt.Errorf("loop.sample_retries must be >= 0, got %d", c.Loop.SampleRetries)
	}

	if c.HCI.DeviceID < 0 {
		return fmt.Errorf("hci.device_id must be >= 0, got %d", c.HCI.DeviceID)
	}

	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return fmt.Errorf("mqtt.client_id must not be empty when a broker is set")
	}

	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// BeaconUUIDs parses the configured UUIDs.
func (c *Config) BeaconUUIDs() (gatt.BeaconUUIDs, error) {
	var ids gatt.BeaconUUIDs
	fields := []struct {
		name string
		s    string
		dst  *uuid.UUID
	}{
		{"uuids.service", c.UUIDs.Service, &ids.Service},
		{"uuids.greeting", c.UUIDs.Greeting, &ids.Greeting},
		{"uuids.inbox", c.UUIDs.Inbox, &ids.Inbox},
		{"uuids.button", c.UUIDs.Button, &ids.Button},
	}

	seen := make(map[uuid.UUID]string, len(fields))
	for _, f := range fields {
		u, err := uuid.Parse(f.s)
		if err != nil {
			return gatt.BeaconUUIDs{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if other, ok := seen[u]; ok {
			return gatt.BeaconUUIDs{}, fmt.Errorf("%s duplicates %s (%s)", f.name, other, u)
		}
		seen[u] = f.name
		*f.dst = u
	}
	return ids, nil
}
