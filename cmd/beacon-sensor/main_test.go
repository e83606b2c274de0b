package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"

	"github.com/sweeney/beacon-sensor/internal/adc"
	"github.com/sweeney/beacon-sensor/internal/config"
	"github.com/sweeney/beacon-sensor/internal/gatt"
	"github.com/sweeney/beacon-sensor/internal/gpio"
	"github.com/sweeney/beacon-sensor/internal/mqtt"
	"github.com/sweeney/beacon-sensor/internal/status"
	"github.com/sweeney/beacon-sensor/internal/transport"
)

func parseFlags(t *testing.T, args ...string) (*cobra.Command, options) {
	t.Helper()
	cmd := &cobra.Command{}
	var opts options
	bindFlags(cmd, &opts)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, opts
}

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cmd, opts := parseFlags(t, "--config", filepath.Join(t.TempDir(), "none.yaml"))

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DeviceName != "Esp32" {
		t.Errorf("DeviceName: got %q, want Esp32", cfg.DeviceName)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want info", cfg.LogLevel)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "log_level: warn\nhci:\n  device_id: 1\nmqtt:\n  broker: tcp://file:1883\nhttp:\n  addr: \":8080\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cmd, opts := parseFlags(t, "--config", path, "--loglevel", "debug", "--hci", "2", "--broker", "off")

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want debug", cfg.LogLevel)
	}
	if cfg.HCI.DeviceID != 2 {
		t.Errorf("HCI.DeviceID: got %d, want 2", cfg.HCI.DeviceID)
	}
	if cfg.MQTT.Broker != "" {
		t.Errorf("MQTT.Broker: got %q, want disabled", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr: got %q, want file value :8080", cfg.HTTP.Addr)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cmd, opts := parseFlags(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--loglevel", "chatty")

	_, err := loadConfig(cmd, opts)
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	if got := newLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("level: got %v, want debug", got)
	}
	if got := newLogger("bogus").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("level: got %v, want info fallback", got)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("got %q, want SIGINT", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("got %q, want SIGTERM", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("got %q, want UNKNOWN", got)
	}
}

func TestWatchSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log, _ := test.NewNullLogger()

	sig := make(chan os.Signal, 1)
	reasons := watchSignals(ctx, cancel, sig, log)
	sig <- syscall.SIGTERM

	select {
	case r := <-reasons:
		if r != "SIGTERM" {
			t.Errorf("reason: got %q, want SIGTERM", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no reason reported")
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestPrintCurrentState(t *testing.T) {
	var buf bytes.Buffer
	err := printCurrentState(&buf, gpio.NewFakeReader([]bool{true}), adc.NewFakeSampler(adc.Reading{Value: 812}))
	if err != nil {
		t.Fatalf("printCurrentState: %v", err)
	}
	if got := buf.String(); got != "button: PRESSED, adc: 812\n" {
		t.Errorf("output: got %q", got)
	}

	buf.Reset()
	err = printCurrentState(&buf, gpio.NewFakeReader([]bool{false}), adc.NewFakeSampler(adc.Reading{Fail: true}))
	if !errors.Is(err, adc.ErrTransient) {
		t.Errorf("expected transient adc error, got %v", err)
	}
}

func newTestDaemon(t *testing.T, tr transport.Transport, button gpio.Reader) (*daemon, *mqtt.FakePublisher) {
	t.Helper()
	log, _ := test.NewNullLogger()
	reg, err := gatt.NewBeaconRegistry(gatt.DefaultBeaconUUIDs(), log)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Loop.DebounceThreshold = 3
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	pub := mqtt.NewFakePublisher()

	return &daemon{
		cfg:        cfg,
		log:        log,
		transport:  tr,
		registry:   reg,
		sampler:    adc.NewFakeSampler(adc.Reading{Value: 100}),
		button:     button,
		publisher:  pub,
		mqttStatus: pub,
		tracker:    status.NewTracker(start, trackerConfig(cfg)),
		now:        func() time.Time { return clock },
		sleep: func(ctx context.Context, d time.Duration) error {
			clock = clock.Add(d)
			return ctx.Err()
		},
	}, pub
}

func systemReason(t *testing.T, payload []byte) string {
	t.Helper()
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	return sj.Status.Reason
}

func TestDaemonFatalStackError(t *testing.T) {
	sess := transport.NewFakeSession(transport.Idle(3)...)
	d, pub := newTestDaemon(t, transport.NewFake(sess), gpio.NewFakeReader([]bool{false}))

	err := d.run(context.Background(), make(chan string))
	if !errors.Is(err, transport.ErrStackInit) {
		t.Fatalf("expected ErrStackInit, got %v", err)
	}

	want := []string{mqtt.EventStartup, mqtt.EventSessionStart, mqtt.EventDisconnected, mqtt.EventShutdown}
	got := pub.SystemEventNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("system events: got %v, want %v", got, want)
	}
	last, _ := pub.LastSystemEvent()
	if last.Reason != ReasonStackFailure {
		t.Errorf("shutdown reason: got %q, want %q", last.Reason, ReasonStackFailure)
	}
	if !last.Retained {
		t.Error("shutdown event should be retained")
	}
	if r := systemReason(t, last.RawPayload); r != ReasonStackFailure {
		t.Errorf("payload reason: got %q", r)
	}
	if retained, ok := pub.Retained(mqtt.TopicSystem); !ok || systemReason(t, retained) != ReasonStackFailure {
		t.Error("broker should retain the shutdown status")
	}
}

func TestDaemonShutdownOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reasons := make(chan string, 1)

	steps := transport.Idle(10)
	steps[4].Do = func() {
		reasons <- "SIGTERM"
		cancel()
	}
	sess := transport.NewFakeSession(steps...)
	d, pub := newTestDaemon(t, transport.NewFake(sess), gpio.NewFakeReader(gpio.Held(10)))

	if err := d.run(ctx, reasons); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !sess.Closed {
		t.Error("session should be closed on shutdown")
	}
	names := pub.SystemEventNames()
	if names[len(names)-1] != mqtt.EventShutdown {
		t.Fatalf("last event: got %v", names)
	}
	last, _ := pub.LastSystemEvent()
	if last.Reason != "SIGTERM" {
		t.Errorf("shutdown reason: got %q, want SIGTERM", last.Reason)
	}
	if len(pub.Events) != 1 {
		t.Errorf("press events: got %d, want 1", len(pub.Events))
	} else if pub.Events[0].Delivered {
		t.Error("press without subscriber should not be delivered")
	}
}

func TestDaemonWithoutPublisher(t *testing.T) {
	sess := transport.NewFakeSession(transport.Idle(2)...)
	d, _ := newTestDaemon(t, transport.NewFake(sess), gpio.NewFakeReader([]bool{false}))
	d.publisher = nil
	d.mqttStatus = nil

	err := d.run(context.Background(), make(chan string))
	if !errors.Is(err, transport.ErrStackInit) {
		t.Fatalf("expected ErrStackInit, got %v", err)
	}
	if sess.Calls != 3 {
		t.Errorf("session calls: got %d, want 3", sess.Calls)
	}
	if snap := d.tracker.Snapshot(); snap.Counts.Sessions != 1 {
		t.Errorf("sessions: got %d, want 1", snap.Counts.Sessions)
	}
}
