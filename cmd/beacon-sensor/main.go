// Command beacon-sensor advertises a BLE service, samples an analog sensor and
// notifies the connected peer when the button is held long enough.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/beacon-sensor/internal/adc"
	"github.com/sweeney/beacon-sensor/internal/config"
	"github.com/sweeney/beacon-sensor/internal/gatt"
	"github.com/sweeney/beacon-sensor/internal/gpio"
	"github.com/sweeney/beacon-sensor/internal/logic"
	"github.com/sweeney/beacon-sensor/internal/mqtt"
	"github.com/sweeney/beacon-sensor/internal/session"
	"github.com/sweeney/beacon-sensor/internal/status"
	"github.com/sweeney/beacon-sensor/internal/transport"
	"github.com/sweeney/beacon-sensor/internal/web"
)

// ReasonStackFailure is the SHUTDOWN reason when the radio stack cannot start.
const ReasonStackFailure = "STACK_FAILURE"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
	hci        int
	httpAddr   string
	broker     string
	printState bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "beacon-sensor",
		Short:         "BLE beacon with a long-press notification button",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return err
			}

			log := newLogger(cfg.LogLevel)
			if err := run(cfg, opts.printState, log); err != nil {
				log.WithError(err).Error("fatal")
				return err
			}
			return nil
		},
	}

	bindFlags(cmd, &opts)

	return cmd
}

func bindFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath,
		"config file (defaults are used if it does not exist)")
	cmd.Flags().StringVarP(&opts.logLevel, "loglevel", "l", "info",
		"log level to use")
	cmd.Flags().IntVarP(&opts.hci, "hci", "i", 0,
		"HCI index for the controller")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "",
		`HTTP status address ("off" disables)`)
	cmd.Flags().StringVar(&opts.broker, "broker", "",
		`MQTT broker address ("off" disables)`)
	cmd.Flags().BoolVar(&opts.printState, "print-state", false,
		"print button and sensor state and exit")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("loglevel") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("hci") {
		cfg.HCI.DeviceID = opts.hci
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = disableable(opts.httpAddr)
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = disableable(opts.broker)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func disableable(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func run(cfg *config.Config, printState bool, log *logrus.Logger) error {
	button, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Pin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer button.Close()

	sampler, err := adc.NewRealSampler(cfg.ADC.Device, cfg.ADC.Channel, cfg.ADC.Scale)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}

	if printState {
		return printCurrentState(os.Stdout, button, sampler)
	}

	ids, err := cfg.BeaconUUIDs()
	if err != nil {
		return err
	}
	reg, err := gatt.NewBeaconRegistry(ids, log.WithField("component", "gatt"))
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), trackerConfig(cfg))

	bleOpts := transport.DefaultBLEOptions()
	bleOpts.DeviceID = cfg.HCI.DeviceID
	bleOpts.Name = cfg.DeviceName
	bleOpts.AdvertisedUUID16 = cfg.AdvertisedUUID16
	bleOpts.OnPeer = tracker.SetPeer
	bt := transport.NewBLE(reg, bleOpts, log.WithField("component", "ble"))
	defer bt.Close()

	d := &daemon{
		cfg:       cfg,
		log:       log,
		transport: bt,
		registry:  reg,
		sampler:   sampler,
		button:    button,
		tracker:   tracker,
	}

	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log.WithField("component", "mqtt"))
		defer p.Close()
		d.publisher = p
		d.mqttStatus = p
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, log.WithField("component", "web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTP.Addr).Info("http status server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.run(ctx, watchSignals(ctx, cancel, sigCh, log))
}

func printCurrentState(w io.Writer, button gpio.Reader, sampler adc.Sampler) error {
	pressed, err := button.Read()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	value, err := sampler.Sample()
	if err != nil {
		return fmt.Errorf("read adc: %w", err)
	}
	fmt.Fprintf(w, "button: %s, adc: %d\n", buttonString(pressed), value)
	return nil
}

func buttonString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

// watchSignals cancels ctx on the first signal and reports its name.
func watchSignals(ctx context.Context, cancel context.CancelFunc, sig <-chan os.Signal, log logrus.FieldLogger) <-chan string {
	reasons := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.WithField("signal", s).Info("shutting down")
			reasons <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return reasons
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func trackerConfig(cfg *config.Config) status.Config {
	return status.Config{
		DeviceName:  cfg.DeviceName,
		DelayMs:     cfg.Loop.Delay.Milliseconds(),
		Threshold:   cfg.Loop.DebounceThreshold,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	}
}

// daemon wires the session supervisor to its collaborators.
type daemon struct {
	cfg        *config.Config
	log        logrus.FieldLogger
	transport  transport.Transport
	registry   *gatt.Registry
	sampler    adc.Sampler
	button     gpio.Reader
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// run publishes STARTUP, supervises sessions until shutdown or a fatal stack
// error, and publishes SHUTDOWN. Only the fatal error is returned.
func (d *daemon) run(ctx context.Context, reasons <-chan string) error {
	now := d.now
	if now == nil {
		now = time.Now
	}

	d.publishStatus(mqtt.EventStartup, "", now())
	d.log.WithFields(logrus.Fields{
		"name":      d.cfg.DeviceName,
		"delay":     d.cfg.Loop.Delay,
		"threshold": d.cfg.Loop.DebounceThreshold,
		"broker":    d.cfg.MQTT.Broker,
		"heartbeat": d.cfg.Heartbeat,
	}).Info("started")

	loop := &session.Loop{
		Sampler:       d.sampler,
		Button:        d.button,
		Stats:         logic.NewStats(now()),
		Log:           d.log,
		Publisher:     d.publisher,
		MQTTStatus:    d.mqttStatus,
		Tracker:       d.tracker,
		Delay:         d.cfg.Loop.Delay,
		Threshold:     d.cfg.Loop.DebounceThreshold,
		SampleRetries: d.cfg.Loop.SampleRetries,
		Heartbeat:     d.cfg.Heartbeat,
		Sleep:         d.sleep,
		Now:           d.now,
	}
	sup := &session.Supervisor{
		Transport: d.transport,
		Registry:  d.registry,
		Loop:      loop,
		Log:       d.log,
	}

	err := sup.Run(ctx)
	if session.IsShutdown(err) {
		reason := "UNKNOWN"
		select {
		case r := <-reasons:
			reason = r
		default:
		}
		d.publishStatus(mqtt.EventShutdown, reason, now())
		return nil
	}

	d.publishStatus(mqtt.EventShutdown, ReasonStackFailure, now())
	return err
}

func (d *daemon) publishStatus(event, reason string, t time.Time) {
	if d.publisher == nil {
		return
	}
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.WithError(err).WithField("event", event).Warn("publish system event")
		return
	}
	d.log.WithField("event", event).Info("published system event")
}
