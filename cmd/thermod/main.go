package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"thermod/internal/collector"
	"thermod/internal/config"
	"thermod/internal/device"
	"thermod/internal/events"
	"thermod/internal/mqtt"
	"thermod/internal/probe"
	"thermod/internal/retry"
	"thermod/internal/status"
	"thermod/internal/storage"
)

func main() {
	envFile := flag.String("env", ".env", "Path to env file (missing file is ignored)")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(*envFile)
	if err != nil {
		writeFatalStatus(config.DefaultStatusFile, err)
		logger.Fatalf("Configuration error: %v", err)
	}

	policy := retry.Policy{Base: cfg.RetryBase(), Max: cfg.RetryMax()}
	eventLog := events.NewStore(200)

	svc := device.NewService(device.Options{
		Mock:    cfg.Mock(),
		Token:   cfg.Token(),
		Secret:  cfg.Secret(),
		BaseURL: cfg.APIURL(),
		Policy:  policy,
		Events:  eventLog,
		Logger:  logger,
	})
	if cfg.Mock() {
		logger.Printf("[main] Running in mock mode, no vendor API calls will be made")
	}
	logger.Printf("[main] Configured devices: %s", strings.Join(cfg.DeviceNames(), ", "))

	sink, err := buildSink(cfg, logger)
	if err != nil {
		writeFatalStatus(cfg.StatusFile(), err)
		logger.Fatalf("Storage error: %v", err)
	}
	defer sink.Close()

	devices := make([]device.Device, 0, len(cfg.Devices()))
	for _, d := range cfg.Devices() {
		devices = append(devices, device.Device{Name: d.Name, Address: d.Address})
	}

	scheduler := collector.NewScheduler(collector.SchedulerOptions{
		Service:          svc,
		Sink:             sink,
		Prober:           probe.New(cfg.HubAddr(), svc, logger),
		Status:           status.NewWriter(cfg.StatusFile()),
		Events:           eventLog,
		Logger:           logger,
		Devices:          devices,
		Interval:         cfg.Interval(),
		FailureThreshold: cfg.FailureThreshold(),
		ProbeInterval:    cfg.ProbeInterval(),
		Policy:           policy,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Run(ctx); err != nil {
		logger.Fatalf("Scheduler failed: %v", err)
	}
	logger.Printf("[main] Shutdown complete")
}

// writeFatalStatus leaves an error record for status readers before a
// fatal startup exit. Best effort; the exit happens either way.
func writeFatalStatus(path string, cause error) {
	_ = status.NewWriter(path).Write(&status.DaemonStatus{
		Status:     status.StateError,
		LastUpdate: time.Now(),
		Error:      cause.Error(),
	})
}

// buildSink assembles the readings sink: the configured store, plus the
// MQTT publisher fanned in when a broker is configured.
func buildSink(cfg *config.Config, logger *log.Logger) (storage.Sink, error) {
	var primary storage.Sink
	var err error

	switch cfg.Sink() {
	case config.SinkInflux:
		primary, err = storage.NewInfluxSink(storage.InfluxConfig{
			URL:    cfg.InfluxURL(),
			Token:  cfg.InfluxToken(),
			Org:    cfg.InfluxOrg(),
			Bucket: cfg.InfluxBucket(),
		})
	default:
		primary, err = storage.NewBoltStore(cfg.DBPath())
	}
	if err != nil {
		return nil, err
	}

	if cfg.MQTTBroker() == "" {
		return primary, nil
	}

	client, err := mqtt.New(mqtt.Config{
		Broker:   cfg.MQTTBroker(),
		ClientID: cfg.MQTTClientID(),
		Username: cfg.MQTTUsername(),
		Password: cfg.MQTTPassword(),
		Prefix:   cfg.MQTTPrefix(),
		UseTLS:   cfg.MQTTUseTLS(),
	}, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := mqtt.NewReadingPublisher(client, logger)
	if err != nil {
		// Readings must keep flowing to storage even when the broker
		// is down at startup.
		logger.Printf("[main] MQTT publishing disabled: %v", err)
		return primary, nil
	}

	return storage.NewMultiSink(primary, publisher), nil
}
