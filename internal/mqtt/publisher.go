package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"thermod/internal/storage"
)

// ReadingPublisher forwards stored readings to the MQTT broker. It
// satisfies storage.Sink, so it can sit next to the database sink in a
// fan-out. Discovery configs are published lazily, once per location.
type ReadingPublisher struct {
	client *Client
	logger *log.Logger

	mu         sync.Mutex
	discovered map[string]bool
}

// NewReadingPublisher connects the client and announces availability.
func NewReadingPublisher(client *Client, logger *log.Logger) (*ReadingPublisher, error) {
	if err := client.Connect(); err != nil {
		return nil, err
	}
	if err := client.PublishRetained(AvailabilityTopic, "online"); err != nil {
		if logger != nil {
			logger.Printf("[mqtt] Failed to publish availability: %v", err)
		}
	}
	return &ReadingPublisher{
		client:     client,
		logger:     logger,
		discovered: make(map[string]bool),
	}, nil
}

// Persist publishes the reading to its location state topic, emitting
// Home Assistant discovery configs for locations seen for the first
// time.
func (p *ReadingPublisher) Persist(ctx context.Context, r storage.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.ensureDiscovered(r); err != nil && p.logger != nil {
		p.logger.Printf("[mqtt] Discovery publish for %q failed: %v", r.Location, err)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	if err := p.client.Publish(StateTopic(r.Location), payload); err != nil {
		return fmt.Errorf("failed to publish reading for %q: %w", r.Location, err)
	}
	return nil
}

// Close announces offline and disconnects from the broker.
func (p *ReadingPublisher) Close() error {
	if err := p.client.PublishRetained(AvailabilityTopic, "offline"); err != nil && p.logger != nil {
		p.logger.Printf("[mqtt] Failed to publish offline status: %v", err)
	}
	p.client.Disconnect()
	return nil
}

func (p *ReadingPublisher) ensureDiscovered(r storage.Reading) error {
	p.mu.Lock()
	done := p.discovered[r.Location]
	p.mu.Unlock()
	if done {
		return nil
	}

	configs := []SensorConfig{TemperatureSensor(r.Location)}
	if r.Humidity != nil {
		configs = append(configs, HumiditySensor(r.Location))
	}

	for _, cfg := range configs {
		payload, err := cfg.DiscoveryPayload(p.client.Prefix())
		if err != nil {
			return err
		}
		if err := p.client.PublishRaw(cfg.DiscoveryTopic(), payload); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.discovered[r.Location] = true
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Printf("[mqtt] Published discovery configs for %q", r.Location)
	}
	return nil
}
