package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurement is the InfluxDB measurement name for sensor readings.
const measurement = "reading"

// InfluxConfig holds the InfluxDB connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes readings to InfluxDB using the blocking write API.
// One point per reading keeps write latency visible to the cycle that
// produced it.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates an InfluxDB-backed Sink.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("influxdb url and token are required")
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(10))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// Persist implements Sink.
func (s *InfluxSink) Persist(ctx context.Context, r Reading) error {
	if err := s.writeAPI.WritePoint(ctx, buildPoint(r)); err != nil {
		return fmt.Errorf("failed to write reading point: %w", err)
	}
	return nil
}

func buildPoint(r Reading) *write.Point {
	tags := map[string]string{
		"location": r.Location,
	}

	fields := map[string]interface{}{
		"temperature": r.Temperature,
	}
	if r.Humidity != nil {
		fields["humidity"] = *r.Humidity
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurement, tags, fields, ts)
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
