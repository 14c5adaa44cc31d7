// Package device abstracts access to remote temperature/humidity sensors.
package device

import (
	"context"
	"log"
	"time"

	"thermod/internal/events"
	"thermod/internal/retry"
)

// Status is one full sample from a device. Temperature and Humidity are
// nil when the device reported no value. Extra carries vendor fields
// (battery, firmware version) that the collector does not interpret.
type Status struct {
	Temperature *float64
	Humidity    *float64
	Extra       map[string]interface{}
}

// Stats are cumulative counters maintained by a service for the
// daemon's health record.
type Stats struct {
	RateLimitRetries int64
	SessionRebuilds  int64
}

// Service is the device-access capability set. Implementations return
// nil pointers for absent samples and classify failures with the
// sentinel errors in this package.
type Service interface {
	// InitDevice verifies that a device address is known to the vendor.
	// Retrying rate-limited initialization is the caller's concern.
	InitDevice(ctx context.Context, address string) error

	// ReadTemperature returns the current temperature in °C, or nil
	// when the device reported none.
	ReadTemperature(ctx context.Context, address string) (*float64, error)

	// ReadHumidity returns the current relative humidity in %, or nil
	// when the device reported none.
	ReadHumidity(ctx context.Context, address string) (*float64, error)

	// ReadStatus returns the full device status in one call.
	ReadStatus(ctx context.Context, address string) (*Status, error)

	// Ping performs a minimal vendor API call, distinct from a sensor
	// read, to confirm cloud reachability.
	Ping(ctx context.Context) error

	// Stats returns the service's cumulative counters.
	Stats() Stats
}

// Options configures service construction.
type Options struct {
	// Mock selects the synthetic service instead of the live client.
	Mock bool

	// Live client settings, ignored in mock mode.
	Token   string
	Secret  string
	BaseURL string
	Timeout time.Duration

	// Policy drives the per-call rate-limit backoff.
	Policy retry.Policy

	// Events receives session rebuild and rate-limit events (optional).
	Events *events.Store

	Logger *log.Logger
}

// NewService selects the live or mock variant. The choice is a pure
// function of the Mock flag, evaluated once at process start.
func NewService(opts Options) Service {
	if opts.Mock {
		return NewMock(opts.Logger)
	}
	return NewSwitchBot(opts)
}
