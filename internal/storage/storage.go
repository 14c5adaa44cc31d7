package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no reading matches a query.
	ErrNotFound = errors.New("reading not found")
)

// Reading is one validated sample from a sensor device. Readings are
// append-only: created once per successful device read per cycle and
// never mutated. Humidity is nil when the device reported none.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
}

// Sink persists readings. A persist failure is logged by the caller and
// never aborts a collection cycle.
type Sink interface {
	// Persist stores one reading. Readings are eventually consistent
	// for external readers after Persist returns nil.
	Persist(ctx context.Context, r Reading) error

	// Close releases the sink's resources.
	Close() error
}
