// Package status persists the daemon's health record for external readers.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the daemon lifecycle state reported in the status record.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// StaleFactor is the multiple of the collection interval after which
// readers must treat a status record as stale regardless of its state.
const StaleFactor = 5

// Connectivity is the result of the last connectivity probe.
type Connectivity struct {
	HubReachable bool      `json:"hub_reachable"`
	APIReachable bool      `json:"api_reachable"`
	CheckedAt    time.Time `json:"checked_at"`
}

// DaemonStatus is the single durable health record. It is overwritten
// after every scheduler cycle and state transition; the daemon is its
// sole writer.
type DaemonStatus struct {
	Running              bool          `json:"running"`
	Status               State         `json:"status"`
	StartedAt            time.Time     `json:"started_at"`
	LastUpdate           time.Time     `json:"last_update"`
	UpdateInterval       int           `json:"update_interval"` // seconds
	IterationCount       int           `json:"iteration_count"`
	DeviceCount          int           `json:"device_count"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	RateLimitRetryCount  int64         `json:"rate_limit_retry_count"`
	LastSuccessfulRead   *time.Time    `json:"last_successful_reading,omitempty"`
	Devices              []string      `json:"devices"`
	Error                string        `json:"error,omitempty"`
	Connectivity         *Connectivity `json:"connectivity,omitempty"`
}

// Stale reports whether the record is too old to trust. The interval is
// taken from the record itself so readers need no extra configuration.
func (s *DaemonStatus) Stale(now time.Time) bool {
	if s.LastUpdate.IsZero() {
		return true
	}
	interval := time.Duration(s.UpdateInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return now.Sub(s.LastUpdate) > StaleFactor*interval
}

// Writer writes the status record to a well-known path.
type Writer struct {
	path string
}

// NewWriter creates a Writer for the given file path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the status file location.
func (w *Writer) Path() string {
	return w.path
}

// Write persists the record atomically (temp file + rename) so readers
// never observe a partially written file.
func (w *Writer) Write(st *DaemonStatus) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp status file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close status file: %w", err)
	}

	if err := os.Rename(tmp.Name(), w.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// Read loads a status record from path. Used by external collaborators
// and tests; the daemon itself only writes.
func Read(path string) (*DaemonStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var st DaemonStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("invalid status file format: %w", err)
	}
	return &st, nil
}
