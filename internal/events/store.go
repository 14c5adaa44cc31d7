// Package events keeps a bounded in-memory log of collector activity.
package events

import (
	"sync"
	"time"
)

// EventType classifies a collector event.
type EventType string

const (
	// Cycle events
	EventCycleCompleted EventType = "cycle_completed"
	EventCycleFailed    EventType = "cycle_failed"

	// Device events
	EventDeviceReadFailed EventType = "device_read_failed"
	EventDeviceInitFailed EventType = "device_init_failed"
	EventSessionRebuilt   EventType = "session_rebuilt"
	EventRateLimited      EventType = "rate_limited"

	// Daemon events
	EventDaemonStarted EventType = "daemon_started"
	EventDaemonStopped EventType = "daemon_stopped"
	EventProbeFailed   EventType = "probe_failed"
	EventPersistFailed EventType = "persist_failed"
)

// Event is a single entry in the collector's activity log.
type Event struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Store holds events in memory with a fixed capacity (ring buffer).
// Safe for concurrent use, though the daemon only writes from the
// scheduler loop.
type Store struct {
	mu      sync.RWMutex
	events  []Event
	maxSize int
	nextID  int64
}

// NewStore creates a new event store with the specified max capacity.
func NewStore(maxSize int) *Store {
	return &Store{
		events:  make([]Event, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends a new event, evicting the oldest when at capacity.
func (s *Store) Add(eventType EventType, device, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	event := Event{
		ID:        s.nextID,
		Type:      eventType,
		Timestamp: time.Now(),
		Device:    device,
		Details:   details,
	}

	if len(s.events) >= s.maxSize {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)
}

// GetAll returns all events (newest first).
func (s *Store) GetAll() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, len(s.events))
	for i, e := range s.events {
		result[len(s.events)-1-i] = e
	}
	return result
}

// GetLast returns the last N events (newest first).
func (s *Store) GetLast(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.events) {
		n = len(s.events)
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		result[i] = s.events[len(s.events)-1-i]
	}
	return result
}

// GetSince returns events newer than the given ID (newest first).
func (s *Store) GetSince(lastID int64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID > lastID {
			result = append(result, s.events[i])
		} else {
			break
		}
	}
	return result
}

// Count returns the number of retained events.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// LastID returns the ID of the most recent event.
func (s *Store) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}
