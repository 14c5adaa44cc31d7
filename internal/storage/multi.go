package storage

import (
	"context"
	"errors"
)

// MultiSink fans a reading out to several sinks. Every sink is
// attempted even when an earlier one fails; the errors are joined so
// the caller can log them without losing any.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one. A single sink is returned
// unwrapped.
func NewMultiSink(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &MultiSink{sinks: sinks}
}

// Persist implements Sink.
func (m *MultiSink) Persist(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Persist(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
