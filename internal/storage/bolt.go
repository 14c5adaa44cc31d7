package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// readingsBucket holds one sub-bucket per location, keyed by
	// nanosecond timestamp so cursor order is chronological.
	readingsBucket = "readings"
)

// BoltStore is a bbolt-backed Sink. It also exposes the read-side
// accessors used by the external maintenance and backup paths.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the readings database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(readingsBucket)); err != nil {
			return fmt.Errorf("failed to create readings bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Persist implements Sink. Timestamps key the record; two readings for
// the same location in the same nanosecond overwrite, which cannot
// happen at collection cadence.
func (s *BoltStore) Persist(ctx context.Context, r Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingsBucket))
		if bucket == nil {
			return fmt.Errorf("readings bucket not found")
		}

		locBucket, err := bucket.CreateBucketIfNotExists([]byte(r.Location))
		if err != nil {
			return fmt.Errorf("failed to create location bucket: %w", err)
		}

		key := []byte(fmt.Sprintf("%020d", r.Timestamp.UnixNano()))
		return locBucket.Put(key, data)
	})
}

// ReadingsSince returns all readings for a location with a timestamp at
// or after since, ordered oldest to newest.
func (s *BoltStore) ReadingsSince(location string, since time.Time) ([]Reading, error) {
	var readings []Reading

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingsBucket))
		if bucket == nil {
			return fmt.Errorf("readings bucket not found")
		}

		locBucket := bucket.Bucket([]byte(location))
		if locBucket == nil {
			// No data for this location yet.
			return nil
		}

		min := []byte(fmt.Sprintf("%020d", since.UnixNano()))
		cursor := locBucket.Cursor()
		for k, v := cursor.Seek(min); k != nil; k, v = cursor.Next() {
			var r Reading
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip corrupted entries
			}
			readings = append(readings, r)
		}
		return nil
	})

	return readings, err
}

// LastReading returns the most recent reading for a location, or
// ErrNotFound when none exists.
func (s *BoltStore) LastReading(location string) (*Reading, error) {
	var reading *Reading

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingsBucket))
		if bucket == nil {
			return fmt.Errorf("readings bucket not found")
		}

		locBucket := bucket.Bucket([]byte(location))
		if locBucket == nil {
			return ErrNotFound
		}

		k, v := locBucket.Cursor().Last()
		if k == nil {
			return ErrNotFound
		}

		var r Reading
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal reading: %w", err)
		}
		reading = &r
		return nil
	})

	return reading, err
}

// Locations lists all locations with stored readings.
func (s *BoltStore) Locations() ([]string, error) {
	var locations []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingsBucket))
		if bucket == nil {
			return fmt.Errorf("readings bucket not found")
		}

		return bucket.ForEachBucket(func(k []byte) error {
			locations = append(locations, string(k))
			return nil
		})
	})

	return locations, err
}

// TrimBefore deletes readings older than cutoff across all locations
// and returns the number removed. Retention is an external maintenance
// concern; the daemon never calls this itself.
func (s *BoltStore) TrimBefore(cutoff time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(readingsBucket))
		if bucket == nil {
			return fmt.Errorf("readings bucket not found")
		}

		max := []byte(fmt.Sprintf("%020d", cutoff.UnixNano()))
		return bucket.ForEachBucket(func(loc []byte) error {
			locBucket := bucket.Bucket(loc)
			cursor := locBucket.Cursor()

			var stale [][]byte
			for k, _ := cursor.First(); k != nil && string(k) < string(max); k, _ = cursor.Next() {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}

			for _, k := range stale {
				if err := locBucket.Delete(k); err != nil {
					return fmt.Errorf("failed to delete old reading: %w", err)
				}
				removed++
			}
			return nil
		})
	})

	return removed, err
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
