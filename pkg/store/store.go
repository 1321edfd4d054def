package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for the requested poll.
// An absent record is a valid state, not a fault.
var ErrNotFound = errors.New("cache record not found")

// ErrInvalidRecord rejects writes that would corrupt the cache keyspace.
var ErrInvalidRecord = errors.New("invalid cache record")

// Store is the local poll cache. Implementations are safe for concurrent
// use; writes are last-writer-wins per poll id, no transactions.
type Store interface {
	// Get returns the record for pollID, or an error wrapping ErrNotFound.
	Get(ctx context.Context, pollID uint64) (*CacheRecord, error)
	// GetAll returns every record ordered by creation time, then poll id.
	GetAll(ctx context.Context) ([]CacheRecord, error)
	// Put upserts the record. Records with poll id 0 are rejected with
	// ErrInvalidRecord: 0 means "unresolved" and must never be persisted.
	Put(ctx context.Context, rec *CacheRecord) error
	// Ping reports backend reachability.
	Ping(ctx context.Context) error
	Close() error
}

func validate(rec *CacheRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if rec.PollID == 0 {
		return fmt.Errorf("%w: poll id 0 is reserved for unresolved creations", ErrInvalidRecord)
	}
	return nil
}
