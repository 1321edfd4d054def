package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps the cache in process memory. Default backend for the
// one-shot CLI and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uint64]CacheRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[uint64]CacheRecord{}}
}

func (s *MemoryStore) Get(_ context.Context, pollID uint64) (*CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[pollID]
	if !ok {
		return nil, fmt.Errorf("poll %d: %w", pollID, ErrNotFound)
	}
	out := rec.Clone()
	return &out, nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CacheRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *CacheRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.PollID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// sortRecords orders by creation time then poll id, the listing order every
// backend provides.
func sortRecords(recs []CacheRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].PollID < recs[j].PollID
	})
}
