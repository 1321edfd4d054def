// Package reconcile merges authoritative remote poll records with the local
// cache and writes the union back, so option names and provenance survive
// across syncs while vote state always reflects the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/store"
	"go.uber.org/zap"
)

// PollReader is the slice of the rpc client the merger needs.
type PollReader interface {
	PollByID(ctx context.Context, id uint64) (*rpc.PollRecord, error)
	PollCount(ctx context.Context) (rpc.QueryResult, error)
}

// Merger reconciles single records and full batches. Safe for concurrent
// use; the store arbitrates concurrent write-backs per poll id (last writer
// wins).
type Merger struct {
	client PollReader
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewMerger(client PollReader, st store.Store, logger *zap.Logger) *Merger {
	return &Merger{
		client: client,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Merge fetches the remote record for pollID, combines it with the local
// cache row and persists the union. A remote failure (transport or
// not-found) returns a nil view: callers must not display a poll the ledger
// does not confirm. The write-back is best-effort; a persist failure is
// logged and the in-memory view is still returned.
func (m *Merger) Merge(ctx context.Context, pollID uint64) (*MergedView, error) {
	remote, err := m.client.PollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	local, err := m.store.Get(ctx, pollID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Cache read failed, merging without local row",
			zap.Uint64("pollId", pollID),
			zap.Error(err))
	}

	stamp := m.now().UnixMilli()
	view := buildView(remote, local, stamp)

	if err := m.store.Put(ctx, unionRecord(remote, local, stamp)); err != nil {
		m.logger.Warn("Failed to persist merged cache row",
			zap.Uint64("pollId", pollID),
			zap.Error(err))
	}
	return view, nil
}

// MergeAll resolves the aggregate count and merges ids 1..count in order.
// A failure on one id is logged and that id is excluded; only an unusable
// count fails the whole batch.
func (m *Merger) MergeAll(ctx context.Context) ([]MergedView, error) {
	res, err := m.client.PollCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("query poll count: %w", err)
	}
	count, err := res.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode poll count: %w", err)
	}

	views := make([]MergedView, 0, count)
	for id := uint64(1); id <= count; id++ {
		view, err := m.Merge(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn("Skipping poll during batch merge",
				zap.Uint64("pollId", id),
				zap.Error(err))
			continue
		}
		views = append(views, *view)
	}
	return views, nil
}
