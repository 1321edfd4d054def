package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/alitto/pond/v2"
)

// ErrPollNotFound marks an authoritative remote miss: the ledger answered
// and no poll exists under the queried identifier.
var ErrPollNotFound = errors.New("poll not found")

// PollByID fetches the authoritative record for one poll.
func (c *HTTPClient) PollByID(ctx context.Context, id uint64) (*PollRecord, error) {
	var rec PollRecord
	if err := c.doJSON(ctx, http.MethodPost, pollByIDPath, QueryPollRequest{PollID: id}, &rec); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("poll %d: %w", id, ErrPollNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

// PollCount queries the aggregate poll counter. The raw envelope is
// returned so callers route it through Decode.
func (c *HTTPClient) PollCount(ctx context.Context) (QueryResult, error) {
	var res QueryResult
	if err := c.doJSON(ctx, http.MethodPost, pollCountPath, nil, &res); err != nil {
		return QueryResult{}, err
	}
	return res, nil
}

// Polls lists every poll the ledger reports, walking all pages.
func (c *HTTPClient) Polls(ctx context.Context) ([]PollRecord, error) {
	return ListPaged[PollRecord](ctx, c, pollsPath, QueryPollsRequest{PageNumber: 1})
}

// PollsRange fetches the records for ids [from, to] with bounded
// parallelism. Missing ids are skipped: export snapshots tolerate sparse
// ranges. Cache reconciliation does not use this path.
func (c *HTTPClient) PollsRange(ctx context.Context, from, to uint64) ([]PollRecord, error) {
	if from == 0 || to < from {
		return nil, fmt.Errorf("invalid poll range [%d, %d]", from, to)
	}
	n := int(to - from + 1)
	out := make([]*PollRecord, n)
	var missed atomic.Int32

	pool := pond.NewPool(c.rangeParallelism, pond.WithQueueSize(n))
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := 0; i < n; i++ {
		idx := i
		id := from + uint64(idx)
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			rec, err := c.PollByID(groupCtx, id)
			if err != nil {
				missed.Add(1)
				return
			}
			out[idx] = rec
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := make([]PollRecord, 0, n-int(missed.Load()))
	for _, r := range out {
		if r != nil {
			res = append(res, *r)
		}
	}
	return res, nil
}

// ChainInfo reports the chain identity used to stamp cache provenance.
func (c *HTTPClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.doJSON(ctx, http.MethodGet, chainInfoPath, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
