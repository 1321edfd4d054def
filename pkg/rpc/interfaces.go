package rpc

import (
	"context"
)

// Client captures the ledger calls the sync engine depends on. The HTTP
// implementation is the production client; tests substitute fakes.
type Client interface {
	PollByID(ctx context.Context, id uint64) (*PollRecord, error)
	PollCount(ctx context.Context) (QueryResult, error)
	Polls(ctx context.Context) ([]PollRecord, error)
	PollsRange(ctx context.Context, from, to uint64) ([]PollRecord, error)
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	SubmitAndWatch(ctx context.Context, req SubmitRequest) (string, <-chan TxStatus, error)
}
