package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Signer supplies the origin identity and signature for a submission. Key
// custody stays outside this module; callers bring their own signer.
type Signer interface {
	Address() string
	Sign(payload []byte) ([]byte, error)
}

// SubmitRequest is a signed contract call ready for broadcast.
type SubmitRequest struct {
	Method    string          `json:"method"`
	Args      json.RawMessage `json:"args"`
	Origin    string          `json:"origin"`
	Signature string          `json:"signature"`
}

// Contract call methods.
const (
	MethodCreatePoll = "create_poll"
	MethodVote       = "vote"
)

type submitResponse struct {
	TxHash string `json:"txHash"`
}

// Submit broadcasts the call and returns the transaction hash. Rejections
// are surfaced, never retried here.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, submitTxPath, req, &resp); err != nil {
		return "", fmt.Errorf("submit %s: %w", req.Method, err)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("submit %s: node returned no tx hash", req.Method)
	}
	return resp.TxHash, nil
}

// SubmitAndWatch broadcasts the call and streams lifecycle updates until
// the transaction finalizes or fails. It returns the transaction hash and a
// channel that closes after a terminal status; cancelling ctx tears the
// subscription down.
func (c *HTTPClient) SubmitAndWatch(ctx context.Context, req SubmitRequest) (string, <-chan TxStatus, error) {
	hash, err := c.Submit(ctx, req)
	if err != nil {
		return "", nil, err
	}
	updates, err := c.watchTx(ctx, hash)
	if err != nil {
		return hash, nil, err
	}
	return hash, updates, nil
}
