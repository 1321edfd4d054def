package rpc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/tally-network/pollsync/pkg/utils"
)

// watchTx subscribes to lifecycle updates for txHash over the node's
// websocket feed. The read loop forwards every status and stops at the
// first terminal one; a broken stream is reported as a synthetic failed
// status rather than an error so consumers handle one shape.
func (c *HTTPClient) watchTx(ctx context.Context, txHash string) (<-chan TxStatus, error) {
	u, err := c.subscribeURL(txHash)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil {
		_ = utils.DrainAndClose(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe tx %s: %w", txHash, err)
	}

	updates := make(chan TxStatus, 8)
	go func() {
		defer close(updates)
		defer func() { _ = conn.Close() }()

		done := make(chan struct{})
		defer close(done)
		go func() {
			// Unblock the read loop when the caller goes away.
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-done:
			}
		}()

		for {
			var st TxStatus
			if err := conn.ReadJSON(&st); err != nil {
				if ctx.Err() != nil {
					return
				}
				st = TxStatus{
					State:   TxFailed,
					Failure: &DispatchError{Module: "transport", Reason: err.Error()},
				}
				select {
				case updates <- st:
				case <-ctx.Done():
				}
				return
			}
			select {
			case updates <- st:
			case <-ctx.Done():
				return
			}
			if st.Terminal() {
				return
			}
		}
	}()
	return updates, nil
}

// subscribeURL derives the websocket URL for a tx subscription from the
// first endpoint whose breaker is closed.
func (c *HTTPClient) subscribeURL(txHash string) (string, error) {
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}
		u, err := url.Parse(ep)
		if err != nil {
			continue
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		u.Path = subscribeTxPath
		u.RawQuery = "hash=" + url.QueryEscape(txHash)
		return u.String(), nil
	}
	return "", fmt.Errorf("no healthy endpoints for subscription")
}
