package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tally-network/pollsync/pkg/rpc"
)

var upgrader = websocket.Upgrader{}

// newSubmitServer serves the submit endpoint plus a subscription handler.
func newSubmitServer(t *testing.T, subscribe func(*websocket.Conn)) *rpc.HTTPClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tx/submit", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"txHash": "0xabc"})
	})
	mux.HandleFunc("/v1/subscribe-tx", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xabc", r.URL.Query().Get("hash"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		subscribe(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{srv.URL}, RPS: 1000, Burst: 1000})
}

func collect(t *testing.T, updates <-chan rpc.TxStatus) []rpc.TxStatus {
	t.Helper()
	var got []rpc.TxStatus
	timeout := time.After(5 * time.Second)
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, st)
		case <-timeout:
			t.Fatal("subscription did not finish")
		}
	}
}

func TestSubmitAndWatch_LifecycleStream(t *testing.T) {
	receipt := &rpc.TxReceipt{
		TxHash:      "0xabc",
		BlockNumber: 42,
		BlockHash:   "0xb10c",
		Events: []rpc.EventRecord{
			{Module: "contracts", Name: "ContractEmitted"},
		},
	}
	client := newSubmitServer(t, func(conn *websocket.Conn) {
		for _, st := range []rpc.TxStatus{
			{State: rpc.TxBroadcast},
			{State: rpc.TxInBlock, Receipt: receipt},
			{State: rpc.TxFinalized, Receipt: receipt},
		} {
			require.NoError(t, conn.WriteJSON(st))
		}
		// Hold the connection until the client hangs up.
		_, _, _ = conn.ReadMessage()
	})

	hash, updates, err := client.SubmitAndWatch(context.Background(), rpc.SubmitRequest{Method: rpc.MethodCreatePoll})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)

	got := collect(t, updates)
	require.Len(t, got, 3)
	assert.Equal(t, rpc.TxBroadcast, got[0].State)
	assert.Equal(t, rpc.TxInBlock, got[1].State)
	require.NotNil(t, got[1].Receipt)
	assert.Equal(t, uint64(42), got[1].Receipt.BlockNumber)
	assert.Equal(t, rpc.TxFinalized, got[2].State)
	assert.True(t, got[2].Terminal())
}

func TestSubmitAndWatch_FailedDispatch(t *testing.T) {
	client := newSubmitServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(rpc.TxStatus{State: rpc.TxBroadcast})
		_ = conn.WriteJSON(rpc.TxStatus{
			State:   rpc.TxFailed,
			Failure: &rpc.DispatchError{Module: "polls", Reason: "AlreadyVoted"},
		})
		_, _, _ = conn.ReadMessage()
	})

	_, updates, err := client.SubmitAndWatch(context.Background(), rpc.SubmitRequest{Method: rpc.MethodVote})
	require.NoError(t, err)

	got := collect(t, updates)
	require.Len(t, got, 2)
	last := got[len(got)-1]
	assert.Equal(t, rpc.TxFailed, last.State)
	require.NotNil(t, last.Failure)
	assert.Equal(t, "this account has already voted", last.Failure.Classify())
}

// TestSubmitAndWatch_TransportLoss verifies a broken stream surfaces as a
// synthetic failed status instead of a dropped channel.
func TestSubmitAndWatch_TransportLoss(t *testing.T) {
	client := newSubmitServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(rpc.TxStatus{State: rpc.TxBroadcast})
		// Abrupt close, no terminal status.
	})

	_, updates, err := client.SubmitAndWatch(context.Background(), rpc.SubmitRequest{Method: rpc.MethodVote})
	require.NoError(t, err)

	got := collect(t, updates)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, rpc.TxFailed, last.State)
	require.NotNil(t, last.Failure)
	assert.Equal(t, "transport", last.Failure.Module)
}

func TestSubmitAndWatch_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	client := newSubmitServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(rpc.TxStatus{State: rpc.TxBroadcast})
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	_, updates, err := client.SubmitAndWatch(ctx, rpc.SubmitRequest{Method: rpc.MethodVote})
	require.NoError(t, err)

	first := <-updates
	assert.Equal(t, rpc.TxBroadcast, first.State)

	cancel()
	for st := range updates {
		assert.NotEqual(t, rpc.TxFailed, st.State, "cancellation must not fabricate a failure")
	}
}
