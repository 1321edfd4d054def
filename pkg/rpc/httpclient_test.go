package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tally-network/pollsync/pkg/rpc"
)

func newTestClient(t *testing.T, handler http.Handler) *rpc.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: []string{srv.URL},
		Timeout:   5 * time.Second,
		RPS:       1000,
		Burst:     1000,
	})
}

func writePage(w http.ResponseWriter, records []rpc.PollRecord, page, totalPages, totalCount int) {
	_ = json.NewEncoder(w).Encode(struct {
		Results    []rpc.PollRecord `json:"results"`
		PageNumber int              `json:"pageNumber"`
		PerPage    int              `json:"perPage"`
		TotalPages int              `json:"totalPages"`
		TotalCount int              `json:"totalCount"`
	}{
		Results:    records,
		PageNumber: page,
		PerPage:    len(records),
		TotalPages: totalPages,
		TotalCount: totalCount,
	})
}

func TestPollByID_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query/poll", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, float64(7), req["pollId"])

		_ = json.NewEncoder(w).Encode(rpc.PollRecord{
			ID:          7,
			Title:       "Quorum change",
			MaxOptions:  2,
			IsActive:    true,
			TotalVotes:  7,
			VoteTallies: []uint64{3, 4},
		})
	})

	client := newTestClient(t, handler)
	rec, err := client.PollByID(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.ID)
	assert.Equal(t, "Quorum change", rec.Title)
	assert.Equal(t, []uint64{3, 4}, rec.VoteTallies)
}

func TestPollByID_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, handler)
	rec, err := client.PollByID(context.Background(), 99)

	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrPollNotFound)
	assert.Nil(t, rec)
}

func TestPollByID_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, handler)
	rec, err := client.PollByID(context.Background(), 1)

	require.Error(t, err)
	assert.NotErrorIs(t, err, rpc.ErrPollNotFound)
	assert.Contains(t, err.Error(), "server 500")
	assert.Nil(t, rec)
}

// TestDoJSON_EndpointFailover verifies a dead endpoint is skipped in favor
// of a healthy one within a single call.
func TestDoJSON_EndpointFailover(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rpc.PollRecord{ID: 1, Title: "ok", MaxOptions: 2})
	}))
	t.Cleanup(healthy.Close)

	client := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: []string{dead.URL, healthy.URL},
		RPS:       1000,
		Burst:     1000,
	})

	rec, err := client.PollByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Title)
}

func TestPollCount_ReturnsRawEnvelope(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query/poll-count", r.URL.Path)
		_, _ = w.Write([]byte(`{"display":{"ok":"1,234"},"output":"0x4d2"}`))
	})

	client := newTestClient(t, handler)
	res, err := client.PollCount(context.Background())
	require.NoError(t, err)

	count, err := rpc.Decode(res)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), count)
}

func TestPolls_MultiplePages(t *testing.T) {
	page1 := []rpc.PollRecord{{ID: 1, Title: "a", MaxOptions: 2}, {ID: 2, Title: "b", MaxOptions: 2}}
	page2 := []rpc.PollRecord{{ID: 3, Title: "c", MaxOptions: 3}}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		pageNum := 1
		if v, ok := req["pageNumber"].(float64); ok {
			pageNum = int(v)
		}
		if pageNum == 1 {
			writePage(w, page1, 1, 2, 3)
			return
		}
		writePage(w, page2, 2, 2, 3)
	})

	client := newTestClient(t, handler)
	polls, err := client.Polls(context.Background())

	require.NoError(t, err)
	require.Len(t, polls, 3)
	byID := map[uint64]string{}
	for _, p := range polls {
		byID[p.ID] = p.Title
	}
	assert.Equal(t, "a", byID[1])
	assert.Equal(t, "b", byID[2])
	assert.Equal(t, "c", byID[3])
}

func TestPollsRange_SkipsMissingIDs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		id := uint64(req["pollId"].(float64))
		if id == 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(rpc.PollRecord{ID: id, Title: "p", MaxOptions: 2})
	})

	client := newTestClient(t, handler)
	polls, err := client.PollsRange(context.Background(), 1, 3)

	require.NoError(t, err)
	require.Len(t, polls, 2)
	assert.Equal(t, uint64(1), polls[0].ID)
	assert.Equal(t, uint64(3), polls[1].ID)
}

func TestPollsRange_InvalidBounds(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := client.PollsRange(context.Background(), 0, 3)
	assert.Error(t, err)

	_, err = client.PollsRange(context.Background(), 5, 3)
	assert.Error(t, err)
}

func TestChainInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query/chain-info", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(rpc.ChainInfo{ChainName: "tally-main", ChainID: "0x91b1", SpecVersion: 12})
	})

	client := newTestClient(t, handler)
	info, err := client.ChainInfo(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tally-main", info.ChainName)
	assert.Equal(t, uint32(12), info.SpecVersion)
}

func TestSubmit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tx/submit", r.URL.Path)
		var req rpc.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, rpc.MethodCreatePoll, req.Method)
		_ = json.NewEncoder(w).Encode(map[string]string{"txHash": "0xabc"})
	})

	client := newTestClient(t, handler)
	hash, err := client.Submit(context.Background(), rpc.SubmitRequest{Method: rpc.MethodCreatePoll})

	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestSubmit_EmptyHash(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})

	client := newTestClient(t, handler)
	_, err := client.Submit(context.Background(), rpc.SubmitRequest{Method: rpc.MethodVote})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tx hash")
}
