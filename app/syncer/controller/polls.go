package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/tally-network/pollsync/app/syncer/types"
	"github.com/tally-network/pollsync/pkg/rpc"
)

// HandlePollsList returns the reconciled view of every poll.
// Query param: ?includeStale=true to append cached rows the ledger could not
// vouch for, flagged degraded.
func (c *Controller) HandlePollsList(w http.ResponseWriter, r *http.Request) {
	stale := r.URL.Query().Get("includeStale")
	includeStale := stale == "true" || stale == "1"

	views, err := c.App.Service.ListMergedPolls(r.Context(), includeStale)
	if err != nil {
		c.writeError(w, http.StatusServiceUnavailable, "ledger unreachable: "+err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, views)
}

// HandlePollGet returns the reconciled view of one poll.
func (c *Controller) HandlePollGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		c.writeError(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	view, err := c.App.Service.GetPoll(r.Context(), id)
	if err != nil {
		if errors.Is(err, rpc.ErrPollNotFound) {
			c.writeError(w, http.StatusNotFound, "poll not found")
			return
		}
		c.writeError(w, http.StatusServiceUnavailable, "ledger unreachable: "+err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, view)
}

// HandlePollsExport returns the raw remote records, bypassing the cache.
func (c *Controller) HandlePollsExport(w http.ResponseWriter, r *http.Request) {
	records, err := c.App.Service.Export(r.Context())
	if err != nil {
		c.writeError(w, http.StatusServiceUnavailable, "ledger unreachable: "+err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, records)
}

// HandlePollCreate submits a poll creation and waits for finality.
func (c *Controller) HandlePollCreate(w http.ResponseWriter, r *http.Request) {
	var req types.NewPoll
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if len(req.OptionNames) < 2 {
		c.writeError(w, http.StatusBadRequest, "a poll needs at least two options")
		return
	}

	result, err := c.App.Service.CreatePoll(r.Context(), req)
	if err != nil {
		c.writeSubmitError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, result)
}

// HandleVote submits a vote for one option of a poll.
func (c *Controller) HandleVote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		c.writeError(w, http.StatusBadRequest, "invalid poll id")
		return
	}

	var body struct {
		Option uint32 `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		c.writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	result, err := c.App.Service.Vote(r.Context(), id, body.Option)
	if err != nil {
		c.writeSubmitError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, result)
}

// writeSubmitError maps submission failures: ledger-side rejections carry a
// user-facing classification, everything else is an availability problem.
func (c *Controller) writeSubmitError(w http.ResponseWriter, err error) {
	var dispatch *rpc.DispatchError
	switch {
	case errors.Is(err, types.ErrReadOnly):
		c.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &dispatch):
		c.writeError(w, http.StatusUnprocessableEntity, dispatch.Classify())
	default:
		c.writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code
func (c *Controller) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (c *Controller) writeError(w http.ResponseWriter, statusCode int, message string) {
	c.writeJSON(w, statusCode, map[string]string{"error": message})
}
