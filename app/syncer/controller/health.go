package controller

import (
	"encoding/json"
	"net/http"
)

// HandleHealth reports cache, ledger and notification connectivity. A dead
// cache store is an error; an unreachable ledger only degrades the service,
// stale reads still work.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc := c.App.Service

	if err := svc.Store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "errored", "error": "cache store connection error"})
		return
	}

	status := map[string]string{"status": "ok"}
	if _, err := svc.Client.ChainInfo(ctx); err != nil {
		status["status"] = "degraded"
		status["ledger"] = "unreachable"
	}
	if svc.Events != nil {
		if err := svc.Events.Health(ctx); err != nil {
			status["status"] = "degraded"
			status["events"] = "unreachable"
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}
