package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tally-network/pollsync/app/syncer/types"
	"github.com/tally-network/pollsync/pkg/utils"
)

type Controller struct {
	App      *types.App
	AuthHash []byte
}

// NewController returns a new controller. POLLSYNC_API_TOKEN protects the
// mutating routes; when unset they stay open, which is only sane for local
// development.
func NewController(app *types.App) *Controller {
	var authHash []byte
	if token := utils.Env("POLLSYNC_API_TOKEN", ""); token != "" {
		authHash, _ = utils.HashOrRead(token)
	} else {
		app.Logger.Warn("POLLSYNC_API_TOKEN not set, mutating routes are unauthenticated")
	}

	return &Controller{
		App:      app,
		AuthHash: authHash,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Development: Echo back the origin to allow credentials with any origin
		// TODO: Restrict this in production to specific domains
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Read side: merged views, raw export, in-flight watches
	r.HandleFunc("/v1/polls", c.HandlePollsList).Methods(http.MethodGet)
	r.HandleFunc("/v1/polls/export", c.HandlePollsExport).Methods(http.MethodGet)
	r.HandleFunc("/v1/polls/{id}", c.HandlePollGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/watches", c.HandleWatchesList).Methods(http.MethodGet)

	// Write side: submissions against the ledger
	r.Handle("/v1/polls", c.RequireAuth(http.HandlerFunc(c.HandlePollCreate))).Methods(http.MethodPost)
	r.Handle("/v1/polls/{id}/vote", c.RequireAuth(http.HandlerFunc(c.HandleVote))).Methods(http.MethodPost)

	return r, nil
}
