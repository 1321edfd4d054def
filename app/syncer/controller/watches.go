package controller

import (
	"net/http"
)

// HandleWatchesList returns the confirmation watches still in flight.
func (c *Controller) HandleWatchesList(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, c.App.Service.ActiveWatches())
}
