package handlers

import (
	"net/http"
)

// Stats returns aggregate counters for dashboards.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to gather stats")
		return
	}

	h.JSON(w, http.StatusOK, stats)
}
