package handlers

import (
	"net/http"
)

// TriggerReconcile starts a reconciliation pass in the background.
func (h *Handlers) TriggerReconcile(w http.ResponseWriter, _ *http.Request) {
	if !h.coordinator.TriggerReconcile() {
		if h.coordinator.IsReconciling() {
			writeJSONError(w, "Reconciliation already in progress", http.StatusConflict)
			return
		}
		writeJSONError(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "started"})
}
