package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusStarting  = "starting"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status                string `json:"status"`
	Ready                 bool   `json:"ready"`
	Version               string `json:"version"`
	Uptime                string `json:"uptime"`
	Reconciling           bool   `json:"reconciling"`
	Watching              bool   `json:"watching"`
	LastReconcile         string `json:"lastReconcile,omitempty"`
	InitialReconcileError string `json:"initialReconcileError,omitempty"`
	DatabaseError         string `json:"databaseError,omitempty"`

	PendingFiles       int `json:"pendingFiles"`
	WatchedDirectories int `json:"watchedDirectories"`

	// Index summary
	TotalImages int `json:"totalImages"`
	TotalTags   int `json:"totalTags"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.coordinator.GetHealthStatus()

	response := HealthResponse{
		Status:             statusHealthy,
		Ready:              status.Ready,
		Version:            startup.Version,
		Uptime:             status.Uptime,
		Reconciling:        status.Reconciling,
		Watching:           status.Watching,
		PendingFiles:       status.PendingFiles,
		WatchedDirectories: status.WatchedDirectories,
		GoVersion:          runtime.Version(),
		NumCPU:             runtime.NumCPU(),
		NumGoroutine:       runtime.NumGoroutine(),
	}

	if !status.LastReconcile.IsZero() {
		response.LastReconcile = status.LastReconcile.Format(time.RFC3339)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	if stats, err := h.db.Stats(ctx); err != nil {
		logging.Warn("Health check: database unavailable: %v", err)
		response.DatabaseError = err.Error()
	} else {
		response.TotalImages = stats.TotalImages
		response.TotalTags = stats.TotalTags
	}

	switch {
	case response.DatabaseError != "":
		response.Status = statusUnhealthy
		statusCode = http.StatusServiceUnavailable
	case !status.Ready:
		response.Status = statusStarting
		statusCode = http.StatusServiceUnavailable
	case status.InitialReconcileError != "":
		response.InitialReconcileError = status.InitialReconcileError
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the initial reconciliation has finished
// and the database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if !h.coordinator.IsReady() || h.db.Ping(ctx) != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{"status": "ready"})
}
