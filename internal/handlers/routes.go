package handlers

import (
	"github.com/gorilla/mux"

	"photo-tagger/internal/middleware"
)

// RouterOptions selects optional routes.
type RouterOptions struct {
	MetricsEnabled bool
	ServeImages    bool
	ServeThumbs    bool
}

// NewRouter registers every route on a new router. Request logging is
// left to the caller so it can wrap the whole router.
func NewRouter(h *Handlers, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	if opts.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Compression(middleware.DefaultCompressionConfig()))
	if opts.MetricsEnabled {
		api.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	api.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Image queries
	api.HandleFunc("/images/filter", h.FilterImages).Methods("GET")
	api.HandleFunc("/images/date-range", h.ImagesByDateRange).Methods("GET")
	api.HandleFunc("/images/month", h.ImagesByMonth).Methods("GET")
	api.HandleFunc("/images/tags", h.ImagesByTags).Methods("GET")
	api.HandleFunc("/images/no-tags", h.UntaggedImages).Methods("GET")

	// Tags
	api.HandleFunc("/images/{id:[0-9]+}", h.GetImage).Methods("GET")
	api.HandleFunc("/images/{id:[0-9]+}/tags", h.GetImageTags).Methods("GET")
	api.HandleFunc("/images/{id:[0-9]+}/tags", h.AddImageTags).Methods("POST")
	api.HandleFunc("/images/{id:[0-9]+}/tags", h.RemoveImageTag).Methods("DELETE")
	api.HandleFunc("/tags", h.GetAllTags).Methods("GET")

	api.HandleFunc("/reconcile", h.TriggerReconcile).Methods("POST")

	// Static files
	if opts.ServeImages {
		r.HandleFunc("/images/{path:.+}", h.ServeImage).Methods("GET", "HEAD")
	}
	if opts.ServeThumbs {
		r.HandleFunc("/thumbnails/{path:.+}", h.ServeThumbnail).Methods("GET", "HEAD")
	}

	return r
}
