package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photo-tagger/internal/logging"
)

// MetricsHandler returns the Prometheus metrics handler. Collection errors
// are logged and the remaining metrics are still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          promLogger{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	)
}

// promLogger adapts promhttp error output to the application log.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	logging.Warn("metrics: %v", v)
}
