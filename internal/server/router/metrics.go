package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRouter exposes the Prometheus registry
type MetricsRouter struct{}

// RegisterRoutes registers the metrics route
func (r *MetricsRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	mux.Handle("GET "+r.GetPathPrefix(), promhttp.Handler())
}

// GetPathPrefix returns the path prefix for this router
func (r *MetricsRouter) GetPathPrefix() string {
	return "/metrics"
}
