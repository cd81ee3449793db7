package router

import (
	"net/http"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
)

// MetricsRouter exposes Prometheus metrics
type MetricsRouter struct{}

// RegisterRoutes registers /metrics
func (r *MetricsRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	if serverService, ok := server.(handlers.ServerService); ok {
		mux.Handle("/metrics", serverService.MetricsHandler())
	}
}

// GetPathPrefix returns the path prefix for this router
func (r *MetricsRouter) GetPathPrefix() string {
	return "/metrics"
}
