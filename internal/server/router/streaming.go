package router

import (
	"net/http"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
)

// StreamingRouter handles the per-stream frame routes
type StreamingRouter struct {
	handlers *handlers.StreamingHandlers
}

// RegisterRoutes registers all streaming routes
func (r *StreamingRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	serverService, ok := server.(handlers.ServerService)
	if !ok {
		return
	}
	r.handlers = handlers.NewStreamingHandlers(serverService)

	streams := NewPatternRouter()
	streams.HandleFunc("/api/streams/{id}/frame.png", func(w http.ResponseWriter, req *http.Request) {
		r.handlers.HandleFramePNG(w, req, PathParam(req, "id"))
	})
	streams.HandleFunc("/api/streams/{id}/ws", func(w http.ResponseWriter, req *http.Request) {
		r.handlers.HandleFrameWebSocket(w, req, PathParam(req, "id"))
	})

	mux.HandleFunc("/api/streams/", streams.ServeHTTP)
}

// GetPathPrefix returns the path prefix for this router
func (r *StreamingRouter) GetPathPrefix() string {
	return "/api/streams/"
}
