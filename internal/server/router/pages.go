package router

import (
	"io/fs"
	"net/http"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
)

// StaticFSProvider is implemented by servers that embed the viewer.
type StaticFSProvider interface {
	GetStaticFS() fs.FS
}

// PagesRouter handles the viewer page
type PagesRouter struct {
	handlers *handlers.PagesHandlers
}

// RegisterRoutes registers the root handler. Must be registered last.
func (r *PagesRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	var staticFS fs.FS
	if provider, ok := server.(StaticFSProvider); ok {
		staticFS = provider.GetStaticFS()
	}
	r.handlers = handlers.NewPagesHandlers(staticFS)

	mux.HandleFunc("/", r.handlers.HandleRoot)
}

// GetPathPrefix returns the path prefix for this router
func (r *PagesRouter) GetPathPrefix() string {
	return "/"
}
