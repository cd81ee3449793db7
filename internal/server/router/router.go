package router

import (
	"net/http"
)

// Router defines the interface for route registration
type Router interface {
	RegisterRoutes(mux *http.ServeMux, server interface{})
	GetPathPrefix() string
}
