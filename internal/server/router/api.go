package router

import (
	"net/http"

	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
)

// APIRouter handles the health and status routes
type APIRouter struct {
	handlers *handlers.APIHandlers
}

// RegisterRoutes registers all API routes
func (r *APIRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	// Cast server to ServerService
	var (
		serverService handlers.ServerService
		replay        handlers.ReplayService
		ingestor      handlers.Ingestor
	)
	if srv, ok := server.(handlers.ServerService); ok {
		serverService = srv
		replay = srv.GetReplay()
		ingestor = srv.GetIngestor()
	}

	r.handlers = handlers.NewAPIHandlers(serverService, replay, ingestor)

	// Health and status endpoints
	api := NewRouteGroup(r.GetPathPrefix(), mux)
	api.HandleFunc(http.MethodGet, "/health", r.handlers.HandleHealth)
	api.HandleFunc(http.MethodGet, "/status", r.handlers.HandleStatus)
}

// GetPathPrefix returns the path prefix for this router
func (r *APIRouter) GetPathPrefix() string {
	return "/api"
}
