package router

import (
	"log/slog"
	"net/http"

	"github.com/babelcloud/gbox/packages/replay/internal/server/handlers"
)

// ReplayRouter handles the /api/replay/* trigger and ingest routes
type ReplayRouter struct {
	replay *handlers.ReplayHandlers
	ingest *handlers.IngestHandlers
}

// RegisterRoutes registers all replay routes
func (r *ReplayRouter) RegisterRoutes(mux *http.ServeMux, server interface{}) {
	srv, ok := server.(handlers.ServerService)
	if !ok {
		slog.Warn("Replay routes not registered, server does not provide replay services")
		return
	}
	logger := srv.GetLogger().With("component", "replay_api")

	r.replay = handlers.NewReplayHandlers(srv.GetReplay(), logger)
	r.ingest = handlers.NewIngestHandlers(srv.GetIngestor(), logger)

	g := NewRouteGroup(r.GetPathPrefix(), mux)
	g.HandleFunc(http.MethodPost, "/start", r.replay.HandleStart)
	g.HandleFunc(http.MethodPost, "/stop", r.replay.HandleStop)
	g.HandleFunc(http.MethodPost, "/save", r.replay.HandleSave)
	g.HandleFunc(http.MethodGet, "/ingest/{kind}", r.ingest.HandleIngest)
	g.HandleFunc(http.MethodGet, "/ingest/{kind}/media", r.ingest.HandleMediaIngest)
}

// GetPathPrefix returns the path prefix for this router
func (r *ReplayRouter) GetPathPrefix() string {
	return "/api/replay"
}
