package handlers

import (
	"net/http"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
)

// APIHandlers contains handlers for the health and status routes
type APIHandlers struct {
	serverService ServerService
	replay        ReplayService
	ingestor      Ingestor
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(serverSvc ServerService, replay ReplayService, ingestor Ingestor) *APIHandlers {
	return &APIHandlers{
		serverService: serverSvc,
		replay:        replay,
		ingestor:      ingestor,
	}
}

// Health and status endpoints
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"gbox-replay"}`))
}

func (h *APIHandlers) HandleStatus(w http.ResponseWriter, req *http.Request) {
	var status StatusResponse
	if h.serverService != nil {
		status.Running = h.serverService.IsRunning()
		status.Port = h.serverService.GetPort()
		status.Uptime = h.serverService.GetUptime().String()
		status.Version = h.serverService.GetVersion()
		status.BuildID = h.serverService.GetBuildID()
	}

	var ingested map[core.TrackKind]uint64
	if h.ingestor != nil {
		ingested = h.ingestor.Counts()
	}

	if h.replay != nil {
		snap := h.replay.Snapshot()
		status.Buffering = snap.Buffering
		status.SaveInProgress = snap.SaveInProgress
		status.WindowSeconds = snap.Window.Seconds()
		status.LastSave = snap.LastSave
		for _, st := range snap.Tracks {
			kind := core.ParseTrackKind(st.Kind)
			track := TrackStatus{
				Kind:            st.Kind,
				Samples:         st.Samples,
				DurationSeconds: st.Duration.Seconds(),
				Ingested:        ingested[kind],
			}
			if h.ingestor != nil {
				if f := h.ingestor.Format(kind); f != nil {
					track.Codec = string(f.Codec)
				}
			}
			status.Tracks = append(status.Tracks, track)
		}
	}

	RespondJSON(w, http.StatusOK, status)
}
