package handlers

import (
	"github.com/babelcloud/gbox/packages/replay/internal/replay/session"
)

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Running        bool                `json:"running"`
	Port           int                 `json:"port"`
	Uptime         string              `json:"uptime"`
	Version        string              `json:"version"`
	BuildID        string              `json:"build_id"`
	Buffering      bool                `json:"buffering"`
	SaveInProgress bool                `json:"save_in_progress"`
	WindowSeconds  float64             `json:"window_seconds"`
	Tracks         []TrackStatus       `json:"tracks"`
	LastSave       *session.SaveRecord `json:"last_save,omitempty"`
}

// TrackStatus describes one buffered track
type TrackStatus struct {
	Kind            string  `json:"kind"`
	Codec           string  `json:"codec,omitempty"`
	Samples         int     `json:"samples"`
	DurationSeconds float64 `json:"duration_seconds"`
	Ingested        uint64  `json:"ingested"`
}

// SaveResponse is returned by POST /api/replay/save
type SaveResponse struct {
	Status   session.Status `json:"status"`
	Path     string         `json:"path,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// BufferingResponse is returned by the start and stop endpoints
type BufferingResponse struct {
	Buffering bool `json:"buffering"`
}
