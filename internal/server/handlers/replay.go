package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/session"
)

// ReplayHandlers contains handlers for the /api/replay/* trigger routes
type ReplayHandlers struct {
	replay ReplayService
	logger *slog.Logger
}

// NewReplayHandlers creates a new replay handlers instance
func NewReplayHandlers(replay ReplayService, logger *slog.Logger) *ReplayHandlers {
	return &ReplayHandlers{replay: replay, logger: logger}
}

func (h *ReplayHandlers) HandleStart(w http.ResponseWriter, req *http.Request) {
	h.replay.StartBuffering()
	RespondJSON(w, http.StatusOK, BufferingResponse{Buffering: true})
}

// HandleStop waits for an in-flight save before answering.
func (h *ReplayHandlers) HandleStop(w http.ResponseWriter, req *http.Request) {
	h.replay.StopBuffering()
	RespondJSON(w, http.StatusOK, BufferingResponse{Buffering: false})
}

// HandleSave saves the last ?duration= seconds, defaulting to the whole
// window, and answers once the save reached a terminal state.
func (h *ReplayHandlers) HandleSave(w http.ResponseWriter, req *http.Request) {
	seconds := h.replay.Snapshot().Window.Seconds()
	if raw := req.URL.Query().Get("duration"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid duration: "+raw)
			return
		}
		seconds = parsed
	}

	var outcome session.Outcome
	select {
	case outcome = <-h.replay.RequestSave(req.Context(), seconds):
	case <-req.Context().Done():
		h.logger.Info("Client went away before the save finished", "duration", seconds)
		return
	}

	RespondJSON(w, saveStatusCode(outcome), SaveResponse{
		Status:   outcome.Status,
		Path:     outcome.Path,
		Reason:   outcome.Reason(),
		Warnings: outcome.WarningMessages(),
	})
}

func saveStatusCode(o session.Outcome) int {
	switch o.Status {
	case session.StatusCompleted:
		return http.StatusOK
	case session.StatusRejected:
		if errors.Is(o.Err, session.ErrSaveInProgress) || errors.Is(o.Err, session.ErrNotBuffering) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
