package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/ingest"
	"github.com/gorilla/websocket"
)

// maxFrameSize bounds a single sample frame
const maxFrameSize = 16 << 20

// IngestHandlers receives sample streams from external capture processes
type IngestHandlers struct {
	ingestor Ingestor
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewIngestHandlers creates a new ingest handlers instance
func NewIngestHandlers(ingestor Ingestor, logger *slog.Logger) *IngestHandlers {
	return &IngestHandlers{
		ingestor: ingestor,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleIngest streams samples of one track kind into the replay buffer.
// A text message sets the format descriptor, binary messages carry samples.
func (h *IngestHandlers) HandleIngest(w http.ResponseWriter, req *http.Request) {
	h.stream(w, req, func(kind core.TrackKind, data []byte) error {
		sample, err := ingest.DecodeFrame(data)
		if err != nil {
			return err
		}
		h.ingestor.OnSample(kind, sample)
		return nil
	})
}

// HandleMediaIngest is HandleIngest for streams timed by capture wall clock.
func (h *IngestHandlers) HandleMediaIngest(w http.ResponseWriter, req *http.Request) {
	h.stream(w, req, func(kind core.TrackKind, data []byte) error {
		sample, err := ingest.DecodeMediaFrame(data)
		if err != nil {
			return err
		}
		h.ingestor.OnMediaSample(kind, sample)
		return nil
	})
}

func (h *IngestHandlers) stream(w http.ResponseWriter, req *http.Request, onFrame func(core.TrackKind, []byte) error) {
	kind := core.ParseTrackKind(req.PathValue("kind"))
	if kind == core.KindUnknown {
		respondError(w, http.StatusBadRequest, "unknown track kind: "+req.PathValue("kind"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade ingest WebSocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	logger := h.logger.With("track", kind.String(), "remote", req.RemoteAddr)
	logger.Info("Ingest stream connected", "path", req.URL.Path)

	var samples, invalid int
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Check for normal close conditions
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Info("Ingest stream closed", "samples", samples, "invalid", invalid)
			} else {
				logger.Warn("Ingest stream read error", "error", err, "samples", samples)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var f core.FormatDescriptor
			if err := json.Unmarshal(data, &f); err != nil {
				logger.Warn("Invalid format descriptor", "error", err)
				invalid++
				continue
			}
			logger.Info("Format descriptor received", "codec", f.Codec)
			h.ingestor.SetFormat(kind, &f)

		case websocket.BinaryMessage:
			if err := onFrame(kind, data); err != nil {
				logger.Debug("Dropping malformed frame", "error", err)
				invalid++
				continue
			}
			samples++
		}
	}
}
