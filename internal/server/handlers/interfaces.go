package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/session"
	"github.com/pion/webrtc/v4/pkg/media"
)

// ServerService defines the interface for server operations that handlers need
type ServerService interface {
	// Status and info
	IsRunning() bool
	GetPort() int
	GetUptime() time.Duration
	GetBuildID() string
	GetVersion() string

	// Server lifecycle
	Stop() error

	// Replay services
	GetReplay() ReplayService
	GetIngestor() Ingestor
	GetLogger() *slog.Logger
}

// ReplayService is the trigger interface of the replay session
type ReplayService interface {
	StartBuffering()
	StopBuffering()
	RequestSave(ctx context.Context, seconds float64) <-chan session.Outcome
	Snapshot() session.Snapshot
}

// Ingestor accepts samples streamed by external capture processes
type Ingestor interface {
	SetFormat(kind core.TrackKind, f *core.FormatDescriptor)
	Format(kind core.TrackKind) *core.FormatDescriptor
	OnSample(kind core.TrackKind, sample core.Sample)
	OnMediaSample(kind core.TrackKind, sample media.Sample)
	Counts() map[core.TrackKind]uint64
}
