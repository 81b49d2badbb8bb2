package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/metrics"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/buffer"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/mux"
)

// DefaultWindow is the replay window used when none is configured.
const DefaultWindow = 30 * time.Second

// Config holds the settings of a replay session.
type Config struct {
	WindowDuration   time.Duration
	MinDuration      time.Duration
	Preferences      format.Preferences
	OutputDirectory  string
	FileNameTemplate string
	QueueSize        int

	// Notifier is told about every completed save. Optional.
	Notifier Notifier
	// OnStopped is called whenever buffering stops. Optional.
	OnStopped func()
	// NewWriter overrides the container writer factory.
	NewWriter mux.WriterFactory
	// Now overrides the clock used for file names.
	Now func() time.Time
}

// Snapshot is a point-in-time view of the session for status reporting.
type Snapshot struct {
	Buffering      bool                `json:"buffering"`
	SaveInProgress bool                `json:"save_in_progress"`
	Window         time.Duration       `json:"window"`
	Tracks         []buffer.TrackStats `json:"tracks"`
	LastSave       *SaveRecord         `json:"last_save,omitempty"`
}

// SaveRecord summarizes the most recent save outcome.
type SaveRecord struct {
	Status   Status    `json:"status"`
	Path     string    `json:"path,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	At       time.Time `json:"at"`
}

// Session owns the replay buffer and at most one in-flight save.
//
// Samples are accepted while buffering. A save snapshots the buffer, writes
// the snapshot in the background, and always ends the buffering session.
type Session struct {
	cfg        Config
	logger     *slog.Logger
	store      *buffer.Store
	negotiator *format.Negotiator

	// gate is held shared by OnSample and exclusively while buffering is
	// switched on or off, so no sample lands in a cleared store.
	gate      sync.RWMutex
	buffering atomic.Bool

	mu       sync.Mutex
	saveDone chan struct{} // non-nil while a save is in flight
	lastSave *SaveRecord
}

// New creates a session. Buffering starts with StartBuffering.
func New(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FileNameTemplate == "" {
		cfg.FileNameTemplate = DefaultFileNameTemplate
	}
	return &Session{
		cfg:        cfg,
		logger:     logger.With("component", "replay_session"),
		store:      buffer.NewStore(cfg.WindowDuration, logger),
		negotiator: format.NewNegotiator(cfg.Preferences, cfg.MinDuration, logger),
	}
}

// Store exposes the underlying replay store.
func (s *Session) Store() *buffer.Store {
	return s.store
}

// IsBuffering reports whether samples are being recorded.
func (s *Session) IsBuffering() bool {
	return s.buffering.Load()
}

// SaveInProgress reports whether a save is running.
func (s *Session) SaveInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDone != nil
}

// StartBuffering begins a fresh buffering session, discarding old samples.
// It waits for an in-flight save first.
func (s *Session) StartBuffering() {
	s.waitForSave()

	s.gate.Lock()
	s.store.ClearAll()
	wasBuffering := s.buffering.Swap(true)
	s.gate.Unlock()

	if !wasBuffering {
		s.logger.Info("Replay buffering started", "window", s.Window())
	}
}

// Window returns the current retention window.
func (s *Session) Window() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.WindowDuration
}

// SetWindow changes the retention window. Shrinking evicts old samples at once.
func (s *Session) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := s.cfg.WindowDuration != d
	s.cfg.WindowDuration = d
	s.mu.Unlock()

	if changed {
		s.store.SetMaxWindow(d)
		s.logger.Info("Replay window changed", "window", d)
	}
}

// StopBuffering ends the buffering session. An in-flight save is allowed to
// finish before the buffer is cleared.
func (s *Session) StopBuffering() {
	s.waitForSave()
	s.stop("requested")
}

func (s *Session) waitForSave() {
	s.mu.Lock()
	done := s.saveDone
	s.mu.Unlock()
	if done != nil {
		s.logger.Debug("Waiting for in-flight save")
		<-done
	}
}

func (s *Session) stop(reason string) {
	s.gate.Lock()
	wasBuffering := s.buffering.Swap(false)
	s.store.ClearAll()
	s.gate.Unlock()

	if !wasBuffering {
		return
	}
	s.logger.Info("Replay buffering stopped", "reason", reason)
	if s.cfg.OnStopped != nil {
		s.cfg.OnStopped()
	}
}

// OnSample records a captured sample. It never blocks on a running save.
func (s *Session) OnSample(sample core.Sample) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if !s.buffering.Load() {
		metrics.SamplesDroppedTotal.WithLabelValues("not_buffering").Inc()
		return
	}
	s.store.Append(sample)
}

// RequestSave writes the last seconds of every track to a new file. The
// outcome is delivered on the returned channel, which is closed afterwards.
// A non-positive window is still a save attempt: it is rejected for
// insufficient data and ends buffering like any other attempt.
func (s *Session) RequestSave(ctx context.Context, seconds float64) <-chan Outcome {
	out := make(chan Outcome, 1)

	reject := func(err error) <-chan Outcome {
		s.logger.Info("Save request rejected", "reason", err)
		metrics.SavesTotal.WithLabelValues(string(StatusRejected)).Inc()
		out <- Outcome{Status: StatusRejected, Err: err}
		close(out)
		return out
	}

	if err := ctx.Err(); err != nil {
		return reject(err)
	}

	s.mu.Lock()
	if s.saveDone != nil {
		s.mu.Unlock()
		return reject(ErrSaveInProgress)
	}
	if !s.buffering.Load() {
		s.mu.Unlock()
		return reject(ErrNotBuffering)
	}
	done := make(chan struct{})
	s.saveDone = done
	s.mu.Unlock()

	window := secondsToWindow(seconds)
	ex := s.store.Extract(window)
	metrics.SaveInProgress.Set(1)
	s.logger.Info("Save requested", "window", window)

	go func() {
		outcome := s.save(ex)
		s.finishSave(done, outcome)
		out <- outcome
		close(out)
	}()
	return out
}

// secondsToWindow maps NaN and non-positive values to an empty window and
// saturates values too large for a time.Duration.
func secondsToWindow(seconds float64) time.Duration {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	if seconds >= float64(math.MaxInt64)/float64(time.Second) {
		return math.MaxInt64
	}
	return time.Duration(seconds * float64(time.Second))
}

func (s *Session) save(ex buffer.Extraction) Outcome {
	started := time.Now()
	defer func() {
		metrics.SaveDuration.Observe(time.Since(started).Seconds())
	}()

	base := filepath.Join(s.cfg.OutputDirectory, FileName(s.cfg.FileNameTemplate, s.cfg.Now()))
	out := mux.NewOutputSession(base, s.negotiator, mux.Options{
		QueueSize:    s.cfg.QueueSize,
		NewWriter:    s.cfg.NewWriter,
		AddExtension: true,
	}, s.logger)

	result, err := out.WriteAndFinalize(ex)
	if err != nil {
		var insufficient *mux.InsufficientDataError
		if errors.As(err, &insufficient) {
			return Outcome{Status: StatusRejected, Err: err}
		}
		s.logger.Error("Save failed", "path", out.Path(), "state", out.State(), "error", err)
		return Outcome{Status: StatusFailed, Err: err}
	}
	for _, w := range result.Warnings {
		s.logger.Warn("Save completed with warning", "path", result.Path, "warning", w)
	}
	return Outcome{
		Status:    StatusCompleted,
		Path:      result.Path,
		Container: result.Container,
		Warnings:  result.Warnings,
	}
}

// finishSave ends the buffering session after any save attempt.
func (s *Session) finishSave(done chan struct{}, outcome Outcome) {
	metrics.SavesTotal.WithLabelValues(string(outcome.Status)).Inc()
	metrics.SaveInProgress.Set(0)

	s.stop("save " + string(outcome.Status))

	s.mu.Lock()
	s.lastSave = &SaveRecord{
		Status:   outcome.Status,
		Path:     outcome.Path,
		Reason:   outcome.Reason(),
		Warnings: outcome.WarningMessages(),
		At:       s.cfg.Now(),
	}
	s.saveDone = nil
	s.mu.Unlock()
	close(done)

	if outcome.Status == StatusCompleted && s.cfg.Notifier != nil {
		s.cfg.Notifier.OnCompleted(outcome.Path)
	}
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Buffering:      s.buffering.Load(),
		SaveInProgress: s.saveDone != nil,
		Window:         s.cfg.WindowDuration,
		Tracks:         s.store.Stats(),
	}
	if s.lastSave != nil {
		rec := *s.lastSave
		snap.LastSave = &rec
	}
	return snap
}
