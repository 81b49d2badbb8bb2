package mux

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/metrics"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/buffer"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/dchest/uniuri"
	"github.com/google/uuid"
)

// Options configures an output session.
type Options struct {
	// QueueSize bounds each input's queue. Zero uses DefaultQueueSize.
	QueueSize int
	// NewWriter creates the container writer. Nil uses NewContainerWriter.
	NewWriter WriterFactory
	// OnStateChange is called on every state transition.
	OnStateChange func(State)
	// AddExtension appends the negotiated container's extension to the
	// output path and picks a free name if that file already exists.
	AddExtension bool
}

// Result describes a completed output.
type Result struct {
	ID        uuid.UUID
	Path      string
	Container format.Container
	Kind      format.SessionKind
	StartPTS  time.Duration
	Samples   map[core.TrackKind]int
	// Warnings holds rejected inputs and aborted tracks.
	Warnings []error
}

// OutputSession drains one extraction into one finished container file.
// It is created per save request and never reused.
type OutputSession struct {
	ID         uuid.UUID
	path       string
	negotiator *format.Negotiator
	opts       Options
	logger     *slog.Logger
	state      atomic.Int32
	ran        atomic.Bool
}

// NewOutputSession creates a session that will publish its output at path.
func NewOutputSession(path string, negotiator *format.Negotiator, opts Options, logger *slog.Logger) *OutputSession {
	if opts.NewWriter == nil {
		opts.NewWriter = NewContainerWriter
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &OutputSession{
		ID:         id,
		path:       path,
		negotiator: negotiator,
		opts:       opts,
		logger:     logger.With("component", "container_muxer", "session", id.String()),
	}
}

// State returns the current lifecycle state.
func (s *OutputSession) State() State {
	return State(s.state.Load())
}

func (s *OutputSession) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("Output session state changed", "state", st)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// Path returns the output path. With AddExtension it is final only once
// the session reached StateOpened.
func (s *OutputSession) Path() string {
	return s.path
}

// availablePath returns base.ext, or base with a random suffix when that
// name is taken.
func availablePath(base, ext string) string {
	path := base + "." + ext
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = base + " " + uniuri.NewLen(4) + "." + ext
	}
	return path
}

// WriteAndFinalize validates the extraction, writes every usable track and
// publishes the finished file. On failure no file is left at the output path.
func (s *OutputSession) WriteAndFinalize(ex buffer.Extraction) (*Result, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("output session %s already used", s.ID)
	}

	result, err := s.run(ex)
	if err != nil {
		s.setState(StateFailed)
		s.logger.Debug("Output session failed", "id", s.ID, "error", err)
		return nil, err
	}
	s.setState(StateCompleted)
	s.logger.Info("Save completed", "path", result.Path, "container", result.Container, "warnings", len(result.Warnings))
	return result, nil
}

func (s *OutputSession) run(ex buffer.Extraction) (*Result, error) {
	s.setState(StateValidating)
	if err := Validate(ex, s.negotiator.MinDuration()); err != nil {
		return nil, err
	}

	plan := s.negotiator.Negotiate(ex)
	result := &Result{
		ID:        s.ID,
		Path:      s.path,
		Container: plan.Container,
		Kind:      plan.Kind,
		Samples:   make(map[core.TrackKind]int),
	}
	if len(plan.Tracks) == 0 {
		return nil, &NoUsableTracksError{}
	}

	if s.opts.AddExtension {
		s.path = availablePath(s.path, plan.Container.Extension())
		result.Path = s.path
	}

	// Opened: the container is written to a hidden sibling and renamed on success
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriterOpenError{Path: s.path, Err: err}
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uniuri.NewLen(8)+".part")
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, &WriterOpenError{Path: s.path, Err: err}
	}
	published := false
	defer func() {
		if !published {
			file.Close()
			if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("Failed to remove partial output", "path", tmpPath, "error", err)
			}
		}
	}()

	writer, err := s.opts.NewWriter(plan.Container, file, s.logger)
	if err != nil {
		return nil, &WriterOpenError{Path: s.path, Err: err}
	}
	s.setState(StateOpened)

	var inputs []*Input
	for _, settings := range plan.Tracks {
		sink, err := writer.AddTrack(settings)
		if err != nil {
			rejected := &InputRejectedError{Track: settings.Kind, Err: err}
			s.logger.Warn("Input rejected, skipping track", "track", settings.Kind, "error", err)
			result.Warnings = append(result.Warnings, rejected)
			continue
		}
		inputs = append(inputs, newInput(settings.Kind, sink, s.opts.QueueSize, s.logger))
	}
	if len(inputs) == 0 {
		return nil, &NoUsableTracksError{}
	}

	tracks := make([][]core.Sample, len(inputs))
	for i, in := range inputs {
		tracks[i] = ex.Track(in.Kind())
	}
	result.StartPTS = StartPTS(tracks)
	if err := writer.Start(result.StartPTS); err != nil {
		return nil, &WriterStartError{Err: err}
	}

	s.setState(StateWriting)
	done := make(chan struct{})
	b := newBarrier(len(inputs), func() {
		s.setState(StateFinalizing)
		for _, in := range inputs {
			in.MarkFinished()
		}
		close(done)
	})
	for i, in := range inputs {
		in.Start()
		go func(in *Input, samples []core.Sample) {
			defer b.arrive()
			drain(in, samples)
		}(in, tracks[i])
	}
	<-done

	written := 0
	for _, in := range inputs {
		result.Samples[in.Kind()] = in.Written()
		written += in.Written()
		if err := in.Err(); err != nil {
			metrics.TrackAppendFailuresTotal.WithLabelValues(in.Kind().String()).Inc()
			result.Warnings = append(result.Warnings, &AppendFailureError{Track: in.Kind(), Written: in.Written(), Err: err})
		}
	}
	if written == 0 {
		return nil, &NoUsableTracksError{}
	}

	if err := writer.Finalize(); err != nil {
		return nil, &FinalizeError{Err: err}
	}
	if err := file.Sync(); err != nil {
		return nil, &FinalizeError{Err: err}
	}
	if err := file.Close(); err != nil {
		return nil, &FinalizeError{Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return nil, &FinalizeError{Err: err}
	}
	published = true
	return result, nil
}

// drain pushes samples into the input while it is ready and waits for its
// readiness signal otherwise. A sink failure aborts the track.
func drain(in *Input, samples []core.Sample) {
	for _, sample := range samples {
		for {
			err := in.Append(sample)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrInputNotReady) {
				return
			}
			<-in.Ready()
		}
	}
}

// Validate rejects extractions that are empty or where every non-empty
// track is shorter than min.
func Validate(ex buffer.Extraction, min time.Duration) error {
	if ex.IsEmpty() {
		return &InsufficientDataError{Reason: "no samples buffered"}
	}
	for _, kind := range core.Kinds {
		samples := ex.Track(kind)
		if len(samples) > 0 && core.TotalDuration(samples) >= min {
			return nil
		}
	}
	return &InsufficientDataError{Reason: fmt.Sprintf("every track is shorter than %s", min)}
}

// StartPTS returns the earliest timestamp across ascending tracks.
func StartPTS(tracks [][]core.Sample) time.Duration {
	var (
		start time.Duration
		found bool
	)
	for _, samples := range tracks {
		if len(samples) == 0 {
			continue
		}
		if !found || samples[0].PTS < start {
			start = samples[0].PTS
			found = true
		}
	}
	return start
}

// barrier runs fn exactly once after n arrivals.
type barrier struct {
	wg   sync.WaitGroup
	once sync.Once
	fn   func()
}

func newBarrier(n int, fn func()) *barrier {
	b := &barrier{fn: fn}
	b.wg.Add(n)
	go func() {
		b.wg.Wait()
		b.once.Do(b.fn)
	}()
	return b
}

func (b *barrier) arrive() {
	b.wg.Done()
}
