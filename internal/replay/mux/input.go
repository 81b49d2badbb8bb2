package mux

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
)

// DefaultQueueSize bounds how many samples an input accepts ahead of the writer.
const DefaultQueueSize = 64

// TrackSink receives batches of samples for one registered track.
// Implementations must not retain the slice after returning.
type TrackSink interface {
	WriteSamples(samples []core.Sample) error
}

// Input is a writer input for one track. It accepts samples through a
// bounded queue and signals readiness whenever the writer frees capacity.
type Input struct {
	kind   core.TrackKind
	sink   TrackSink
	queue  chan core.Sample
	ready  chan struct{}
	done   chan struct{}
	logger *slog.Logger

	finished   atomic.Bool
	finishOnce sync.Once
	startOnce  sync.Once

	mu      sync.Mutex
	err     error
	written int
}

func newInput(kind core.TrackKind, sink TrackSink, queueSize int, logger *slog.Logger) *Input {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Input{
		kind:   kind,
		sink:   sink,
		queue:  make(chan core.Sample, queueSize),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("track", kind.String()),
	}
}

// Kind returns the track kind the input carries.
func (in *Input) Kind() core.TrackKind {
	return in.kind
}

// Start launches the consumer feeding the sink.
func (in *Input) Start() {
	in.startOnce.Do(func() {
		go in.run()
	})
}

// Append queues a sample without blocking. It returns ErrInputNotReady when
// the queue is full and the sink's error once the sink has failed.
// Append must not be called concurrently with MarkFinished.
func (in *Input) Append(s core.Sample) error {
	if err := in.Err(); err != nil {
		return err
	}
	if in.finished.Load() {
		return ErrInputFinished
	}
	select {
	case in.queue <- s:
		return nil
	default:
		return ErrInputNotReady
	}
}

// Ready delivers a signal whenever the input may accept more data.
func (in *Input) Ready() <-chan struct{} {
	return in.ready
}

// MarkFinished closes the input and waits until every queued sample has
// reached the sink.
func (in *Input) MarkFinished() {
	in.finishOnce.Do(func() {
		in.finished.Store(true)
		close(in.queue)
	})
	in.Start()
	<-in.done
}

// Err returns the sink failure, if any.
func (in *Input) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// Written returns how many samples reached the sink.
func (in *Input) Written() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.written
}

func (in *Input) signalReady() {
	select {
	case in.ready <- struct{}{}:
	default:
	}
}

func (in *Input) run() {
	defer close(in.done)
	defer in.signalReady()

	maxBatch := cap(in.queue)
	for s := range in.queue {
		batch := make([]core.Sample, 1, maxBatch)
		batch[0] = s
	collect:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-in.queue:
				if !ok {
					break collect
				}
				batch = append(batch, next)
			default:
				break collect
			}
		}
		in.signalReady()

		// After a failure the queue is drained without writing
		if in.Err() != nil {
			continue
		}
		if err := in.sink.WriteSamples(batch); err != nil {
			in.logger.Warn("Writer refused samples, aborting track", "error", err, "written", in.Written())
			in.mu.Lock()
			in.err = err
			in.mu.Unlock()
			in.signalReady()
			continue
		}
		in.mu.Lock()
		in.written += len(batch)
		in.mu.Unlock()
	}
}
