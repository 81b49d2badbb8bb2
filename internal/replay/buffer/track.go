package buffer

import (
	"errors"
	"sync"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
)

// ErrOutOfOrder is returned when a sample's timestamp precedes the buffer tail.
var ErrOutOfOrder = errors.New("sample timestamp precedes buffer tail")

// TrackBuffer retains the most recent samples of a single track, bounded by
// the sum of their durations.
//
// Eviction removes samples from the head while the retained duration exceeds
// the window, but never removes the last remaining sample.
type TrackBuffer struct {
	mu        sync.Mutex
	kind      core.TrackKind
	samples   []core.Sample
	total     time.Duration
	maxWindow time.Duration
}

// NewTrackBuffer creates an empty buffer retaining at most maxWindow of samples.
func NewTrackBuffer(kind core.TrackKind, maxWindow time.Duration) *TrackBuffer {
	return &TrackBuffer{
		kind:      kind,
		maxWindow: maxWindow,
	}
}

// Kind returns the track kind the buffer holds.
func (b *TrackBuffer) Kind() core.TrackKind {
	return b.kind
}

// Append adds a sample to the tail and evicts from the head as needed.
// It returns the number of evicted samples.
func (b *TrackBuffer) Append(s core.Sample) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.samples); n > 0 && s.PTS < b.samples[n-1].PTS {
		return 0, ErrOutOfOrder
	}

	b.samples = append(b.samples, s)
	b.total += s.Duration
	return b.evictLocked(), nil
}

func (b *TrackBuffer) evictLocked() int {
	evicted := 0
	for b.total > b.maxWindow && len(b.samples) > 1 {
		b.total -= b.samples[0].Duration
		// Drop the payload reference before reslicing past it
		b.samples[0] = core.Sample{}
		b.samples = b.samples[1:]
		evicted++
	}
	return evicted
}

// Window returns the trailing samples whose timestamps fall within d of the
// newest sample, in ascending order. The result is a copy owned by the caller.
func (b *TrackBuffer) Window(d time.Duration) []core.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.samples)
	if n == 0 || d <= 0 {
		return nil
	}

	cutoff := b.samples[n-1].PTS - d
	i := n - 1
	for i >= 0 && b.samples[i].PTS >= cutoff {
		i--
	}

	out := make([]core.Sample, n-(i+1))
	copy(out, b.samples[i+1:])
	return out
}

// TotalDuration returns the sum of retained sample durations.
func (b *TrackBuffer) TotalDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Len returns the number of retained samples.
func (b *TrackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Span returns the timestamps of the oldest and newest retained samples.
func (b *TrackBuffer) Span() (first, last time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0, 0, false
	}
	return b.samples[0].PTS, b.samples[len(b.samples)-1].PTS, true
}

// SetMaxWindow changes the retention window. Shrinking evicts immediately.
func (b *TrackBuffer) SetMaxWindow(d time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxWindow = d
	return b.evictLocked()
}

// Clear removes all samples.
func (b *TrackBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.total = 0
}
