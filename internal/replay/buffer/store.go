package buffer

import (
	"log/slog"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/metrics"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
)

// Extraction is a snapshot of the trailing window of every track.
// It is independent of later appends and evictions.
type Extraction map[core.TrackKind][]core.Sample

// Track returns the extracted samples of one track.
func (e Extraction) Track(kind core.TrackKind) []core.Sample {
	return e[kind]
}

// Duration returns the summed sample duration of one extracted track.
func (e Extraction) Duration(kind core.TrackKind) time.Duration {
	return core.TotalDuration(e[kind])
}

// IsEmpty reports whether no track holds any sample.
func (e Extraction) IsEmpty() bool {
	for _, samples := range e {
		if len(samples) > 0 {
			return false
		}
	}
	return true
}

// TrackStats summarizes one buffered track.
type TrackStats struct {
	Kind     string        `json:"kind"`
	Samples  int           `json:"samples"`
	Duration time.Duration `json:"duration"`
	FirstPTS time.Duration `json:"first_pts"`
	LastPTS  time.Duration `json:"last_pts"`
}

// Store holds one TrackBuffer per track kind and routes samples to them.
type Store struct {
	tracks map[core.TrackKind]*TrackBuffer
	logger *slog.Logger
}

// NewStore creates a store whose tracks each retain at most maxWindow.
func NewStore(maxWindow time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		tracks: make(map[core.TrackKind]*TrackBuffer, len(core.Kinds)),
		logger: logger.With("component", "replay_store"),
	}
	for _, kind := range core.Kinds {
		s.tracks[kind] = NewTrackBuffer(kind, maxWindow)
	}
	return s
}

// Append routes a sample to its track. Samples of unknown kinds and samples
// out of timestamp order are logged and dropped.
func (s *Store) Append(sample core.Sample) {
	track, ok := s.tracks[sample.Kind]
	if !ok {
		s.logger.Debug("Dropping sample of unknown track kind", "kind", int(sample.Kind), "pts", sample.PTS)
		metrics.SamplesDroppedTotal.WithLabelValues("unknown_kind").Inc()
		return
	}

	evicted, err := track.Append(sample)
	if err != nil {
		s.logger.Debug("Dropping sample", "track", sample.Kind, "pts", sample.PTS, "error", err)
		metrics.SamplesDroppedTotal.WithLabelValues("out_of_order").Inc()
		return
	}

	label := sample.Kind.String()
	metrics.SamplesAppendedTotal.WithLabelValues(label).Inc()
	if evicted > 0 {
		metrics.SamplesEvictedTotal.WithLabelValues(label).Add(float64(evicted))
	}
	metrics.BufferedSeconds.WithLabelValues(label).Set(track.TotalDuration().Seconds())
}

// Extract returns the trailing window d of every track. Each track is windowed
// independently against its own newest sample.
func (s *Store) Extract(d time.Duration) Extraction {
	out := make(Extraction, len(s.tracks))
	for kind, track := range s.tracks {
		out[kind] = track.Window(d)
	}
	return out
}

// Track returns the buffer for a kind.
func (s *Store) Track(kind core.TrackKind) (*TrackBuffer, bool) {
	track, ok := s.tracks[kind]
	return track, ok
}

// TotalDuration returns the retained duration of one track.
func (s *Store) TotalDuration(kind core.TrackKind) time.Duration {
	if track, ok := s.tracks[kind]; ok {
		return track.TotalDuration()
	}
	return 0
}

// SetMaxWindow changes the retention window of every track.
func (s *Store) SetMaxWindow(d time.Duration) {
	for _, track := range s.tracks {
		if evicted := track.SetMaxWindow(d); evicted > 0 {
			metrics.SamplesEvictedTotal.WithLabelValues(track.Kind().String()).Add(float64(evicted))
		}
	}
}

// ClearAll empties every track.
func (s *Store) ClearAll() {
	for kind, track := range s.tracks {
		track.Clear()
		metrics.BufferedSeconds.WithLabelValues(kind.String()).Set(0)
	}
}

// Stats reports per-track occupancy in mux order.
func (s *Store) Stats() []TrackStats {
	stats := make([]TrackStats, 0, len(core.Kinds))
	for _, kind := range core.Kinds {
		track := s.tracks[kind]
		st := TrackStats{
			Kind:     kind.String(),
			Samples:  track.Len(),
			Duration: track.TotalDuration(),
		}
		st.FirstPTS, st.LastPTS, _ = track.Span()
		stats = append(stats, st)
	}
	return stats
}
