package core

import "time"

// Sample is one encoded media sample captured for a track.
// Samples are immutable once appended; Data is shared read-only.
type Sample struct {
	Kind     TrackKind
	PTS      time.Duration     // Presentation timestamp on the capture clock
	Duration time.Duration     // Playback duration of the sample
	Format   *FormatDescriptor // Encoding description, shared by all samples of a track
	Data     []byte            // Encoded payload (Annex-B or AVCC for video, raw frames for audio)
	IsKey    bool              // Whether this is a sync sample (IDR for video)
}

// End returns the presentation time right after the sample.
func (s Sample) End() time.Duration {
	return s.PTS + s.Duration
}

// TotalDuration sums the durations of the given samples.
func TotalDuration(samples []Sample) time.Duration {
	var total time.Duration
	for _, s := range samples {
		total += s.Duration
	}
	return total
}

// FirstFormat returns the descriptor of the first sample that carries one.
func FirstFormat(samples []Sample) *FormatDescriptor {
	for _, s := range samples {
		if s.Format != nil {
			return s.Format
		}
	}
	return nil
}
