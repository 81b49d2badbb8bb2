package capture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/h264"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Sink receives normalized samples.
type Sink interface {
	OnSample(sample core.Sample)
}

// Adapter turns capture callbacks into core samples and forwards them to a sink.
// Every call returns without waiting on disk or on a running save.
type Adapter struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	epoch  time.Time
	tracks map[core.TrackKind]*trackState
}

type trackState struct {
	format  *core.FormatDescriptor
	nextPTS time.Duration
	count   uint64
}

// NewAdapter creates an adapter forwarding to sink.
func NewAdapter(sink Sink, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		sink:   sink,
		logger: logger.With("component", "capture_adapter"),
		tracks: make(map[core.TrackKind]*trackState),
	}
}

func (a *Adapter) track(kind core.TrackKind) *trackState {
	t, ok := a.tracks[kind]
	if !ok {
		t = &trackState{}
		a.tracks[kind] = t
	}
	return t
}

// SetFormat sets the descriptor attached to samples of a kind that carry none.
func (a *Adapter) SetFormat(kind core.TrackKind, f *core.FormatDescriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.track(kind).format = f
}

// Format returns the current descriptor of a kind.
func (a *Adapter) Format(kind core.TrackKind) *core.FormatDescriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tracks[kind]; ok {
		return t.format
	}
	return nil
}

// OnSample forwards a sample captured for kind.
func (a *Adapter) OnSample(kind core.TrackKind, sample core.Sample) {
	if kind == core.KindUnknown {
		a.logger.Debug("Ignoring sample of unknown kind")
		return
	}

	a.mu.Lock()
	t := a.track(kind)
	sample.Kind = kind
	if sample.Format == nil {
		sample.Format = t.format
	}
	if kind == core.KindVideo {
		sample = a.prepareVideoLocked(t, sample)
	}
	if end := sample.End(); end > t.nextPTS {
		t.nextPTS = end
	}
	t.count++
	a.mu.Unlock()

	a.sink.OnSample(sample)
}

// prepareVideoLocked stores video in Annex-B framing, marks keyframes and
// learns in-band parameter sets.
func (a *Adapter) prepareVideoLocked(t *trackState, sample core.Sample) core.Sample {
	codec := core.CodecH264
	if sample.Format != nil && sample.Format.Codec != "" {
		codec = sample.Format.Codec
	}
	if h264.ValidateAVCData(sample.Data) {
		if annexB, err := h264.ConvertAVCToAnnexB(sample.Data); err == nil {
			sample.Data = annexB
		}
	}
	if !sample.IsKey && codec == core.CodecH264 {
		sample.IsKey = h264.IsKeyFrame(sample.Data)
	}
	if !sample.IsKey {
		return sample
	}

	if sample.Format != nil && len(sample.Format.SPS) > 0 && len(sample.Format.PPS) > 0 {
		return sample
	}
	ps := h264.ExtractParameterSets(codec, sample.Data)
	if !ps.Complete(codec) {
		return sample
	}

	f := core.FormatDescriptor{Codec: codec}
	if sample.Format != nil {
		f = *sample.Format
	}
	f.VPS, f.SPS, f.PPS = ps.VPS, ps.SPS, ps.PPS
	if f.Width == 0 || f.Height == 0 {
		if w, h, ok := h264.Dimensions(codec, ps.SPS); ok {
			f.Width, f.Height = w, h
		}
	}
	a.logger.Info("Video parameter sets received", "codec", codec, "width", f.Width, "height", f.Height)
	t.format = &f
	sample.Format = &f
	return sample
}

// OnMediaSample converts a pion media sample. Timestamps are taken relative
// to the first timestamped sample of any track; samples without a timestamp
// follow the end of the previous sample of their track.
func (a *Adapter) OnMediaSample(kind core.TrackKind, ms media.Sample) {
	a.mu.Lock()
	t := a.track(kind)
	pts := t.nextPTS
	if !ms.Timestamp.IsZero() {
		if a.epoch.IsZero() {
			a.epoch = ms.Timestamp
		}
		pts = ms.Timestamp.Sub(a.epoch)
		if pts < 0 {
			pts = 0
		}
	}
	a.mu.Unlock()

	a.OnSample(kind, core.Sample{
		PTS:      pts,
		Duration: ms.Duration,
		Data:     ms.Data,
	})
}

// Counts returns how many samples were forwarded per kind.
func (a *Adapter) Counts() map[core.TrackKind]uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[core.TrackKind]uint64, len(a.tracks))
	for kind, t := range a.tracks {
		out[kind] = t.count
	}
	return out
}

// Reset forgets timing and counters. Formats are kept, so a capture source
// does not have to resend its descriptor for a new buffering session.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.epoch = time.Time{}
	for _, t := range a.tracks {
		t.nextPTS = 0
		t.count = 0
	}
}
