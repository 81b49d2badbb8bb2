package format

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/buffer"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/h264"
)

// MinimumDuration is the shortest track worth writing.
const MinimumDuration = time.Second

// Codec efficiency factors applied to the raw pixel rate.
const (
	legacyCodecEfficiency    = 0.9
	efficientCodecEfficiency = 0.5
)

// TrackSettings are the negotiated output parameters of one track.
type TrackSettings struct {
	Kind  core.TrackKind
	Codec core.Codec

	Width     int
	Height    int
	FrameRate int
	VPS       []byte
	SPS       []byte
	PPS       []byte

	SampleRate   int
	ChannelCount int
	BitDepth     int
	AudioConfig  []byte

	BitRate int // bits per second
}

// Plan describes the output of a save.
type Plan struct {
	Kind      SessionKind
	Container Container
	Tracks    []TrackSettings
}

// Negotiator derives output settings from extracted samples and preferences.
type Negotiator struct {
	prefs       Preferences
	minDuration time.Duration
	logger      *slog.Logger
}

// NewNegotiator creates a negotiator. A non-positive minDuration uses MinimumDuration.
func NewNegotiator(prefs Preferences, minDuration time.Duration, logger *slog.Logger) *Negotiator {
	if minDuration <= 0 {
		minDuration = MinimumDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{
		prefs:       prefs,
		minDuration: minDuration,
		logger:      logger.With("component", "format_negotiator"),
	}
}

// MinDuration returns the minimum track duration.
func (n *Negotiator) MinDuration() time.Duration {
	return n.minDuration
}

// SessionKindFor is audio-only when video is missing or shorter than min.
func SessionKindFor(video []core.Sample, min time.Duration) SessionKind {
	if len(video) == 0 || core.TotalDuration(video) < min {
		return SessionAudioOnly
	}
	return SessionAudioVideo
}

// Negotiate builds the output plan for an extraction. Tracks whose format
// cannot be described are logged and left out.
func (n *Negotiator) Negotiate(ex buffer.Extraction) *Plan {
	plan := &Plan{Kind: SessionKindFor(ex.Track(core.KindVideo), n.minDuration)}

	for _, kind := range core.Kinds {
		samples := ex.Track(kind)
		if len(samples) == 0 {
			continue
		}

		var (
			settings TrackSettings
			err      error
		)
		if kind == core.KindVideo {
			if plan.Kind != SessionAudioVideo {
				n.logger.Info("Video track too short, saving audio only",
					"duration", core.TotalDuration(samples), "minimum", n.minDuration)
				continue
			}
			settings, err = n.VideoSettings(samples)
		} else {
			settings, err = n.AudioSettings(kind, samples)
		}
		if err != nil {
			n.logger.Warn("Skipping track without usable format", "track", kind, "error", err)
			continue
		}
		plan.Tracks = append(plan.Tracks, settings)
	}

	container, ok := ContainerFor(plan.Kind, n.prefs)
	if !ok {
		n.logger.Warn("Unsupported output format preference, using default",
			"session", plan.Kind, "audio_format", n.prefs.AudioFormat,
			"video_format", n.prefs.VideoFormat, "container", container)
	}
	for _, t := range plan.Tracks {
		if !container.Supports(t.Codec) {
			fallback := DefaultContainer(plan.Kind)
			n.logger.Warn("Container cannot carry track codec, using default",
				"container", container, "track", t.Kind, "codec", t.Codec, "fallback", fallback)
			container = fallback
			break
		}
	}
	plan.Container = container

	n.logger.Debug("Output negotiated", "session", plan.Kind, "container", plan.Container, "tracks", len(plan.Tracks))
	return plan
}

// VideoSettings derives video output settings from the first described sample.
func (n *Negotiator) VideoSettings(samples []core.Sample) (TrackSettings, error) {
	f := core.FirstFormat(samples)
	if f == nil {
		return TrackSettings{}, fmt.Errorf("video track has no format description")
	}

	codec := f.Codec
	if codec == "" {
		codec = core.CodecH264
		if n.prefs.VideoCodec == VideoCodecEfficient {
			codec = core.CodecH265
		}
	}
	if !codec.IsVideo() {
		return TrackSettings{}, fmt.Errorf("codec %q is not a video codec", codec)
	}

	ps := h264.ParameterSetsFromSamples(codec, samples)
	width, height := f.Width, f.Height
	if width <= 0 || height <= 0 {
		w, h, ok := h264.Dimensions(codec, ps.SPS)
		if !ok {
			return TrackSettings{}, fmt.Errorf("video dimensions unknown")
		}
		width, height = w, h
	}

	frameRate := n.prefs.FrameRate
	if frameRate <= 0 {
		frameRate = DefaultPreferences().FrameRate
	}

	return TrackSettings{
		Kind:      core.KindVideo,
		Codec:     codec,
		Width:     width,
		Height:    height,
		FrameRate: frameRate,
		VPS:       ps.VPS,
		SPS:       ps.SPS,
		PPS:       ps.PPS,
		BitRate:   VideoBitRate(width, height, frameRate, codec, n.prefs.QualityFactor),
	}, nil
}

// VideoBitRate is width × height × (frameRate/8) × codec efficiency × quality.
func VideoBitRate(width, height, frameRate int, codec core.Codec, quality float64) int {
	efficiency := legacyCodecEfficiency
	if codec == core.CodecH265 {
		efficiency = efficientCodecEfficiency
	}
	if quality <= 0 {
		quality = 1.0
	}
	return int(math.Round(float64(width*height) * (float64(frameRate) / 8) * efficiency * quality))
}

// AudioSettings derives audio output settings from the first described sample.
func (n *Negotiator) AudioSettings(kind core.TrackKind, samples []core.Sample) (TrackSettings, error) {
	f := core.FirstFormat(samples)
	if f == nil {
		return TrackSettings{}, fmt.Errorf("audio track has no format description")
	}
	if f.Codec.IsVideo() || f.Codec == "" {
		return TrackSettings{}, fmt.Errorf("codec %q is not an audio codec", f.Codec)
	}

	settings := TrackSettings{
		Kind:         kind,
		Codec:        f.Codec,
		SampleRate:   f.SampleRate,
		ChannelCount: f.ChannelCount,
		BitDepth:     f.BitDepth,
		AudioConfig:  f.AudioConfig,
	}
	if settings.SampleRate <= 0 {
		settings.SampleRate = 48000
	}
	if settings.ChannelCount <= 0 {
		settings.ChannelCount = 2
	}

	switch {
	case f.Codec.IsLossy():
		quality := n.prefs.AudioQuality
		if quality <= 0 {
			quality = AudioQualityHigh
		}
		settings.BitRate = int(quality) * 1000
	case f.Codec == core.CodecLPCM:
		if settings.BitDepth <= 0 {
			settings.BitDepth = 16
		}
		settings.BitRate = settings.SampleRate * settings.ChannelCount * settings.BitDepth
	}
	return settings, nil
}
