package mux

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// WAVFileWriter writes a single 16-bit little-endian PCM track as WAV.
type WAVFileWriter struct {
	writer  io.WriteSeeker
	logger  *slog.Logger
	mu      sync.Mutex
	enc     *wav.Encoder
	track   *wavTrack
	started bool
	closed  bool
}

type wavTrack struct {
	w        *WAVFileWriter
	kind     core.TrackKind
	format   *audio.Format
	channels int
	frames   int
}

// NewWAVFileWriter creates a new WAV file writer.
func NewWAVFileWriter(writer io.WriteSeeker, logger *slog.Logger) *WAVFileWriter {
	return &WAVFileWriter{
		writer: writer,
		logger: logger.With("component", "wav_writer"),
	}
}

// AddTrack accepts exactly one 16-bit PCM track.
func (w *WAVFileWriter) AddTrack(s format.TrackSettings) (TrackSink, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.started:
		return nil, fmt.Errorf("writer already started")
	case w.track != nil:
		return nil, fmt.Errorf("wav holds a single track, %s already registered", w.track.kind)
	case s.Codec != core.CodecLPCM:
		return nil, fmt.Errorf("wav cannot carry %s", s.Codec)
	case s.BitDepth != 16:
		return nil, fmt.Errorf("unsupported PCM bit depth %d", s.BitDepth)
	case s.ChannelCount <= 0 || s.SampleRate <= 0:
		return nil, fmt.Errorf("invalid PCM layout: %d Hz, %d channels", s.SampleRate, s.ChannelCount)
	}

	w.enc = wav.NewEncoder(w.writer, s.SampleRate, s.BitDepth, s.ChannelCount, wavPCMFormat)
	w.track = &wavTrack{
		w:        w,
		kind:     s.Kind,
		channels: s.ChannelCount,
		format:   &audio.Format{SampleRate: s.SampleRate, NumChannels: s.ChannelCount},
	}
	return w.track, nil
}

// Start has nothing to write up front; the encoder emits its header with the first frames.
func (w *WAVFileWriter) Start(_ time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.track == nil {
		return fmt.Errorf("no tracks registered")
	}
	w.started = true
	return nil
}

// WriteSamples appends PCM frames to the encoder.
func (t *wavTrack) WriteSamples(samples []core.Sample) error {
	w := t.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer closed")
	}

	var data []int
	for _, s := range samples {
		data = append(data, pcm16ToInts(s.Data)...)
	}
	if len(data) == 0 {
		return nil
	}
	if err := w.enc.Write(&audio.IntBuffer{Data: data, Format: t.format, SourceBitDepth: 16}); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	t.frames += len(data) / t.channels
	return nil
}

// pcm16ToInts converts interleaved little-endian 16-bit PCM into samples.
func pcm16ToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// Finalize patches the RIFF header sizes.
func (w *WAVFileWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if w.enc == nil {
		return fmt.Errorf("no tracks registered")
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("failed to close WAV encoder: %w", err)
	}
	w.logger.Info("WAV file writer finalized", "track", w.track.kind, "frames", w.track.frames)
	return nil
}
