package mux

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

const videoTimeScale = 90000

// stripADTSHeader removes the ADTS header if present and returns the raw AAC payload.
func stripADTSHeader(data []byte) []byte {
	if len(data) < 7 {
		return data
	}
	// ADTS syncword 12 bits: 0xFFF
	if data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		headerLen := 7
		if (data[1] & 0x01) == 0 { // CRC present
			headerLen = 9
		}
		if len(data) > headerLen {
			return data[headerLen:]
		}
	}
	return data
}

// FMP4FileWriter writes fragmented MP4 (mp4, mov and m4a outputs).
// Every batch handed to a track sink becomes one fragment.
type FMP4FileWriter struct {
	writer         io.Writer
	container      format.Container
	logger         *slog.Logger
	tracks         []*fmp4Track
	startPTS       time.Duration
	mu             sync.Mutex // protects concurrent writes
	started        bool
	closed         bool
	sequenceNumber uint32
}

type fmp4Track struct {
	w         *FMP4FileWriter
	id        int
	kind      core.TrackKind
	codec     mp4.Codec
	timeScale uint32
	nextDTS   int64 // end of the last written sample, in track timescale units
	sampleNum int
}

// NewFMP4FileWriter creates a new fMP4 file writer.
func NewFMP4FileWriter(writer io.Writer, container format.Container, logger *slog.Logger) *FMP4FileWriter {
	return &FMP4FileWriter{
		writer:         writer,
		container:      container,
		logger:         logger.With("component", "fmp4_writer", "container", container.String()),
		sequenceNumber: 1,
	}
}

// AddTrack registers a track and builds its sample entry.
func (w *FMP4FileWriter) AddTrack(s format.TrackSettings) (TrackSink, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil, fmt.Errorf("writer already started")
	}
	if !w.container.Supports(s.Codec) {
		return nil, fmt.Errorf("%s cannot carry %s", w.container, s.Codec)
	}

	codec, timeScale, err := fmp4Codec(s)
	if err != nil {
		return nil, err
	}

	t := &fmp4Track{
		w:         w,
		id:        len(w.tracks) + 1,
		kind:      s.Kind,
		codec:     codec,
		timeScale: timeScale,
	}
	w.tracks = append(w.tracks, t)
	w.logger.Debug("Track added", "track", s.Kind, "codec", s.Codec, "id", t.id, "timescale", timeScale)
	return t, nil
}

func fmp4Codec(s format.TrackSettings) (mp4.Codec, uint32, error) {
	switch s.Codec {
	case core.CodecH264:
		if len(s.SPS) == 0 || len(s.PPS) == 0 {
			return nil, 0, fmt.Errorf("missing H.264 parameter sets")
		}
		return &mp4.CodecH264{SPS: s.SPS, PPS: s.PPS}, videoTimeScale, nil

	case core.CodecH265:
		if len(s.VPS) == 0 || len(s.SPS) == 0 || len(s.PPS) == 0 {
			return nil, 0, fmt.Errorf("missing H.265 parameter sets")
		}
		return &mp4.CodecH265{VPS: s.VPS, SPS: s.SPS, PPS: s.PPS}, videoTimeScale, nil

	case core.CodecAAC:
		var config mpeg4audio.AudioSpecificConfig
		if len(s.AudioConfig) > 0 {
			if err := config.Unmarshal(s.AudioConfig); err != nil {
				return nil, 0, fmt.Errorf("invalid AAC config: %w", err)
			}
		} else {
			config = mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   s.SampleRate,
				ChannelCount: s.ChannelCount,
			}
		}
		return &mp4.CodecMPEG4Audio{Config: config}, uint32(config.SampleRate), nil

	case core.CodecOpus:
		// Opus in MP4 always runs on a 48 kHz clock
		return &mp4.CodecOpus{ChannelCount: s.ChannelCount}, 48000, nil

	case core.CodecLPCM:
		return &mp4.CodecLPCM{
			LittleEndian: true,
			BitDepth:     s.BitDepth,
			SampleRate:   s.SampleRate,
			ChannelCount: s.ChannelCount,
		}, uint32(s.SampleRate), nil
	}
	return nil, 0, fmt.Errorf("unsupported codec %q", s.Codec)
}

// Start writes the fMP4 initialization segment.
func (w *FMP4FileWriter) Start(startPTS time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}
	if len(w.tracks) == 0 {
		return fmt.Errorf("no tracks registered")
	}

	init := &fmp4.Init{}
	for _, t := range w.tracks {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.id,
			TimeScale: t.timeScale,
			Codec:     t.codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("failed to marshal init segment: %w", err)
	}
	initBytes := buf.Bytes()
	if _, err := w.writer.Write(initBytes); err != nil {
		return fmt.Errorf("failed to write init segment: %w", err)
	}

	w.startPTS = startPTS
	w.started = true
	w.logger.Info("fMP4 init segment written", "size", len(initBytes), "tracks", len(w.tracks))
	return nil
}

// WriteSamples writes a batch of samples of one track as a single fragment.
func (t *fmp4Track) WriteSamples(samples []core.Sample) error {
	w := t.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if !w.started {
		return fmt.Errorf("init segment not written yet")
	}

	var (
		fSamples []*fmp4.Sample
		dts      []int64
		ends     []int64
	)
	for _, s := range samples {
		payload, err := t.payload(s)
		if err != nil {
			return err
		}
		if len(payload) == 0 {
			w.logger.Debug("Skipping empty sample", "track", t.kind, "pts", s.PTS)
			continue
		}
		fSamples = append(fSamples, &fmp4.Sample{
			IsNonSyncSample: t.kind == core.KindVideo && !s.IsKey,
			Payload:         payload,
		})
		dts = append(dts, scaleToTimescale(s.PTS-w.startPTS, t.timeScale))
		ends = append(ends, scaleToTimescale(s.End()-w.startPTS, t.timeScale))
	}
	if len(fSamples) == 0 {
		return nil
	}

	// Decode times never step backwards across fragments
	if dts[0] < t.nextDTS {
		dts[0] = t.nextDTS
	}
	for i := range fSamples {
		var dur int64
		if i+1 < len(dts) {
			dur = dts[i+1] - dts[i]
		} else {
			dur = ends[i] - dts[i]
		}
		if dur <= 0 {
			dur = 1
		}
		fSamples[i].Duration = uint32(dur)
		if i+1 < len(dts) && dts[i+1] < dts[i]+dur {
			dts[i+1] = dts[i] + dur
		}
	}

	part := &fmp4.Part{
		SequenceNumber: w.sequenceNumber,
		Tracks: []*fmp4.PartTrack{{
			ID:       t.id,
			BaseTime: uint64(dts[0]),
			Samples:  fSamples,
		}},
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("failed to marshal %s fragment: %w", t.kind, err)
	}
	partBytes := buf.Bytes()
	if _, err := w.writer.Write(partBytes); err != nil {
		return fmt.Errorf("failed to write %s fragment: %w", t.kind, err)
	}

	last := len(fSamples) - 1
	t.nextDTS = dts[last] + int64(fSamples[last].Duration)
	t.sampleNum += len(fSamples)
	w.sequenceNumber++

	w.logger.Debug("Fragment written", "track", t.kind, "samples", len(fSamples), "baseTime", dts[0], "size", len(partBytes))
	return nil
}

func (t *fmp4Track) payload(s core.Sample) ([]byte, error) {
	switch {
	case t.kind == core.KindVideo:
		// MP4 samples are length-prefixed
		avcData, err := h264.ConvertAnnexBToAVC(s.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert AnnexB to AVCC: %w", err)
		}
		return avcData, nil
	case isAAC(t.codec):
		return stripADTSHeader(s.Data), nil
	}
	return s.Data, nil
}

func isAAC(c mp4.Codec) bool {
	_, ok := c.(*mp4.CodecMPEG4Audio)
	return ok
}

// Finalize closes the writer. Fragments are self-contained, so nothing is
// rewritten at the end.
func (w *FMP4FileWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if !w.started {
		return fmt.Errorf("init segment not written")
	}
	w.closed = true

	attrs := []any{"fragments", w.sequenceNumber - 1}
	for _, t := range w.tracks {
		attrs = append(attrs, t.kind.String(), t.sampleNum)
	}
	w.logger.Info("fMP4 file writer finalized", attrs...)
	return nil
}
