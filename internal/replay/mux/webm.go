package mux

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
	"github.com/babelcloud/gbox/packages/replay/internal/replay/h264"
	"github.com/babelcloud/gbox/packages/replay/internal/version"
)

const webmCloseTimeout = 10 * time.Second

// WebMFileWriter writes a WebM file.
// Blocks are collected per track and written in timestamp order on Finalize,
// since Matroska clusters need the tracks interleaved.
type WebMFileWriter struct {
	writer   io.Writer
	logger   *slog.Logger
	mu       sync.Mutex
	tracks   []*webmTrack
	startPTS time.Duration
	started  bool
	closed   bool
}

type webmTrack struct {
	w      *WebMFileWriter
	kind   core.TrackKind
	entry  webm.TrackEntry
	blocks []webmBlock
}

type webmBlock struct {
	keyframe  bool
	timestamp time.Duration
	data      []byte
}

// NewWebMFileWriter creates a new WebM file writer.
func NewWebMFileWriter(writer io.Writer, logger *slog.Logger) *WebMFileWriter {
	return &WebMFileWriter{
		writer: writer,
		logger: logger.With("component", "webm_writer"),
	}
}

// writerCloser lets the block writer close its output without closing the file,
// and reports when that happened.
type writerCloser struct {
	writer io.Writer
	logger *slog.Logger
	closed chan struct{}
	once   sync.Once
	failed bool
}

func (wc *writerCloser) Write(p []byte) (n int, err error) {
	if wc.failed {
		return 0, io.ErrClosedPipe
	}
	n, err = wc.writer.Write(p)
	if err != nil {
		wc.logger.Warn("Write error detected, marking writer as closed",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
			"data_size", len(p),
			"bytes_written", n)
		wc.failed = true
	}
	return n, err
}

func (wc *writerCloser) Close() error {
	wc.once.Do(func() { close(wc.closed) })
	return nil
}

// AddTrack registers an H.264 video or Opus audio track.
func (w *WebMFileWriter) AddTrack(s format.TrackSettings) (TrackSink, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil, fmt.Errorf("writer already started")
	}

	number := uint64(len(w.tracks) + 1)
	entry := webm.TrackEntry{
		Name:        s.Kind.String(),
		TrackNumber: number,
		TrackUID:    number,
	}

	switch s.Codec {
	case core.CodecH264:
		private := h264.AVCDecoderConfig(s.SPS, s.PPS)
		if private == nil {
			return nil, fmt.Errorf("missing H.264 parameter sets")
		}
		entry.CodecID = "V_MPEG4/ISO/AVC"
		entry.TrackType = 1
		entry.CodecPrivate = private
		if s.FrameRate > 0 {
			entry.DefaultDuration = uint64(time.Second) / uint64(s.FrameRate)
		}
		entry.Video = &webm.Video{
			PixelWidth:  uint64(s.Width),
			PixelHeight: uint64(s.Height),
		}
	case core.CodecOpus:
		entry.CodecID = "A_OPUS"
		entry.TrackType = 2
		entry.CodecPrivate = opusHead(s.ChannelCount, s.SampleRate)
		entry.Audio = &webm.Audio{
			SamplingFrequency: float64(s.SampleRate),
			Channels:          uint64(s.ChannelCount),
		}
	default:
		return nil, fmt.Errorf("webm cannot carry %s", s.Codec)
	}

	t := &webmTrack{w: w, kind: s.Kind, entry: entry}
	w.tracks = append(w.tracks, t)
	return t, nil
}

// opusHead builds the identification header required as Opus codec private data.
func opusHead(channels, inputSampleRate int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], 312) // pre-skip
	binary.LittleEndian.PutUint32(head[12:], uint32(inputSampleRate))
	return head
}

// Start records the session start. The header is written on Finalize.
func (w *WebMFileWriter) Start(startPTS time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.tracks) == 0 {
		return fmt.Errorf("no tracks registered")
	}
	w.startPTS = startPTS
	w.started = true
	return nil
}

// WriteSamples collects blocks for the track.
func (t *webmTrack) WriteSamples(samples []core.Sample) error {
	w := t.w
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if !w.started {
		return fmt.Errorf("writer not started")
	}

	for _, s := range samples {
		if len(s.Data) == 0 {
			continue
		}
		data := s.Data
		keyframe := true
		if t.kind == core.KindVideo {
			avc, err := h264.ConvertAnnexBToAVC(s.Data)
			if err != nil {
				return fmt.Errorf("failed to convert AnnexB to AVCC: %w", err)
			}
			data = avc
			keyframe = s.IsKey
		}
		t.blocks = append(t.blocks, webmBlock{
			keyframe:  keyframe,
			timestamp: s.PTS - w.startPTS,
			data:      data,
		})
	}
	return nil
}

// Finalize writes the header and every collected block in timestamp order.
func (w *WebMFileWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if !w.started {
		return fmt.Errorf("writer not started")
	}
	w.closed = true

	entries := make([]webm.TrackEntry, len(w.tracks))
	for i, t := range w.tracks {
		entries[i] = t.entry
	}

	wc := &writerCloser{writer: w.writer, logger: w.logger, closed: make(chan struct{})}
	var fatal error
	writers, err := webm.NewSimpleBlockWriter(wc, entries,
		mkvcore.WithSegmentInfo(&webm.Info{
			TimecodeScale: 1000000, // 1ms
			MuxingApp:     "gbox-replay",
			WritingApp:    version.WritingApp(),
		}),
		mkvcore.WithOnFatalHandler(func(err error) {
			w.logger.Warn("WebM error occurred", "error", err)
			fatal = err
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create WebM writer: %w", err)
	}

	type pending struct {
		track int
		block webmBlock
	}
	var all []pending
	for i, t := range w.tracks {
		for _, b := range t.blocks {
			all = append(all, pending{track: i, block: b})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].block.timestamp < all[j].block.timestamp
	})

	var writeErr error
	for _, p := range all {
		ms := int64(p.block.timestamp / time.Millisecond)
		if _, err := writers[p.track].Write(p.block.keyframe, ms, p.block.data); err != nil {
			writeErr = fmt.Errorf("failed to write %s block: %w", w.tracks[p.track].kind, err)
			break
		}
	}

	for _, bw := range writers {
		if err := bw.Close(); err != nil {
			w.logger.Warn("Block writer close error", "error", err)
		}
	}

	select {
	case <-wc.closed:
	case <-time.After(webmCloseTimeout):
		return fmt.Errorf("timed out waiting for WebM writer to flush")
	}

	switch {
	case writeErr != nil:
		return writeErr
	case fatal != nil:
		return fatal
	case wc.failed:
		return fmt.Errorf("write to output failed")
	}

	w.logger.Info("WebM file writer finalized", "blocks", len(all), "tracks", len(w.tracks))
	return nil
}
