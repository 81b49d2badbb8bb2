package mux

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
)

// ContainerWriter produces one output container.
//
// Tracks are added before Start. Sinks returned by AddTrack may be written
// from different goroutines; the writer serializes access to the output.
type ContainerWriter interface {
	// AddTrack registers a track, returning an error if the container cannot carry it.
	AddTrack(settings format.TrackSettings) (TrackSink, error)
	// Start writes the container header. Timestamps are written relative to startPTS.
	Start(startPTS time.Duration) error
	// Finalize completes the container. The underlying file is left open.
	Finalize() error
}

// WriterFactory creates a container writer on top of an output file.
type WriterFactory func(c format.Container, w io.WriteSeeker, logger *slog.Logger) (ContainerWriter, error)

// NewContainerWriter is the default WriterFactory.
func NewContainerWriter(c format.Container, w io.WriteSeeker, logger *slog.Logger) (ContainerWriter, error) {
	switch {
	case c.IsFMP4():
		return NewFMP4FileWriter(w, c, logger), nil
	case c == format.ContainerWebM:
		return NewWebMFileWriter(w, logger), nil
	case c == format.ContainerWAV:
		return NewWAVFileWriter(w, logger), nil
	}
	return nil, fmt.Errorf("unsupported container %s", c)
}

// scaleToTimescale converts a duration into track timescale units.
func scaleToTimescale(d time.Duration, timeScale uint32) int64 {
	if d <= 0 {
		return 0
	}
	// Split to avoid overflowing int64 on long offsets
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return sec*int64(timeScale) + rem*int64(timeScale)/int64(time.Second)
}
