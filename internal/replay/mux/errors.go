package mux

import (
	"errors"
	"fmt"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/core"
)

var (
	// ErrInputNotReady is returned by Input.Append when the input cannot take
	// more data yet. Wait on Input.Ready and retry.
	ErrInputNotReady = errors.New("input not ready for more data")
	// ErrInputFinished is returned when appending to a finished input.
	ErrInputFinished = errors.New("input already finished")
)

// InsufficientDataError means the extraction is too short to produce a file.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient data: " + e.Reason
}

// WriterOpenError means the output file or container writer could not be created.
type WriterOpenError struct {
	Path string
	Err  error
}

func (e *WriterOpenError) Error() string {
	return fmt.Sprintf("failed to open writer for %s: %v", e.Path, e.Err)
}

func (e *WriterOpenError) Unwrap() error { return e.Err }

// WriterStartError means the container refused to begin its session.
type WriterStartError struct {
	Err error
}

func (e *WriterStartError) Error() string {
	return fmt.Sprintf("failed to start writing session: %v", e.Err)
}

func (e *WriterStartError) Unwrap() error { return e.Err }

// InputRejectedError means the container cannot carry a track. The track is
// skipped and the save continues with the others.
type InputRejectedError struct {
	Track core.TrackKind
	Err   error
}

func (e *InputRejectedError) Error() string {
	return fmt.Sprintf("%s input rejected: %v", e.Track, e.Err)
}

func (e *InputRejectedError) Unwrap() error { return e.Err }

// NoUsableTracksError means no track could be registered or written.
type NoUsableTracksError struct{}

func (e *NoUsableTracksError) Error() string {
	return "no usable tracks"
}

// AppendFailureError means a track was aborted mid-drain. The output is
// still published with the samples written before the failure.
type AppendFailureError struct {
	Track   core.TrackKind
	Written int
	Err     error
}

func (e *AppendFailureError) Error() string {
	return fmt.Sprintf("%s track aborted after %d samples: %v", e.Track, e.Written, e.Err)
}

func (e *AppendFailureError) Unwrap() error { return e.Err }

// FinalizeError means the container could not be completed.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("failed to finalize output: %v", e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }
