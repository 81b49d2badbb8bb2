package session

import (
	"errors"

	"github.com/babelcloud/gbox/packages/replay/internal/replay/format"
)

var (
	// ErrSaveInProgress rejects a save while another one is running.
	ErrSaveInProgress = errors.New("a save is already in progress")
	// ErrNotBuffering rejects a save when nothing is being recorded.
	ErrNotBuffering = errors.New("replay buffering is not active")
)

// Status is the terminal result of a save request.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Outcome is delivered once per save request.
type Outcome struct {
	Status    Status
	Path      string
	Container format.Container
	// Warnings lists tracks that were skipped or truncated in a completed save.
	Warnings []error
	// Err is the reason for a failed or rejected save.
	Err error
}

// Reason returns the failure reason, or an empty string for a completed save.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// WarningMessages returns the warnings as strings.
func (o Outcome) WarningMessages() []string {
	out := make([]string, 0, len(o.Warnings))
	for _, w := range o.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Notifier is told about every completed save.
type Notifier interface {
	OnCompleted(path string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(path string)

func (f NotifierFunc) OnCompleted(path string) { f(path) }
