package thumbnail

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnidentifiable indicates the source could not be measured by identify.
	ErrUnidentifiable = errors.New("thumbnail: not recognized by identify")

	// ErrProcess indicates the convert invocation failed.
	ErrProcess = errors.New("thumbnail: processing failed")
)

// ProcessError carries the failed invocation so callers can surface the
// command and the tool's diagnostics.
type ProcessError struct {
	Command  []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s: %s exited %d", ErrProcess, strings.Join(e.Command, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrProcess and the underlying runner error.
func (e *ProcessError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProcess, e.Err}
	}
	return []error{ErrProcess}
}
