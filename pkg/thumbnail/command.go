package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result is the outcome of one external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner executes an argv vector. A non-zero exit is reported through
// Result.ExitCode; the error return is reserved for commands that could not
// be started at all.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// ExecRunner runs commands with os/exec. Timeout, when positive, bounds each
// invocation independently of the caller's context.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes argv and captures both output streams.
func (r ExecRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("run %s: %w", argv[0], ctxErr)
			}
			return res, fmt.Errorf("run %s: %w", argv[0], err)
		}
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", argv[0], err)
	}

	return res, nil
}
