// Package jobs runs deferred upload jobs: an in-process worker pool, a
// PostgreSQL-backed queue shared between processes, and a cron reaper that
// recovers staged files whose jobs were lost.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/kirill555101/paperclip/pkg/storage"
)

var (
	// ErrQueueFull is returned when the in-memory buffer has no room.
	ErrQueueFull = errors.New("jobs: queue full")

	// ErrNoHandler is returned when workers start without a handler.
	ErrNoHandler = errors.New("jobs: handler required")
)

// Handler executes one job. *storage.Deferred's Upload method is the
// handler in production.
type Handler func(ctx context.Context, job storage.Job) error

// Options tunes worker behaviour. Zero fields take defaults.
type Options struct {
	Workers      int
	Buffer       int
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	return o
}

// retryDelay grows linearly with the attempt number.
func (o Options) retryDelay(attempt int) time.Duration {
	return o.RetryDelay * time.Duration(attempt)
}
