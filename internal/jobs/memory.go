package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirill555101/paperclip/pkg/lifecycle"
	"github.com/kirill555101/paperclip/pkg/storage"
)

type entry struct {
	job     storage.Job
	attempt int
}

// MemoryQueue is a buffered worker pool. Jobs do not survive a restart;
// the staging reaper re-enqueues their files.
type MemoryQueue struct {
	entries chan entry
	opts    Options
	logger  *slog.Logger
}

// NewMemoryQueue creates a queue. Workers start with Start or Run.
func NewMemoryQueue(opts Options, logger *slog.Logger) *MemoryQueue {
	opts = opts.withDefaults()
	return &MemoryQueue{
		entries: make(chan entry, opts.Buffer),
		opts:    opts,
		logger:  logger.With("system", "jobs", "queue", "memory"),
	}
}

// Enqueue buffers job without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, job storage.Job) error {
	return q.push(ctx, entry{job: job, attempt: 1})
}

func (q *MemoryQueue) push(ctx context.Context, e entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.entries <- e:
		return nil
	default:
		return fmt.Errorf("%w: %d buffered", ErrQueueFull, cap(q.entries))
	}
}

// Len returns the number of buffered jobs.
func (q *MemoryQueue) Len() int {
	return len(q.entries)
}

// Start runs the workers until the coordinator shuts down.
func (q *MemoryQueue) Start(lc *lifecycle.Coordinator, handle Handler) error {
	if handle == nil {
		return ErrNoHandler
	}
	lc.OnShutdown(func() {
		q.Run(lc.Context(), handle)
		q.logger.Info("workers stopped", "pending", q.Len())
	})
	return nil
}

// Run blocks, processing jobs on the configured number of workers until
// ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, handle Handler) {
	q.logger.Info("workers started", "workers", q.opts.Workers)

	var wg sync.WaitGroup
	for range q.opts.Workers {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-q.entries:
					q.process(ctx, e, handle)
				}
			}
		})
	}
	wg.Wait()
}

// Drain processes buffered jobs on the calling goroutine until the buffer
// is empty. Failed jobs are not retried. It returns the number of jobs that
// succeeded.
func (q *MemoryQueue) Drain(ctx context.Context, handle Handler) int {
	done := 0
	for {
		select {
		case <-ctx.Done():
			return done
		case e := <-q.entries:
			if err := handle(ctx, e.job); err != nil {
				q.logger.Error("job failed", "job", e.job.ID, "key", e.job.Target.Key, "error", err)
				continue
			}
			done++
		default:
			return done
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, e entry, handle Handler) {
	err := handle(ctx, e.job)
	if err == nil {
		return
	}

	if e.attempt >= q.opts.MaxAttempts || ctx.Err() != nil {
		q.logger.Error("job abandoned",
			"job", e.job.ID,
			"key", e.job.Target.Key,
			"attempts", e.attempt,
			"error", err)
		return
	}

	delay := q.opts.retryDelay(e.attempt)
	q.logger.Warn("job failed, retrying",
		"job", e.job.ID,
		"key", e.job.Target.Key,
		"attempt", e.attempt,
		"delay", delay,
		"error", err)

	next := entry{job: e.job, attempt: e.attempt + 1}
	time.AfterFunc(delay, func() {
		if err := q.push(ctx, next); err != nil {
			q.logger.Error("job retry dropped", "job", next.job.ID, "error", err)
		}
	})
}
