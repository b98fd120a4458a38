package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/pkg/lifecycle"
	"github.com/kirill555101/paperclip/pkg/repository"
	"github.com/kirill555101/paperclip/pkg/storage"
)

// PostgresQueue stores jobs in the upload_jobs table so any process can
// run them. Workers claim jobs with FOR UPDATE SKIP LOCKED and hold a
// lease; a worker that dies releases its jobs when the lease expires.
type PostgresQueue struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

// NewPostgresQueue creates a queue over db.
func NewPostgresQueue(db *sql.DB, opts Options, logger *slog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:     db,
		opts:   opts.withDefaults(),
		logger: logger.With("system", "jobs", "queue", "postgres"),
	}
}

// Enqueue inserts job.
func (q *PostgresQueue) Enqueue(ctx context.Context, job storage.Job) error {
	const stmt = `
		INSERT INTO upload_jobs (id, style, key, content_type, staging_path, staged_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := q.db.ExecContext(ctx, stmt,
		job.ID,
		job.Target.Style,
		job.Target.Key,
		job.Target.ContentType,
		job.StagingPath,
		job.StagedAt,
		q.opts.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("insert upload job: %w", err)
	}
	return nil
}

// Stats counts runnable and exhausted jobs.
type Stats struct {
	Pending   int `json:"pending"`
	Exhausted int `json:"exhausted"`
}

// Stats reports the queue depth.
func (q *PostgresQueue) Stats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE attempts < max_attempts),
			COUNT(*) FILTER (WHERE attempts >= max_attempts)
		FROM upload_jobs`

	return repository.QueryOne(ctx, q.db, query, nil, func(s repository.Scanner) (Stats, error) {
		var st Stats
		err := s.Scan(&st.Pending, &st.Exhausted)
		return st, err
	})
}

// Start runs polling workers until the coordinator shuts down.
func (q *PostgresQueue) Start(lc *lifecycle.Coordinator, handle Handler) error {
	if handle == nil {
		return ErrNoHandler
	}
	lc.OnShutdown(func() {
		q.Run(lc.Context(), handle)
		q.logger.Info("workers stopped")
	})
	return nil
}

// Run blocks, polling for jobs on the configured number of workers until
// ctx is cancelled.
func (q *PostgresQueue) Run(ctx context.Context, handle Handler) {
	q.logger.Info("workers started", "workers", q.opts.Workers, "poll_interval", q.opts.PollInterval)

	var wg sync.WaitGroup
	for range q.opts.Workers {
		wg.Go(func() {
			ticker := time.NewTicker(q.opts.PollInterval)
			defer ticker.Stop()
			for {
				for q.RunOnce(ctx, handle) > 0 {
					// drain before sleeping
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		})
	}
	wg.Wait()
}

// RunOnce claims one batch and runs it. It returns the number of jobs
// claimed.
func (q *PostgresQueue) RunOnce(ctx context.Context, handle Handler) int {
	if ctx.Err() != nil {
		return 0
	}

	claimed, err := q.claim(ctx)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("claim failed", "error", err)
		}
		return 0
	}

	for _, c := range claimed {
		q.process(ctx, c, handle)
	}
	return len(claimed)
}

type claimedJob struct {
	job         storage.Job
	attempts    int
	maxAttempts int
}

func (q *PostgresQueue) claim(ctx context.Context) ([]claimedJob, error) {
	const stmt = `
		UPDATE upload_jobs
		SET attempts = attempts + 1, run_at = NOW() + make_interval(secs => $1)
		WHERE id IN (
			SELECT id FROM upload_jobs
			WHERE run_at <= NOW() AND attempts < max_attempts
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
		RETURNING id, style, key, content_type, staging_path, staged_at, attempts, max_attempts`

	return repository.QueryMany(ctx, q.db, stmt, []any{q.opts.Lease.Seconds(), q.opts.BatchSize}, scanClaimed)
}

func scanClaimed(s repository.Scanner) (claimedJob, error) {
	var (
		c  claimedJob
		id uuid.UUID
	)
	err := s.Scan(
		&id,
		&c.job.Target.Style,
		&c.job.Target.Key,
		&c.job.Target.ContentType,
		&c.job.StagingPath,
		&c.job.StagedAt,
		&c.attempts,
		&c.maxAttempts,
	)
	c.job.ID = id
	return c, err
}

func (q *PostgresQueue) process(ctx context.Context, c claimedJob, handle Handler) {
	runErr := handle(ctx, c.job)
	if runErr == nil {
		if _, err := q.db.ExecContext(ctx, `DELETE FROM upload_jobs WHERE id = $1`, c.job.ID); err != nil {
			q.logger.Error("failed to remove finished job", "job", c.job.ID, "error", err)
		}
		return
	}

	const stmt = `
		UPDATE upload_jobs
		SET last_error = $2, run_at = NOW() + make_interval(secs => $3)
		WHERE id = $1`

	delay := q.opts.retryDelay(c.attempts)
	if _, err := q.db.ExecContext(ctx, stmt, c.job.ID, runErr.Error(), delay.Seconds()); err != nil {
		q.logger.Error("failed to record job failure", "job", c.job.ID, "error", err)
	}

	if c.attempts >= c.maxAttempts {
		q.logger.Error("job exhausted",
			"job", c.job.ID,
			"key", c.job.Target.Key,
			"attempts", c.attempts,
			"error", runErr)
		return
	}
	q.logger.Warn("job failed, will retry",
		"job", c.job.ID,
		"key", c.job.Target.Key,
		"attempt", c.attempts,
		"delay", delay,
		"error", runErr)
}
