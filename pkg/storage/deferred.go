package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Job is a pending upload of a staged file to the remote backend.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Target      Target    `json:"target"`
	StagingPath string    `json:"staging_path"`
	StagedAt    time.Time `json:"staged_at"`
}

// Queue accepts upload jobs for background execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Deferred writes to a local staging area and uploads to a remote backend
// later through a Queue. Until the upload completes, reads are served from
// staging.
type Deferred struct {
	staging *Filesystem
	remote  Backend
	queue   Queue
	backoff func() backoff.BackOff
	logger  *slog.Logger
}

// NewDeferred creates a deferred backend. A nil newBackOff uses an
// exponential policy bounded to one minute.
func NewDeferred(staging *Filesystem, remote Backend, queue Queue, newBackOff func() backoff.BackOff, logger *slog.Logger) *Deferred {
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		}
	}

	return &Deferred{
		staging: staging,
		remote:  remote,
		queue:   queue,
		backoff: newBackOff,
		logger:  logger.With("system", "storage", "backend", "deferred"),
	}
}

// Write stages r synchronously and enqueues its upload.
func (d *Deferred) Write(ctx context.Context, t Target, r io.Reader) error {
	if err := d.staging.Write(ctx, t, r); err != nil {
		return err
	}

	job, err := d.job(t)
	if err != nil {
		return fmt.Errorf("%w: stat staged file: %w", ErrWrite, err)
	}

	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("%w: enqueue upload: %w", ErrWrite, err)
	}

	d.logger.Debug("upload queued", "job", job.ID, "key", t.Key)
	return nil
}

func (d *Deferred) Read(ctx context.Context, t Target) (io.ReadCloser, error) {
	rc, err := d.staging.Read(ctx, t)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		d.logger.Warn("staging read failed", "key", t.Key, "error", err)
	}
	return d.remote.Read(ctx, t)
}

func (d *Deferred) Exists(ctx context.Context, t Target) (bool, error) {
	if ok, err := d.staging.Exists(ctx, t); err == nil && ok {
		return true, nil
	}
	return d.remote.Exists(ctx, t)
}

// Delete removes staged and uploaded copies. A queued job for a deleted
// target becomes a no-op.
func (d *Deferred) Delete(ctx context.Context, targets ...Target) error {
	return errors.Join(
		d.staging.Delete(ctx, targets...),
		d.remote.Delete(ctx, targets...),
	)
}

// Upload pushes a staged file to the remote backend, retrying transient
// failures. It is safe to run more than once for the same job: a missing
// staging file means the work is already done. The staging copy is removed
// only when it is the version the job was created for.
func (d *Deferred) Upload(ctx context.Context, job Job) error {
	f, err := os.Open(job.StagingPath)
	if errors.Is(err, fs.ErrNotExist) {
		d.logger.Debug("staged file gone, skipping upload", "job", job.ID, "key", job.Target.Key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}

	op := func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		err := d.remote.Write(ctx, job.Target, f)
		if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrPermissionDenied) {
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.RetryNotify(op, backoff.WithContext(d.backoff(), ctx), func(err error, wait time.Duration) {
		d.logger.Warn("upload failed, retrying", "job", job.ID, "key", job.Target.Key, "wait", wait, "error", err)
	})
	f.Close()
	if err != nil {
		return fmt.Errorf("upload %s: %w", job.Target.Key, err)
	}

	info, err := os.Stat(job.StagingPath)
	if errors.Is(err, fs.ErrNotExist) {
		// Deleted while uploading; the remote copy is now an orphan.
		if err := d.remote.Delete(ctx, job.Target); err != nil {
			d.logger.Warn("failed to remove orphaned upload", "key", job.Target.Key, "error", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat staged file: %w", err)
	}

	if !stagedTime(info.ModTime()).Equal(stagedTime(job.StagedAt)) {
		d.logger.Debug("staged file replaced, keeping it for the next job", "key", job.Target.Key)
		return nil
	}

	if err := d.staging.Delete(ctx, job.Target); err != nil {
		d.logger.Warn("failed to discard staged file", "key", job.Target.Key, "error", err)
	}

	d.logger.Info("upload complete", "job", job.ID, "key", job.Target.Key)
	return nil
}

// Requeue enqueues jobs for staged files older than age, recovering uploads
// whose jobs were lost. It returns the number of jobs enqueued.
func (d *Deferred) Requeue(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	root := d.staging.Root()
	count := 0

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() || isTempName(entry.Name()) {
			return nil
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		t := Target{Key: filepath.ToSlash(rel)}
		if mt, err := mimetype.DetectFile(path); err == nil {
			t.ContentType = mt.String()
		}

		job, err := d.job(t)
		if err != nil {
			return nil
		}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue %s: %w", t.Key, err)
		}
		count++
		return nil
	})

	return count, err
}

func (d *Deferred) job(t Target) (Job, error) {
	path, err := d.staging.Path(t)
	if err != nil {
		return Job{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Job{}, err
	}

	return Job{
		ID:          uuid.New(),
		Target:      t,
		StagingPath: path,
		StagedAt:    stagedTime(info.ModTime()),
	}, nil
}

// stagedTime reduces a modification time to the microsecond precision
// that survives a PostgreSQL timestamptz round-trip.
func stagedTime(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

func isTempName(name string) bool {
	return len(name) > 0 && name[0] == '.' && filepath.Ext(name) == ".tmp"
}
