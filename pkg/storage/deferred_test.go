package storage_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/kirill555101/paperclip/pkg/storage"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []storage.Job
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job storage.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) last(t *testing.T) storage.Job {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		t.Fatal("no jobs enqueued")
	}
	return q.jobs[len(q.jobs)-1]
}

func quickBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func newDeferred(t *testing.T) (*storage.Deferred, *storage.Filesystem, *fakeObjectStore, *recordingQueue) {
	t.Helper()
	staging, _ := newFilesystem(t)
	store := newFakeObjectStore()
	queue := &recordingQueue{}
	d := storage.NewDeferred(staging, newRemote(store, ""), queue, quickBackOff, testLogger())
	return d, staging, store, queue
}

func TestDeferred_WriteStagesAndEnqueues(t *testing.T) {
	d, staging, store, queue := newDeferred(t)

	write(t, d, "avatars/1/original/a.png", "payload")

	if got := read(t, staging, "avatars/1/original/a.png"); got != "payload" {
		t.Errorf("staged = %q, want payload", got)
	}
	if store.has("avatars/1/original/a.png") {
		t.Error("remote written synchronously, want deferred")
	}

	job := queue.last(t)
	if job.Target.Key != "avatars/1/original/a.png" {
		t.Errorf("job key = %q", job.Target.Key)
	}
	if job.StagedAt.IsZero() {
		t.Error("job StagedAt not set")
	}

	if got := read(t, d, "avatars/1/original/a.png"); got != "payload" {
		t.Errorf("Read() before upload = %q, want staged payload", got)
	}
}

func TestDeferred_UploadDiscardsStaging(t *testing.T) {
	d, staging, store, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/b.png", "payload")
	job := queue.last(t)

	if err := d.Upload(ctx, job); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	if !store.has("a/b.png") {
		t.Error("remote missing uploaded object")
	}
	if ok, _ := staging.Exists(ctx, storage.Target{Key: "a/b.png"}); ok {
		t.Error("staging copy kept after upload")
	}
	if got := read(t, d, "a/b.png"); got != "payload" {
		t.Errorf("Read() after upload = %q, want payload", got)
	}
}

func TestDeferred_UploadMatchesMicrosecondStagedAt(t *testing.T) {
	d, staging, store, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/b.png", "payload")
	job := queue.last(t)
	if job.StagedAt.Nanosecond()%int(time.Microsecond) != 0 {
		t.Errorf("StagedAt = %v, want microsecond precision", job.StagedAt)
	}

	// A stored job loses everything below the microsecond.
	job.StagedAt = job.StagedAt.Truncate(time.Microsecond).UTC()

	if err := d.Upload(ctx, job); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if !store.has("a/b.png") {
		t.Error("remote missing uploaded object")
	}
	if ok, _ := staging.Exists(ctx, storage.Target{Key: "a/b.png"}); ok {
		t.Error("staging copy kept after upload of a stored job")
	}
}

func TestDeferred_UploadIsIdempotent(t *testing.T) {
	d, _, _, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/b.png", "payload")
	job := queue.last(t)

	if err := d.Upload(ctx, job); err != nil {
		t.Fatalf("first Upload() failed: %v", err)
	}
	if err := d.Upload(ctx, job); err != nil {
		t.Errorf("second Upload() error = %v, want nil", err)
	}
}

func TestDeferred_UploadKeepsNewerStagedVersion(t *testing.T) {
	d, staging, store, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/b.png", "v1")
	first := queue.last(t)

	path, _ := staging.Path(storage.Target{Key: "a/b.png"})
	later := first.StagedAt.Add(time.Second)
	write(t, d, "a/b.png", "v2")
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	if err := d.Upload(ctx, first); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	if ok, _ := staging.Exists(ctx, storage.Target{Key: "a/b.png"}); !ok {
		t.Error("newer staged version discarded by stale job")
	}
	if !store.has("a/b.png") {
		t.Error("remote not written")
	}
}

func TestDeferred_UploadRetriesThenFails(t *testing.T) {
	d, staging, store, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/b.png", "payload")
	store.err = errors.New("503 slow down")

	if err := d.Upload(ctx, queue.last(t)); err == nil {
		t.Fatal("Upload() succeeded, want error")
	}
	if ok, _ := staging.Exists(ctx, storage.Target{Key: "a/b.png"}); !ok {
		t.Error("staging copy discarded after failed upload")
	}
}

func TestDeferred_DeleteRemovesBothCopies(t *testing.T) {
	d, staging, store, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/one.png", "1")
	if err := d.Upload(ctx, queue.last(t)); err != nil {
		t.Fatal(err)
	}
	write(t, d, "a/two.png", "2")
	pending := queue.last(t)

	if err := d.Delete(ctx, storage.Target{Key: "a/one.png"}, storage.Target{Key: "a/two.png"}); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if store.has("a/one.png") {
		t.Error("uploaded copy survived Delete()")
	}
	if ok, _ := staging.Exists(ctx, storage.Target{Key: "a/two.png"}); ok {
		t.Error("staged copy survived Delete()")
	}

	if err := d.Upload(ctx, pending); err != nil {
		t.Errorf("Upload() after Delete() error = %v", err)
	}
	if store.has("a/two.png") {
		t.Error("deleted object uploaded by pending job")
	}
}

func TestDeferred_EnqueueFailure(t *testing.T) {
	d, _, _, queue := newDeferred(t)
	queue.err = errors.New("queue down")

	err := d.Write(context.Background(), storage.Target{Key: "a.png"}, strings.NewReader("x"))
	if !errors.Is(err, storage.ErrWrite) {
		t.Errorf("Write() error = %v, want ErrWrite", err)
	}
}

func TestDeferred_Requeue(t *testing.T) {
	d, staging, _, queue := newDeferred(t)
	ctx := context.Background()

	write(t, d, "a/old.png", "old")
	path, _ := staging.Path(storage.Target{Key: "a/old.png"})
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	write(t, d, "a/new.png", "new")

	before := len(queue.jobs)
	n, err := d.Requeue(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("Requeue() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Requeue() = %d, want 1", n)
	}

	job := queue.jobs[before]
	if job.Target.Key != "a/old.png" {
		t.Errorf("requeued key = %q, want a/old.png", job.Target.Key)
	}
	if job.StagedAt.After(time.Now().Add(-30 * time.Minute)) {
		t.Errorf("StagedAt = %v, want the staged file's old mtime", job.StagedAt)
	}
}
