package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/kirill555101/paperclip/pkg/lifecycle"
	"github.com/kirill555101/paperclip/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFilesystem(t *testing.T) (*storage.Filesystem, string) {
	t.Helper()
	dir := t.TempDir()

	fs, err := storage.NewFilesystem(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFilesystem() failed: %v", err)
	}

	lc := lifecycle.New()
	if err := fs.Start(lc); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	lc.WaitForStartup()

	return fs, dir
}

func write(t *testing.T, b storage.Backend, key, data string) {
	t.Helper()
	if err := b.Write(context.Background(), storage.Target{Key: key}, strings.NewReader(data)); err != nil {
		t.Fatalf("Write(%q) failed: %v", key, err)
	}
}

func read(t *testing.T, b storage.Backend, key string) string {
	t.Helper()
	rc, err := b.Read(context.Background(), storage.Target{Key: key})
	if err != nil {
		t.Fatalf("Read(%q) failed: %v", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestNewFilesystem_EmptyBasePath(t *testing.T) {
	if _, err := storage.NewFilesystem("", testLogger()); err == nil {
		t.Fatal("NewFilesystem() succeeded with empty root, want error")
	}
}

func TestFilesystem_StartCreatesDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "storage")
	fs, err := storage.NewFilesystem(target, testLogger())
	if err != nil {
		t.Fatalf("NewFilesystem() failed: %v", err)
	}

	lc := lifecycle.New()
	fs.Start(lc)
	lc.WaitForStartup()

	if _, err := os.Stat(target); os.IsNotExist(err) {
		t.Error("Start() did not create storage directory")
	}
}

func TestFilesystem_WriteRead(t *testing.T) {
	fs, dir := newFilesystem(t)

	write(t, fs, "avatars/1/thumb/a.png", "hello world")

	if got := read(t, fs, "avatars/1/thumb/a.png"); got != "hello world" {
		t.Errorf("Read() = %q, want %q", got, "hello world")
	}

	if _, err := os.Stat(filepath.Join(dir, "avatars", "1", "thumb", "a.png")); err != nil {
		t.Errorf("file not at expected path: %v", err)
	}
}

func TestFilesystem_WriteAbsoluteKeyInsideRoot(t *testing.T) {
	fs, dir := newFilesystem(t)
	key := filepath.Join(dir, "public", "avatars", "1", "original", "a.png")

	write(t, fs, key, "abs")

	if got := read(t, fs, key); got != "abs" {
		t.Errorf("Read() = %q, want abs", got)
	}
}

func TestFilesystem_Overwrite(t *testing.T) {
	fs, dir := newFilesystem(t)

	write(t, fs, "overwrite.txt", "original")
	write(t, fs, "overwrite.txt", "updated")

	if got := read(t, fs, "overwrite.txt"); got != "updated" {
		t.Errorf("Read() = %q after overwrite, want updated", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("root has %d entries, want 1 (no leftover temp files)", len(entries))
	}
}

func TestFilesystem_EmptyData(t *testing.T) {
	fs, _ := newFilesystem(t)

	write(t, fs, "empty.txt", "")

	if got := read(t, fs, "empty.txt"); got != "" {
		t.Errorf("Read() = %q, want empty", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestFilesystem_WriteFailureLeavesNoFile(t *testing.T) {
	fs, dir := newFilesystem(t)

	err := fs.Write(context.Background(), storage.Target{Key: "a/b.png"}, failingReader{})
	if !errors.Is(err, storage.ErrWrite) {
		t.Fatalf("Write() error = %v, want ErrWrite", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "a"))
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after failed write, want 0", len(entries))
	}
}

func TestFilesystem_ReadNotFound(t *testing.T) {
	fs, _ := newFilesystem(t)

	_, err := fs.Read(context.Background(), storage.Target{Key: "nonexistent.txt"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Read() error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestFilesystem_Exists(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx := context.Background()

	write(t, fs, "exists.txt", "content")

	ok, err := fs.Exists(ctx, storage.Target{Key: "exists.txt"})
	if err != nil || !ok {
		t.Errorf("Exists(existing) = %v, %v; want true, nil", ok, err)
	}

	ok, err = fs.Exists(ctx, storage.Target{Key: "missing.txt"})
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}

func TestFilesystem_InvalidKeys(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx := context.Background()

	keys := []string{
		"",
		"../escape.txt",
		"foo/../../escape.txt",
		"/absolute/outside.txt",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			err := fs.Write(ctx, storage.Target{Key: key}, strings.NewReader("malicious"))
			if !errors.Is(err, storage.ErrInvalidKey) {
				t.Errorf("Write(%q) error = %v, want %v", key, err, storage.ErrInvalidKey)
			}
			if _, err := fs.Exists(ctx, storage.Target{Key: key}); !errors.Is(err, storage.ErrInvalidKey) {
				t.Errorf("Exists(%q) error = %v, want %v", key, err, storage.ErrInvalidKey)
			}
		})
	}
}

func TestFilesystem_DeleteMany(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx := context.Background()

	write(t, fs, "a/original/x.png", "1")
	write(t, fs, "a/thumb/x.png", "2")

	err := fs.Delete(ctx,
		storage.Target{Key: "a/original/x.png"},
		storage.Target{Key: "a/missing/x.png"},
		storage.Target{Key: "a/thumb/x.png"},
	)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	for _, key := range []string{"a/original/x.png", "a/thumb/x.png"} {
		if ok, _ := fs.Exists(ctx, storage.Target{Key: key}); ok {
			t.Errorf("%s still exists after Delete()", key)
		}
	}
}

func TestFilesystem_DeleteContinuesPastInvalidKey(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx := context.Background()

	write(t, fs, "keep/going.png", "1")

	err := fs.Delete(ctx, storage.Target{Key: "../escape"}, storage.Target{Key: "keep/going.png"})
	if !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Delete() error = %v, want %v", err, storage.ErrInvalidKey)
	}
	if ok, _ := fs.Exists(ctx, storage.Target{Key: "keep/going.png"}); ok {
		t.Error("valid target not deleted after invalid one")
	}
}

func TestFilesystem_DeletePrunesEmptyParents(t *testing.T) {
	fs, dir := newFilesystem(t)
	ctx := context.Background()

	write(t, fs, "avatars/1/original/a.png", "1")
	write(t, fs, "avatars/2/original/b.png", "2")

	if err := fs.Delete(ctx, storage.Target{Key: "avatars/1/original/a.png"}); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "avatars", "1")); !os.IsNotExist(err) {
		t.Error("empty parent directories should be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "avatars", "2", "original", "b.png")); err != nil {
		t.Error("sibling file should remain")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("root must never be removed")
	}
}

func TestFilesystem_DeleteSuppressesDirectoryErrors(t *testing.T) {
	fs, _ := newFilesystem(t)
	ctx := context.Background()

	calls := 0
	storage.SetRemoveDir(fs, func(string) error {
		calls++
		return &os.PathError{Op: "remove", Path: "x", Err: syscall.EPIPE}
	})

	write(t, fs, "a/b/c.png", "1")

	if err := fs.Delete(ctx, storage.Target{Key: "a/b/c.png"}); err != nil {
		t.Fatalf("Delete() error = %v, want directory error suppressed", err)
	}
	if calls != 1 {
		t.Errorf("removeDir called %d times, want 1 (stop at first failure)", calls)
	}
	if ok, _ := fs.Exists(ctx, storage.Target{Key: "a/b/c.png"}); ok {
		t.Error("file should be deleted despite directory error")
	}
}

func TestFilesystem_DeletePrunesPastMissingDirectory(t *testing.T) {
	fs, dir := newFilesystem(t)
	ctx := context.Background()

	write(t, fs, "a/b/c.png", "1")

	var removed []string
	storage.SetRemoveDir(fs, func(path string) error {
		removed = append(removed, path)
		if path == filepath.Join(dir, "a", "b") {
			if err := os.Remove(path); err != nil {
				return err
			}
			return &os.PathError{Op: "remove", Path: path, Err: syscall.ENOENT}
		}
		return os.Remove(path)
	})

	if err := fs.Delete(ctx, storage.Target{Key: "a/b/c.png"}); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removeDir called for %v, want a/b and a", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); !os.IsNotExist(err) {
		t.Error("empty ancestor should be removed after a missing leaf directory")
	}
}
