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
	"strings"
	"syscall"

	"github.com/kirill555101/paperclip/pkg/lifecycle"
)

// Filesystem stores objects as files beneath a root directory. Relative keys
// are joined to the root; absolute keys are accepted when they resolve
// inside it.
type Filesystem struct {
	root      string
	logger    *slog.Logger
	removeDir func(string) error
}

// NewFilesystem creates a filesystem backend rooted at root.
// The root is resolved to an absolute path; directory creation is deferred
// to Start.
func NewFilesystem(root string, logger *slog.Logger) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("base_path required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve base_path: %w", err)
	}

	return &Filesystem{
		root:      abs,
		logger:    logger.With("system", "storage", "backend", "filesystem"),
		removeDir: os.Remove,
	}, nil
}

// Root returns the absolute root directory.
func (f *Filesystem) Root() string {
	return f.root
}

// Start creates the root directory during lifecycle startup.
func (f *Filesystem) Start(lc *lifecycle.Coordinator) error {
	f.logger.Info("starting storage system", "base_path", f.root)

	lc.OnStartup(func() {
		if err := os.MkdirAll(f.root, 0755); err != nil {
			f.logger.Error("storage initialization failed", "error", err)
			return
		}
		f.logger.Info("storage directory initialized")
	})

	return nil
}

func (f *Filesystem) Write(ctx context.Context, t Target, r io.Reader) error {
	path, err := f.Path(t)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrWrite, mapFSError(err))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrWrite, mapFSError(err))
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod temp file: %w", ErrWrite, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp file: %w", ErrWrite, mapFSError(err))
	}

	return nil
}

func (f *Filesystem) Read(ctx context.Context, t Target) (io.ReadCloser, error) {
	path, err := f.Path(t)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, mapFSError(err)
	}
	return file, nil
}

func (f *Filesystem) Exists(ctx context.Context, t Target) (bool, error) {
	path, err := f.Path(t)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, mapFSError(err)
	}
	return true, nil
}

// Delete removes each target's file and then prunes parent directories that
// became empty, stopping at the root. Directory cleanup never fails the
// delete.
func (f *Filesystem) Delete(ctx context.Context, targets ...Target) error {
	var errs []error

	for _, t := range targets {
		path, err := f.Path(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Key, err))
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", t.Key, mapFSError(err)))
			continue
		}

		f.prune(filepath.Dir(path))
	}

	return errors.Join(errs...)
}

// Path resolves the target's key to a file path inside the root.
func (f *Filesystem) Path(t Target) (string, error) {
	if t.Key == "" {
		return "", ErrInvalidKey
	}

	var full string
	if filepath.IsAbs(t.Key) {
		full = filepath.Clean(t.Key)
	} else {
		cleaned := filepath.Clean(t.Key)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return "", ErrInvalidKey
		}
		full = filepath.Join(f.root, cleaned)
	}

	if !f.within(full) || full == f.root {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (f *Filesystem) within(path string) bool {
	return path == f.root || strings.HasPrefix(path, f.root+string(filepath.Separator))
}

func (f *Filesystem) prune(dir string) {
	for dir != f.root && f.within(dir) {
		if err := f.removeDir(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if !quietDirError(err) {
				f.logger.Warn("failed to remove empty directory", "dir", dir, "error", err)
			}
			return
		}
		dir = filepath.Dir(dir)
	}
}

// quietDirError reports errors expected while pruning: the directory still
// has entries. A directory that is already gone does not stop pruning.
func quietDirError(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

func mapFSError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return err
	}
}
