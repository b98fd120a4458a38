// Package tempfile provides caller-owned temporary files for processed
// attachment output. A File stays on disk until Discard is called.
package tempfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a temporary file owned by whoever holds it.
type File struct {
	path string
}

// New creates an empty temporary file in dir (os.TempDir when empty).
// The ext suffix, if given, is kept so tools can infer the format.
func New(dir, ext string) (*File, error) {
	f, err := os.CreateTemp(dir, "paperclip-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &File{path: f.Name()}, nil
}

// FromReader spools r into a new temporary file.
func FromReader(dir, ext string, r io.Reader) (*File, error) {
	f, err := os.CreateTemp(dir, "paperclip-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &File{path: f.Name()}, nil
}

// Copy duplicates the file at path into a new temporary file.
func Copy(dir, path string) (*File, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	return FromReader(dir, filepath.Ext(path), src)
}

// Path returns the file's location on disk.
func (f *File) Path() string {
	return f.path
}

// Open opens the file for reading.
func (f *File) Open() (*os.File, error) {
	return os.Open(f.path)
}

// Size returns the current size in bytes.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Discard removes the file. Discarding twice is not an error.
func (f *File) Discard() error {
	if f == nil || f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
