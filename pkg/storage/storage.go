// Package storage persists attachment files. A Backend addresses objects by
// Target; implementations include the local filesystem, an S3-compatible
// object store, a read-through cache wrapper and a deferred uploader that
// stages writes locally and pushes them to a remote store in the background.
package storage

import (
	"context"
	"io"
)

// Target identifies one stored object. Targets are derived from attachment
// attributes on every access and are never persisted.
type Target struct {
	Style       string `json:"style"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

// Backend defines the storage operations used by attachments.
type Backend interface {
	// Write stores the contents of r at the target, replacing any existing
	// object. Failures wrap ErrWrite or ErrConnection.
	Write(ctx context.Context, t Target, r io.Reader) error

	// Read opens the object at the target.
	// Returns ErrNotFound if it does not exist.
	Read(ctx context.Context, t Target) (io.ReadCloser, error)

	// Exists reports whether the object at the target is present.
	Exists(ctx context.Context, t Target) (bool, error)

	// Delete removes every target. Missing objects are not an error and do
	// not stop the remaining deletions.
	Delete(ctx context.Context, targets ...Target) error
}

// Keys returns the keys of targets in order.
func Keys(targets []Target) []string {
	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = t.Key
	}
	return keys
}
