package storage

import "errors"

// Storage errors returned by Backend implementations.
var (
	// ErrNotFound indicates the requested key does not exist in storage.
	ErrNotFound = errors.New("storage: key not found")

	// ErrPermissionDenied indicates insufficient permissions to access the key.
	ErrPermissionDenied = errors.New("storage: permission denied")

	// ErrInvalidKey indicates the key is malformed or escapes the storage root.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrWrite indicates an object could not be written.
	ErrWrite = errors.New("storage: write failed")

	// ErrConnection indicates the remote store could not be reached.
	ErrConnection = errors.New("storage: connection failed")
)
