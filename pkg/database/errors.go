package database

import "errors"

// ErrNotReady is returned when the connection is used before Start has
// completed its ping.
var ErrNotReady = errors.New("database not ready")
