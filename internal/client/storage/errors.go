package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no connection data exists
	ErrAuthNotFound = errors.New("not logged in")

	// ErrSnapshotNotFound indicates that no cached snapshot exists
	ErrSnapshotNotFound = errors.New("no cached snapshot")
)
