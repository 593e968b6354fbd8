package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrUnsupported signals the backend cannot perform the operation for the given target.
	ErrUnsupported = errors.New("repository: unsupported")
)
