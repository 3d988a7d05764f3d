package resource

import "errors"

var (
	// ErrInvalidSize is returned for empty sizes or sizes beyond the
	// backend's maximum texture size.
	ErrInvalidSize = errors.New("resource: invalid size")

	// ErrUnsupportedFormat is returned when the backend cannot hold the format.
	ErrUnsupportedFormat = errors.New("resource: unsupported format")

	// ErrAllocationFailed wraps backend allocation errors.
	ErrAllocationFailed = errors.New("resource: allocation failed")

	// ErrResourceLost is returned when locking a resource the backend lost.
	ErrResourceLost = errors.New("resource: resource lost")

	// ErrLocked is returned when a write lock conflicts with another lock.
	ErrLocked = errors.New("resource: resource is locked")

	// ErrDeleted is returned for operations on a deleted resource.
	ErrDeleted = errors.New("resource: resource deleted")
)
