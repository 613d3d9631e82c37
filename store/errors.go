package store

import "errors"

// Common store errors.
var (
	// ErrDuplicateName is returned when a create or import collides with a live entry.
	ErrDuplicateName = errors.New("entry name already exists")

	// ErrNotFound is returned for an unknown entry or an out-of-range cell index.
	ErrNotFound = errors.New("entry not found")
)
