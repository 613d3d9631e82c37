package remote

import "errors"

// Common remote store errors.
var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("remote store is closed")
)
