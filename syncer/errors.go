package syncer

import "errors"

// Common sync errors. Both are non-fatal to local state: a failed push leaves
// the optimistic local value standing, and a failed read leaves the last
// applied state in place.
var (
	// ErrRemoteWrite is a network or store-layer failure on push.
	ErrRemoteWrite = errors.New("remote write failed")

	// ErrRemoteRead is a network, store-layer, or payload failure on read.
	ErrRemoteRead = errors.New("remote read failed")
)
