// Package remote defines the shared-store collaborator contract the sync
// engine bridges to. Implementations cover a hosted realtime document store
// (NATS JetStream KV), a peer-to-peer replicated store (ZeroMQ gossip mesh),
// a persisted local snapshot, and an in-process memory store that doubles as
// the local-only stub and the test double.
package remote

import "context"

// Event is one change observed on the store. A nil Value is a tombstone: the
// key was deleted. Events include the local process's own writes; filtering
// self-echo is the consumer's job, not the store's.
type Event struct {
	Key   string
	Value []byte
}

// Tombstone reports whether the event announces a deletion.
func (e Event) Tombstone() bool {
	return e.Value == nil
}

// Status is a best-effort connectivity signal. It is informational only and
// never blocks local mutation.
type Status struct {
	Connected bool
	Message   string
}

// Store is the minimal contract a backing store must satisfy.
//
// Put upserts the value at key, or tombstones the key when value is nil. The
// write must eventually be observable through a subscription, including by
// the writer itself.
//
// Subscribe returns a snapshot of all currently-live keys followed by a
// stream of subsequent change events. The stream is closed when ctx is done
// or the store is closed.
//
// Status returns a stream of connectivity transitions, or nil when the store
// has no liveness signal; callers degrade to a generic reachability check.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Subscribe(ctx context.Context) (map[string][]byte, <-chan Event, error)
	Status() <-chan Status
	Close() error
}
