// Package natskv implements the remote store contract on NATS JetStream KV:
// the hosted realtime document store variant. Every entry is one KV document;
// change notifications come from a KV watcher.
package natskv

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/probelab/wafermap/remote"
)

// DefaultBucket is the KV bucket entries live in.
const DefaultBucket = "WAFERMAP_ENTRIES"

// Config configures a connection-owning store.
type Config struct {
	// URL is the NATS server URL.
	URL string
	// Bucket overrides DefaultBucket when set.
	Bucket string
	// Name is the connection name shown to the server.
	Name string
}

// Store is a remote.Store backed by a JetStream KV bucket.
type Store struct {
	nc      *nats.Conn
	ownConn bool
	kv      jetstream.KeyValue
	status  chan remote.Status
}

// Open connects to NATS and binds the KV bucket, creating it if needed.
// Connectivity transitions are reported through Status via the connection's
// reconnect handlers.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	status := make(chan remote.Status, 8)
	name := cfg.Name
	if name == "" {
		name = "wafermap"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			sendStatus(status, remote.Status{Connected: false, Message: fmt.Sprintf("disconnected: %v", err)})
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			sendStatus(status, remote.Status{Connected: true, Message: "reconnected to " + c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	s, err := NewWithConn(ctx, nc, cfg.Bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.ownConn = true
	s.status = status
	sendStatus(status, remote.Status{Connected: true, Message: "connected to " + nc.ConnectedUrl()})
	return s, nil
}

// NewWithConn binds the KV bucket on an existing connection, for example one
// pointed at an embedded server. The caller keeps ownership of the connection.
func NewWithConn(ctx context.Context, nc *nats.Conn, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("bind bucket %s: %w", bucket, err)
	}

	status := make(chan remote.Status, 8)
	sendStatus(status, remote.Status{Connected: true, Message: "connected to " + nc.ConnectedUrl()})
	return &Store{nc: nc, kv: kv, status: status}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "wafermap measurement entries",
		History:     5,
	})
}

// Put upserts the document at key, or deletes it when value is nil.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		if err := s.kv.Delete(ctx, key); err != nil && !isNotFound(err) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Subscribe snapshots the bucket, then watches all keys for updates. Delete
// and purge operations surface as tombstone events.
func (s *Store) Subscribe(ctx context.Context) (map[string][]byte, <-chan remote.Event, error) {
	snapshot := make(map[string][]byte)
	keys, err := s.kv.Keys(ctx)
	if err != nil && err != jetstream.ErrNoKeysFound {
		return nil, nil, fmt.Errorf("list keys: %w", err)
	}
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		snapshot[key] = entry.Value()
	}

	watcher, err := s.kv.Watch(ctx, ">", jetstream.UpdatesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("create KV watcher: %w", err)
	}

	events := make(chan remote.Event)
	go func() {
		defer close(events)
		defer func() { _ = watcher.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-watcher.Updates():
				if entry == nil {
					continue
				}
				ev := remote.Event{Key: entry.Key(), Value: entry.Value()}
				if op := entry.Operation(); op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge {
					ev.Value = nil
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return snapshot, events, nil
}

// Status reports connectivity transitions from the underlying connection.
func (s *Store) Status() <-chan remote.Status {
	return s.status
}

// Close drains the connection if this store opened it.
func (s *Store) Close() error {
	if s.ownConn {
		s.nc.Close()
	}
	return nil
}

func sendStatus(ch chan remote.Status, st remote.Status) {
	select {
	case ch <- st:
	default:
	}
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
