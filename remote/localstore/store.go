// Package localstore implements the remote store contract on a persisted
// local snapshot: one JSON file holding the whole entries mapping, read at
// open and rewritten after every accepted write. A filesystem watcher picks
// up writes from other processes sharing the file.
package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/probelab/wafermap/remote"
)

const eventBuffer = 256

// Store is a remote.Store persisted to a single snapshot file.
type Store struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	values map[string][]byte
	subs   []chan remote.Event
	status chan remote.Status
	closed bool
}

// Open loads the snapshot at path (creating its directory if needed) and
// starts watching for external changes to the file.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	s := &Store{
		path:   path,
		values: make(map[string][]byte),
		status: make(chan remote.Status, 1),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create snapshot watcher: %w", err)
	}
	// Watch the directory, not the file: atomic writers replace the file by
	// rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch snapshot directory: %w", err)
	}
	s.watcher = watcher
	go s.watchLoop()

	s.status <- remote.Status{Connected: true, Message: "local snapshot " + path}
	return s, nil
}

// Put updates the mapping, rewrites the snapshot, and fans the event out to
// subscribers, the writer included.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}

	if value == nil {
		delete(s.values, key)
	} else {
		s.values[key] = append([]byte(nil), value...)
	}

	if err := s.persist(); err != nil {
		return err
	}
	s.broadcast(remote.Event{Key: key, Value: value})
	return nil
}

// Subscribe returns the loaded snapshot and a stream of later changes, both
// local writes and externally observed file rewrites.
func (s *Store) Subscribe(ctx context.Context) (map[string][]byte, <-chan remote.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, remote.ErrClosed
	}

	snapshot := make(map[string][]byte, len(s.values))
	for k, v := range s.values {
		snapshot[k] = append([]byte(nil), v...)
	}

	ch := make(chan remote.Event, eventBuffer)
	s.subs = append(s.subs, ch)

	go func() {
		<-ctx.Done()
		s.unsubscribe(ch)
	}()

	return snapshot, ch, nil
}

// Status reports the snapshot location once; a local file has no liveness to
// lose.
func (s *Store) Status() <-chan remote.Status {
	return s.status
}

// Close stops the watcher and closes all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, sub := range s.subs {
		close(sub)
	}
	s.subs = nil
	return s.watcher.Close()
}

// load reads the snapshot file. A missing file is an empty store.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	for k, v := range snapshot {
		s.values[k] = append([]byte(nil), v...)
	}
	return nil
}

// persist writes the whole mapping atomically: temp file, then rename.
// Called with mu held.
func (s *Store) persist() error {
	snapshot := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		snapshot[k] = json.RawMessage(v)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// watchLoop reloads the snapshot when another process rewrites it and emits
// the difference as events. Our own writes produce no difference by the time
// the notification arrives, so they are not re-emitted.
func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// reload diffs the on-disk snapshot against memory and broadcasts changes.
func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return // mid-write or foreign content, wait for the next event
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for k, v := range snapshot {
		if !bytes.Equal(s.values[k], v) {
			s.values[k] = append([]byte(nil), v...)
			s.broadcast(remote.Event{Key: k, Value: v})
		}
	}
	for k := range s.values {
		if _, ok := snapshot[k]; !ok {
			delete(s.values, k)
			s.broadcast(remote.Event{Key: k, Value: nil})
		}
	}
}

// broadcast is called with mu held.
func (s *Store) broadcast(ev remote.Event) {
	if ev.Value != nil {
		ev.Value = append([]byte(nil), ev.Value...)
	}
	for _, sub := range s.subs {
		select {
		case sub <- ev:
		default: // slow subscriber, drop
		}
	}
}

func (s *Store) unsubscribe(ch chan remote.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(ch)
			return
		}
	}
}
