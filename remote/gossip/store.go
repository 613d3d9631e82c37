// Package gossip implements the remote store contract on a peer-to-peer
// ZeroMQ PUB/SUB mesh. Every node binds a publisher and subscribes to its
// peers; a put is broadcast as a whole-entry message and each node keeps its
// own replica. Convergence is last-writer-wins by arrival order, the same
// guarantee the rest of the system assumes.
package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"

	"github.com/probelab/wafermap/remote"
)

const (
	topic       = "wafermap"
	eventBuffer = 256

	// recvTimeout bounds the subscriber poll so Close can stop the loop.
	recvTimeout = 500 * time.Millisecond
)

// Message kinds on the mesh.
const (
	kindPut     = "put"
	kindDelete  = "del"
	kindSyncReq = "sync-request"
)

// Config configures one mesh node.
type Config struct {
	// NodeID identifies this node on the mesh; generated when empty.
	NodeID string
	// Bind is the publisher endpoint, e.g. "tcp://*:5757".
	Bind string
	// Peers are the publisher endpoints of the other nodes.
	Peers []string
}

// Store is a remote.Store replicated over a gossip mesh.
type Store struct {
	nodeID string
	pub    *zmq.Socket
	sub    *zmq.Socket

	mu     sync.Mutex
	values map[string][]byte
	subs   []chan remote.Event
	status chan remote.Status
	closed bool
	done   chan struct{}

	// stopped is closed by recvLoop on exit; Close waits on it before
	// touching the sockets.
	stopped chan struct{}
}

// Open binds the publisher, connects to all peers, and asks the mesh for a
// snapshot replay. PUB/SUB joins are not instantaneous; entries stream in as
// peers answer.
func Open(cfg Config) (*Store, error) {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("create publisher socket: %w", err)
	}
	if err := pub.Bind(cfg.Bind); err != nil {
		pub.Close()
		return nil, fmt.Errorf("bind publisher on %s: %w", cfg.Bind, err)
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("create subscriber socket: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := sub.Connect(peer); err != nil {
			pub.Close()
			sub.Close()
			return nil, fmt.Errorf("connect to peer %s: %w", peer, err)
		}
	}
	if err := sub.SetSubscribe(topic); err != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("subscribe to mesh topic: %w", err)
	}
	if err := sub.SetRcvtimeo(recvTimeout); err != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("set receive timeout: %w", err)
	}

	s := &Store{
		nodeID: nodeID,
		pub:    pub,
		sub:    sub,
		values:  make(map[string][]byte),
		status:  make(chan remote.Status, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.status <- remote.Status{
		Connected: true,
		Message:   fmt.Sprintf("gossip mesh on %s, %d peers", cfg.Bind, len(cfg.Peers)),
	}

	go s.recvLoop()
	go s.requestSnapshot()
	return s, nil
}

// Put updates the local replica, fans the event out locally (the writer must
// observe its own writes), and broadcasts the change to the mesh.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return remote.ErrClosed
	}

	kind := kindPut
	if value == nil {
		kind = kindDelete
		delete(s.values, key)
	} else {
		s.values[key] = append([]byte(nil), value...)
	}
	s.broadcast(remote.Event{Key: key, Value: value})

	_, err := s.pub.SendMessage(topic, kind, s.nodeID, key, value)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s of %s: %w", kind, key, err)
	}
	return nil
}

// Subscribe returns the current replica and a stream of later changes.
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

// Status reports the mesh endpoints once; peer liveness is not tracked.
func (s *Store) Status() <-chan remote.Status {
	return s.status
}

// Close leaves the mesh and closes both sockets.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	for _, sub := range s.subs {
		close(sub)
	}
	s.subs = nil
	s.mu.Unlock()

	// recvLoop notices done on its next receive timeout at the latest;
	// sockets close only once it has stopped using them.
	<-s.stopped
	s.sub.Close()
	s.pub.Close()
	return nil
}

// requestSnapshot asks peers to replay their entries. Sent after a short
// delay so the slow-joiner window of freshly connected SUB sockets passes.
func (s *Store) requestSnapshot() {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-s.done:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_, _ = s.pub.SendMessage(topic, kindSyncReq, s.nodeID, "", "")
}

func (s *Store) recvLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		frames, err := s.sub.RecvMessageBytes(0)
		if err != nil {
			continue // timeout or transient error, poll again
		}
		if len(frames) < 5 {
			continue
		}
		kind, origin, key, payload := string(frames[1]), string(frames[2]), string(frames[3]), frames[4]
		if origin == s.nodeID {
			continue // own broadcast looped back through a peer
		}
		s.handle(kind, key, payload)
	}
}

func (s *Store) handle(kind, key string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch kind {
	case kindPut:
		s.values[key] = append([]byte(nil), payload...)
		s.broadcast(remote.Event{Key: key, Value: payload})
	case kindDelete:
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			s.broadcast(remote.Event{Key: key, Value: nil})
		}
	case kindSyncReq:
		// A node joined; replay our replica so it converges.
		for k, v := range s.values {
			_, _ = s.pub.SendMessage(topic, kindPut, s.nodeID, k, v)
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
