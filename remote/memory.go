package remote

import (
	"context"
	"sync"
)

// eventBuffer is the per-subscriber channel depth. The sync engine drains
// events promptly; a subscriber that falls this far behind loses events.
const eventBuffer = 256

// Memory is an in-process Store. It backs the local-only/no-op configuration
// and the sync engine's tests; sharing one Memory between several engines
// models several clients sharing one remote store.
type Memory struct {
	mu      sync.Mutex
	values  map[string][]byte
	subs    []chan Event
	status  chan Status
	closed  bool
	puts    int
	deletes int
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string][]byte),
		status: make(chan Status, 1),
	}
}

// Put stores or tombstones key and fans the event out to every subscriber,
// the writer's own subscription included.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if value == nil {
		delete(m.values, key)
		m.deletes++
	} else {
		m.values[key] = append([]byte(nil), value...)
		m.puts++
	}

	ev := Event{Key: key, Value: cloneBytes(value)}
	for _, sub := range m.subs {
		select {
		case sub <- ev:
		default: // slow subscriber, drop
		}
	}
	return nil
}

// Subscribe returns the current snapshot and a stream of later changes.
func (m *Memory) Subscribe(ctx context.Context) (map[string][]byte, <-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}

	snapshot := make(map[string][]byte, len(m.values))
	for k, v := range m.values {
		snapshot[k] = append([]byte(nil), v...)
	}

	ch := make(chan Event, eventBuffer)
	m.subs = append(m.subs, ch)

	go func() {
		<-ctx.Done()
		m.unsubscribe(ch)
	}()

	return snapshot, ch, nil
}

// Status reports permanently connected: there is no network to lose.
func (m *Memory) Status() <-chan Status {
	select {
	case m.status <- Status{Connected: true, Message: "in-process store"}:
	default:
	}
	return m.status
}

// Close tears down all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, sub := range m.subs {
		close(sub)
	}
	m.subs = nil
	return nil
}

// PutCount returns the number of non-tombstone puts accepted. Test hook.
func (m *Memory) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// DeleteCount returns the number of tombstones accepted. Test hook.
func (m *Memory) DeleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

func (m *Memory) unsubscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subs {
		if sub == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
