package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryPutSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Put(ctx, "a", []byte("one")))

	snapshot, events, err := m.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("one")}, snapshot)

	require.NoError(t, m.Put(ctx, "b", []byte("two")))
	ev := recvEvent(t, events)
	assert.Equal(t, "b", ev.Key)
	assert.Equal(t, []byte("two"), ev.Value)
	assert.False(t, ev.Tombstone())
}

func TestMemoryTombstone(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Put(ctx, "a", []byte("one")))

	_, events, err := m.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "a", nil))
	ev := recvEvent(t, events)
	assert.Equal(t, "a", ev.Key)
	assert.True(t, ev.Tombstone())

	snapshot, _, err := m.Subscribe(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestMemorySelfEchoDelivered(t *testing.T) {
	// The contract requires the writer to observe its own writes; filtering
	// is the consumer's job.
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	_, events, err := m.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "self", []byte("x")))
	ev := recvEvent(t, events)
	assert.Equal(t, "self", ev.Key)
}

func TestMemoryFanOut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	_, a, err := m.Subscribe(ctx)
	require.NoError(t, err)
	_, b, err := m.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", []byte("v")))
	assert.Equal(t, "k", recvEvent(t, a).Key)
	assert.Equal(t, "k", recvEvent(t, b).Key)
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, events, err := m.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	_, ok := <-events
	assert.False(t, ok, "subscription must close with the store")

	assert.ErrorIs(t, m.Put(ctx, "k", []byte("v")), ErrClosed)
	_, _, err = m.Subscribe(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	defer m.Close()

	require.NoError(t, m.Put(ctx, "a", []byte("1")))
	require.NoError(t, m.Put(ctx, "a", []byte("2")))
	require.NoError(t, m.Put(ctx, "a", nil))
	assert.Equal(t, 2, m.PutCount())
	assert.Equal(t, 1, m.DeleteCount())
}
