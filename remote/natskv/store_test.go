package natskv

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/wafermap/remote"
)

// startServer runs an embedded JetStream-enabled server for the test.
func startServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func recvEvent(t *testing.T, ch <-chan remote.Event) remote.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return remote.Event{}
	}
}

func TestPutSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc := startServer(t)
	s, err := NewWithConn(ctx, nc, "TEST_ENTRIES")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "Wafer-A", []byte(`{"v":1}`)))

	snapshot, events, err := s.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), snapshot["Wafer-A"])

	require.NoError(t, s.Put(ctx, "Wafer-B", []byte(`{"v":2}`)))
	ev := recvEvent(t, events)
	assert.Equal(t, "Wafer-B", ev.Key)
	assert.Equal(t, []byte(`{"v":2}`), ev.Value)
}

func TestTombstone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc := startServer(t)
	s, err := NewWithConn(ctx, nc, "TEST_ENTRIES")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "doomed", []byte(`{}`)))

	_, events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "doomed", nil))
	ev := recvEvent(t, events)
	assert.Equal(t, "doomed", ev.Key)
	assert.True(t, ev.Tombstone())
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc := startServer(t)
	s, err := NewWithConn(ctx, nc, "TEST_ENTRIES")
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Put(ctx, "never-there", nil))
}

func TestSelfEchoDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc := startServer(t)
	s, err := NewWithConn(ctx, nc, "TEST_ENTRIES")
	require.NoError(t, err)
	defer s.Close()

	_, events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "self", []byte(`{}`)))
	ev := recvEvent(t, events)
	assert.Equal(t, "self", ev.Key, "the writer must observe its own writes")
}

func TestStatusReportsConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc := startServer(t)
	s, err := NewWithConn(ctx, nc, "TEST_ENTRIES")
	require.NoError(t, err)
	defer s.Close()

	select {
	case st := <-s.Status():
		assert.True(t, st.Connected)
	case <-time.After(time.Second):
		t.Fatal("no initial status")
	}
}
