package localstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/wafermap/remote"
)

func snapshotPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "entries.json")
}

func TestPutPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := snapshotPath(t)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "Wafer-A", []byte(`{"v":1}`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	snapshot, _, err := reopened.Subscribe(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(snapshot["Wafer-A"]))
}

func TestTombstoneRemovesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	s, err := Open(snapshotPath(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "a", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, "a", nil))

	snapshot, _, err := s.Subscribe(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestLocalWritesReachSubscribers(t *testing.T) {
	ctx := context.Background()
	s, err := Open(snapshotPath(t))
	require.NoError(t, err)
	defer s.Close()

	_, events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "k", []byte(`{"v":2}`)))
	select {
	case ev := <-events:
		assert.Equal(t, "k", ev.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no event for local write")
	}
}

func TestExternalRewriteObserved(t *testing.T) {
	ctx := context.Background()
	path := snapshotPath(t)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	// Another process rewrites the snapshot out from under us.
	external := map[string]json.RawMessage{"fresh": json.RawMessage(`{"v":9}`)}
	data, err := json.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, "fresh", ev.Key)
		assert.JSONEq(t, `{"v":9}`, string(ev.Value))
	case <-time.After(5 * time.Second):
		t.Fatal("external snapshot rewrite never surfaced")
	}
}

func TestMissingFileIsEmptyStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(snapshotPath(t))
	require.NoError(t, err)
	defer s.Close()

	snapshot, _, err := s.Subscribe(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s, err := Open(snapshotPath(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put(ctx, "k", []byte(`{}`)), remote.ErrClosed)
}
