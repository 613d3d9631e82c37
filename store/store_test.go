package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/wafermap/grid"
)

// recorder counts listener notifications.
type recorder struct {
	changed []string
	deleted []string
}

func (r *recorder) EntryChanged(g *grid.Grid) { r.changed = append(r.changed, g.Name) }
func (r *recorder) EntryDeleted(name string)  { r.deleted = append(r.deleted, name) }

func TestCreate(t *testing.T) {
	t.Run("registers entry and notifies", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)

		g, err := s.Create("Wafer-A", 8)
		require.NoError(t, err)
		assert.Equal(t, "Wafer-A", g.Name)
		assert.Equal(t, []string{"Wafer-A"}, rec.changed)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("duplicate name fails and leaves one entry", func(t *testing.T) {
		s := New()
		_, err := s.Create("Wafer-A", 8)
		require.NoError(t, err)

		_, err = s.Create("Wafer-A", 8)
		assert.ErrorIs(t, err, ErrDuplicateName)
		assert.Equal(t, []string{"Wafer-A"}, s.Names())
	})

	t.Run("name match is case sensitive", func(t *testing.T) {
		s := New()
		_, err := s.Create("wafer", 8)
		require.NoError(t, err)
		_, err = s.Create("Wafer", 8)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("invalid size rejected before registration", func(t *testing.T) {
		s := New()
		_, err := s.Create("bad", 9)
		assert.ErrorIs(t, err, grid.ErrUnsupportedSize)
		assert.Equal(t, 0, s.Len())
	})
}

func TestMutateCell(t *testing.T) {
	t.Run("cycles and notifies per mutation", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)
		_, err := s.Create("w", 8)
		require.NoError(t, err)

		state, err := s.MutateCell("w", 5)
		require.NoError(t, err)
		assert.Equal(t, grid.Success, state)

		state, err = s.MutateCell("w", 5)
		require.NoError(t, err)
		assert.Equal(t, grid.Failed, state)

		// create + 2 mutations
		assert.Len(t, rec.changed, 3)
	})

	t.Run("unknown name", func(t *testing.T) {
		s := New()
		_, err := s.MutateCell("missing", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("out of range index is not found", func(t *testing.T) {
		s := New()
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		_, err = s.MutateCell("w", 64)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.MutateCell("w", -1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("four cycles return to original state", func(t *testing.T) {
		s := New()
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			_, err = s.MutateCell("w", 12)
			require.NoError(t, err)
		}
		g, err := s.Get("w")
		require.NoError(t, err)
		assert.Equal(t, grid.Unmeasured, g.Cells[12])
	})
}

func TestMutateCellAt(t *testing.T) {
	s := New()
	_, err := s.Create("w", 8)
	require.NoError(t, err)

	state, err := s.MutateCellAt("w", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, grid.Success, state)

	g, err := s.Get("w")
	require.NoError(t, err)
	assert.Equal(t, grid.Success, g.Cells[5])

	_, err = s.MutateCellAt("w", 8, 0)
	assert.ErrorIs(t, err, grid.ErrInvalidCoordinate)
	_, err = s.MutateCellAt("w", 0, -1)
	assert.ErrorIs(t, err, grid.ErrInvalidCoordinate)
}

func TestClearAll(t *testing.T) {
	s := New()
	_, err := s.Create("w", 8)
	require.NoError(t, err)
	_, err = s.MutateCell("w", 3)
	require.NoError(t, err)

	require.NoError(t, s.ClearAll("w"))
	g, err := s.Get("w")
	require.NoError(t, err)
	for i, st := range g.Cells {
		require.Equalf(t, grid.Unmeasured, st, "cell %d", i)
	}

	assert.ErrorIs(t, s.ClearAll("missing"), ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Run("removes entry and notifies", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)
		_, err := s.Create("w", 8)
		require.NoError(t, err)

		require.NoError(t, s.Delete("w"))
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, []string{"w"}, rec.deleted)
	})

	t.Run("clears active focus", func(t *testing.T) {
		s := New()
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		require.NoError(t, s.SetActive("w"))

		require.NoError(t, s.Delete("w"))
		_, ok := s.Active()
		assert.False(t, ok)
	})

	t.Run("unknown entry", func(t *testing.T) {
		s := New()
		assert.ErrorIs(t, s.Delete("missing"), ErrNotFound)
	})
}

func TestReplaceFromImport(t *testing.T) {
	imported := func(t *testing.T) *grid.Grid {
		t.Helper()
		g, err := grid.New("w", 8)
		require.NoError(t, err)
		g.Cells[7] = grid.Failed
		return g
	}

	t.Run("installs new entry", func(t *testing.T) {
		s := New()
		require.NoError(t, s.ReplaceFromImport(imported(t), false))
		g, err := s.Get("w")
		require.NoError(t, err)
		assert.Equal(t, grid.Failed, g.Cells[7])
	})

	t.Run("collision without overwrite", func(t *testing.T) {
		s := New()
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		assert.ErrorIs(t, s.ReplaceFromImport(imported(t), false), ErrDuplicateName)
	})

	t.Run("collision with confirmed overwrite", func(t *testing.T) {
		s := New()
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		require.NoError(t, s.ReplaceFromImport(imported(t), true))
		g, err := s.Get("w")
		require.NoError(t, err)
		assert.Equal(t, grid.Failed, g.Cells[7])
	})

	t.Run("invalid grid leaves store untouched", func(t *testing.T) {
		s := New()
		g := imported(t)
		g.Cells = g.Cells[:5]
		err := s.ReplaceFromImport(g, false)
		assert.ErrorIs(t, err, grid.ErrCellCount)
		assert.Equal(t, 0, s.Len())
	})
}

func TestRemoteApplyGuard(t *testing.T) {
	t.Run("ApplyRemote suppresses notification", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)

		g, err := grid.New("remote", 8)
		require.NoError(t, err)
		require.NoError(t, s.ApplyRemote(g))

		assert.Empty(t, rec.changed, "remote apply must not echo a change notification")
		assert.Equal(t, 1, s.Len())
	})

	t.Run("RemoveRemote suppresses notification", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)
		_, err := s.Create("w", 8)
		require.NoError(t, err)
		rec.changed = nil

		s.RemoveRemote("w")
		assert.Empty(t, rec.deleted)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("RemoveRemote of absent entry is a no-op", func(t *testing.T) {
		s := New()
		s.RemoveRemote("never-there")
		assert.Equal(t, 0, s.Len())
	})

	t.Run("guard clears after apply", func(t *testing.T) {
		s := New()
		rec := &recorder{}
		s.SetListener(rec)

		g, err := grid.New("remote", 8)
		require.NoError(t, err)
		require.NoError(t, s.ApplyRemote(g))

		_, err = s.MutateCell("remote", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"remote"}, rec.changed, "local mutation after remote apply must notify")
	})
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	_, err := s.Create("w", 8)
	require.NoError(t, err)

	g, err := s.Get("w")
	require.NoError(t, err)
	g.Cells[0] = grid.Misaligned

	fresh, err := s.Get("w")
	require.NoError(t, err)
	assert.Equal(t, grid.Unmeasured, fresh.Cells[0], "caller mutation must not leak into store")
}
