// Package store provides the entry store: the canonical in-memory mapping of
// entry name to measurement grid that the rest of the process reads. All
// mutations are validated here before any state changes, and every accepted
// mutation is reported to an attached listener (the sync engine) for push to
// the remote store.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/probelab/wafermap/grid"
)

// Listener receives change notifications for accepted mutations. EntryChanged
// is handed a private copy of the grid; the listener may retain it.
//
// Notifications for remotely-originated applies are suppressed by the store's
// re-entrancy guard, so a listener that pushes to a remote store never echoes
// an incoming change back out.
type Listener interface {
	EntryChanged(g *grid.Grid)
	EntryDeleted(name string)
}

// Store owns the name->grid mapping for one client session, including the
// active-entry focus and the re-entrancy guard. It is safe for concurrent use;
// listener callbacks run inside the store's critical section, serializing
// mutation handling the way a single-threaded event loop would.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*grid.Grid
	active   string
	listener Listener

	// applyingRemote suppresses listener notifications while a remote
	// change is being applied. Only touched under mu.
	applyingRemote bool
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*grid.Grid)}
}

// SetListener attaches the change listener. At most one listener is supported.
func (s *Store) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Create adds a new all-unmeasured grid under name. The name must not already
// be present (case-sensitive exact match).
func (s *Store) Create(name string, size int) (*grid.Grid, error) {
	g, err := grid.New(name, size)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return nil, fmt.Errorf("create %q: %w", name, ErrDuplicateName)
	}
	s.entries[name] = g
	s.notifyChanged(g)
	return g.Clone(), nil
}

// Delete removes the entry. The caller is responsible for any confirmation
// gate; deletion here is unconditional.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	delete(s.entries, name)
	if s.active == name {
		s.active = ""
	}
	s.notifyDeleted(name)
	return nil
}

// Get returns a copy of the named grid.
func (s *Store) Get(name string) (*grid.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return g.Clone(), nil
}

// Names returns all entry names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MutateCell cycles the state of cell index in the named grid and stamps the
// mutation time. An unknown name or an out-of-range index is a not-found
// condition and leaves the store untouched.
func (s *Store) MutateCell(name string, index int) (grid.CellState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.entries[name]
	if !ok {
		return 0, fmt.Errorf("mutate %q: %w", name, ErrNotFound)
	}
	if !g.InRange(index) {
		return 0, fmt.Errorf("mutate %q cell %d: index outside [0,%d): %w",
			name, index, g.Size*g.Size, ErrNotFound)
	}
	if err := g.CycleCell(index, time.Now().UTC()); err != nil {
		return 0, err
	}
	s.notifyChanged(g)
	return g.Cells[index], nil
}

// MutateCellAt is MutateCell addressed by (row, col). Coordinates outside
// [0, size) fail with the grid's coordinate error before any mutation.
func (s *Store) MutateCellAt(name string, row, col int) (grid.CellState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.entries[name]
	if !ok {
		return 0, fmt.Errorf("mutate %q: %w", name, ErrNotFound)
	}
	index, err := g.Index(row, col)
	if err != nil {
		return 0, err
	}
	if err := g.CycleCell(index, time.Now().UTC()); err != nil {
		return 0, err
	}
	s.notifyChanged(g)
	return g.Cells[index], nil
}

// ClearAll resets every cell of the named grid to unmeasured. Unconditional;
// the confirmation gate lives at the caller.
func (s *Store) ClearAll(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("clear %q: %w", name, ErrNotFound)
	}
	g.Clear(time.Now().UTC())
	s.notifyChanged(g)
	return nil
}

// ReplaceFromImport installs an externally-sourced grid. If an entry of the
// same name exists the caller must have confirmed overwrite.
func (s *Store) ReplaceFromImport(g *grid.Grid, overwrite bool) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("import %q: %w", g.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[g.Name]; ok && !overwrite {
		return fmt.Errorf("import %q: %w", g.Name, ErrDuplicateName)
	}
	g = g.Clone()
	g.LastModified = time.Now().UTC()
	s.entries[g.Name] = g
	s.notifyChanged(g)
	return nil
}

// SetActive marks the named entry as the session's loaded grid. Focus only,
// not a lock.
func (s *Store) SetActive(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("activate %q: %w", name, ErrNotFound)
	}
	s.active = name
	return nil
}

// Active returns the session's active entry name, if any.
func (s *Store) Active() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// ApplyRemote upserts an entry on behalf of the sync engine. The re-entrancy
// guard is held across the mutation so the change notification that would
// otherwise fire is suppressed: the write that produced the incoming event
// must not be echoed back as a new local write.
func (s *Store) ApplyRemote(g *grid.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("apply remote %q: %w", g.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyingRemote = true
	defer func() { s.applyingRemote = false }()

	s.entries[g.Name] = g.Clone()
	s.notifyChanged(g)
	return nil
}

// RemoveRemote mirrors a remote tombstone locally, under the same guard as
// ApplyRemote. Removing an entry that is already gone is a no-op.
func (s *Store) RemoveRemote(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyingRemote = true
	defer func() { s.applyingRemote = false }()

	if _, ok := s.entries[name]; !ok {
		return
	}
	delete(s.entries, name)
	if s.active == name {
		s.active = ""
	}
	s.notifyDeleted(name)
}

// notifyChanged and notifyDeleted run with mu held. The guard check is the
// single suppression point for all mutation paths.

func (s *Store) notifyChanged(g *grid.Grid) {
	if s.listener == nil || s.applyingRemote {
		return
	}
	s.listener.EntryChanged(g.Clone())
}

func (s *Store) notifyDeleted(name string) {
	if s.listener == nil || s.applyingRemote {
		return
	}
	s.listener.EntryDeleted(name)
}
