// Package grid provides the measurement grid entity: a fixed-size square
// array of per-device measurement states plus entry metadata.
package grid

import (
	"fmt"
	"time"
)

// CellState is the measurement state of a single device cell.
type CellState uint8

const (
	Unmeasured CellState = iota
	Success
	Failed
	Misaligned

	numStates = 4
)

// String returns the human-readable name of the state.
func (s CellState) String() string {
	switch s {
	case Unmeasured:
		return "unmeasured"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Misaligned:
		return "misaligned"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the four defined states.
func (s CellState) Valid() bool {
	return s < numStates
}

// Cycle maps a cell state to its successor on interaction:
// unmeasured -> success -> failed -> misaligned -> unmeasured.
// Cycling is the only interactive mutation primitive on a single cell.
func Cycle(s CellState) CellState {
	return (s + 1) % numStates
}

// SupportedSizes lists the grid dimensions a client may create.
var SupportedSizes = []int{8, 128}

// SizeSupported reports whether n is a supported grid dimension.
func SizeSupported(n int) bool {
	for _, s := range SupportedSizes {
		if n == s {
			return true
		}
	}
	return false
}

// Grid is one named measurement entry: size x size cells in row-major order.
// Name and Size are immutable after creation.
type Grid struct {
	Name string
	Size int

	// Cells holds size*size states, linear index i at (i/Size, i%Size).
	Cells []CellState

	// CellTimes is an optional parallel sequence of last-measured instants,
	// display metadata only. A zero time means never measured.
	CellTimes []time.Time

	CreatedAt    time.Time
	LastModified time.Time
}

// New creates a grid with every cell unmeasured and both timestamps set to now.
func New(name string, size int) (*Grid, error) {
	if name == "" {
		return nil, fmt.Errorf("create grid: %w", ErrEmptyName)
	}
	if !SizeSupported(size) {
		return nil, fmt.Errorf("create grid %q: size %d: %w", name, size, ErrUnsupportedSize)
	}
	now := time.Now().UTC()
	return &Grid{
		Name:         name,
		Size:         size,
		Cells:        make([]CellState, size*size),
		CellTimes:    make([]time.Time, size*size),
		CreatedAt:    now,
		LastModified: now,
	}, nil
}

// Index converts (row, col) to a linear cell index.
func (g *Grid) Index(row, col int) (int, error) {
	if row < 0 || row >= g.Size || col < 0 || col >= g.Size {
		return 0, fmt.Errorf("coordinate (%d,%d) outside grid of size %d: %w",
			row, col, g.Size, ErrInvalidCoordinate)
	}
	return row*g.Size + col, nil
}

// Coord converts a linear cell index to (row, col). The index must be in range.
func (g *Grid) Coord(i int) (row, col int) {
	return i / g.Size, i % g.Size
}

// InRange reports whether i is a valid linear cell index.
func (g *Grid) InRange(i int) bool {
	return i >= 0 && i < len(g.Cells)
}

// CycleCell advances the state of cell i and stamps both the cell and the
// entry with now. The caller validates the index via InRange first; an
// out-of-range index is rejected here as well.
func (g *Grid) CycleCell(i int, now time.Time) error {
	if !g.InRange(i) {
		return fmt.Errorf("cell index %d outside [0,%d): %w", i, len(g.Cells), ErrInvalidCoordinate)
	}
	g.Cells[i] = Cycle(g.Cells[i])
	if g.CellTimes != nil {
		g.CellTimes[i] = now
	}
	g.LastModified = now
	return nil
}

// Clear resets every cell to unmeasured and updates LastModified.
func (g *Grid) Clear(now time.Time) {
	for i := range g.Cells {
		g.Cells[i] = Unmeasured
	}
	if g.CellTimes != nil {
		for i := range g.CellTimes {
			g.CellTimes[i] = time.Time{}
		}
	}
	g.LastModified = now
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Cells = append([]CellState(nil), g.Cells...)
	if g.CellTimes != nil {
		c.CellTimes = append([]time.Time(nil), g.CellTimes...)
	}
	return &c
}

// Validate checks the structural invariants: supported size, cell count
// matching size squared, every state defined.
func (g *Grid) Validate() error {
	if g.Name == "" {
		return ErrEmptyName
	}
	if !SizeSupported(g.Size) {
		return fmt.Errorf("size %d: %w", g.Size, ErrUnsupportedSize)
	}
	if len(g.Cells) != g.Size*g.Size {
		return fmt.Errorf("grid %q has %d cells, want %d: %w",
			g.Name, len(g.Cells), g.Size*g.Size, ErrCellCount)
	}
	for i, s := range g.Cells {
		if !s.Valid() {
			return fmt.Errorf("grid %q cell %d has state %d: %w", g.Name, i, s, ErrInvalidState)
		}
	}
	if g.CellTimes != nil && len(g.CellTimes) != len(g.Cells) {
		return fmt.Errorf("grid %q has %d cell timestamps, want %d: %w",
			g.Name, len(g.CellTimes), len(g.Cells), ErrCellCount)
	}
	return nil
}
