package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/probelab/wafermap/grid"
)

// importDoc uses pointers so missing required fields are distinguishable
// from zero values.
type importDoc struct {
	Name         string     `json:"name"`
	Size         *int       `json:"size"`
	CreatedAt    *time.Time `json:"createdAt"`
	LastModified *time.Time `json:"lastModified"`
	Measurements *struct {
		Raw *[]int `json:"raw"`
	} `json:"measurements"`
}

// Parse validates an export-shaped document and reconstructs the grid. At
// minimum name, size, and measurements.raw must be present; everything else
// is derived or defaulted. Validation happens before any grid is produced,
// so a failed import never yields a partial entry.
func Parse(data []byte) (*grid.Grid, error) {
	var doc importDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse import: %v: %w", err, ErrInvalidFormat)
	}

	if doc.Name == "" {
		return nil, fmt.Errorf("parse import: missing name: %w", ErrInvalidFormat)
	}
	if doc.Size == nil {
		return nil, fmt.Errorf("parse import: missing size: %w", ErrInvalidFormat)
	}
	if doc.Measurements == nil || doc.Measurements.Raw == nil {
		return nil, fmt.Errorf("parse import: missing measurements.raw: %w", ErrInvalidFormat)
	}

	size := *doc.Size
	if !grid.SizeSupported(size) {
		return nil, fmt.Errorf("parse import %q: size %d: %w", doc.Name, size, ErrInvalidFormat)
	}

	raw := *doc.Measurements.Raw
	if len(raw) != size*size {
		return nil, fmt.Errorf("parse import %q: %d cells for size %d: %w",
			doc.Name, len(raw), size, ErrInvalidFormat)
	}

	cells := make([]grid.CellState, len(raw))
	for i, v := range raw {
		// Range-check the raw int before narrowing: a value like 256 would
		// wrap to a valid state in the uint8 conversion.
		if v < 0 || v > int(grid.Misaligned) {
			return nil, fmt.Errorf("parse import %q: cell %d has state %d: %w",
				doc.Name, i, v, ErrInvalidFormat)
		}
		cells[i] = grid.CellState(v)
	}

	now := time.Now().UTC()
	g := &grid.Grid{
		Name:         doc.Name,
		Size:         size,
		Cells:        cells,
		CreatedAt:    now,
		LastModified: now,
	}
	if doc.CreatedAt != nil {
		g.CreatedAt = *doc.CreatedAt
	}
	if doc.LastModified != nil {
		g.LastModified = *doc.LastModified
	}
	return g, nil
}
