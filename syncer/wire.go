package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/probelab/wafermap/grid"
)

// document is the whole-entry wire format written to the remote store. A
// write always replaces the full document; there are no per-cell patches, so
// concurrent edits to one entry resolve last-writer-wins at entry level.
//
// Origin carries the writing process's client ID so consumers can drop
// self-echoed events.
type document struct {
	Name         string      `json:"name"`
	Size         int         `json:"size"`
	Cells        []int       `json:"cells"`
	Timestamps   []time.Time `json:"timestamps,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastModified time.Time   `json:"last_modified"`
	Origin       string      `json:"origin,omitempty"`
}

// encodeEntry serializes a grid for the remote store.
func encodeEntry(g *grid.Grid, origin string) ([]byte, error) {
	doc := document{
		Name:         g.Name,
		Size:         g.Size,
		Cells:        make([]int, len(g.Cells)),
		CreatedAt:    g.CreatedAt,
		LastModified: g.LastModified,
		Origin:       origin,
	}
	for i, s := range g.Cells {
		doc.Cells[i] = int(s)
	}
	if g.CellTimes != nil {
		doc.Timestamps = append([]time.Time(nil), g.CellTimes...)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode entry %q: %w", g.Name, err)
	}
	return data, nil
}

// decodeEntry parses and validates a remote document. Per-cell timestamps are
// optional metadata; a document without them yields a grid without them.
func decodeEntry(data []byte) (*grid.Grid, string, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("decode entry: %v: %w", err, ErrRemoteRead)
	}

	g := &grid.Grid{
		Name:         doc.Name,
		Size:         doc.Size,
		Cells:        make([]grid.CellState, len(doc.Cells)),
		CreatedAt:    doc.CreatedAt,
		LastModified: doc.LastModified,
	}
	for i, v := range doc.Cells {
		// Range-check before narrowing to uint8 so out-of-range values fail
		// instead of wrapping into a valid state.
		if v < 0 || v > int(grid.Misaligned) {
			return nil, "", fmt.Errorf("decode entry: cell %d has state %d: %w", i, v, ErrRemoteRead)
		}
		g.Cells[i] = grid.CellState(v)
	}
	if doc.Timestamps != nil {
		g.CellTimes = append([]time.Time(nil), doc.Timestamps...)
	}

	if err := g.Validate(); err != nil {
		return nil, "", fmt.Errorf("decode entry: %v: %w", err, ErrRemoteRead)
	}
	return g, doc.Origin, nil
}
