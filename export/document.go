// Package export derives the structured export document from a measurement
// grid and parses documents of the same shape back into grids. Derivation is
// pure: no side effects beyond the produced document.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/probelab/wafermap/grid"
)

// Document is the export shape: flat and 2D cell views, per-state counts,
// and per-state coordinate lists.
type Document struct {
	Name         string       `json:"name"`
	Size         int          `json:"size"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastModified time.Time    `json:"lastModified"`
	Measurements Measurements `json:"measurements"`
	Statistics   Statistics   `json:"statistics"`

	// Device lists hold [row, col] pairs in ascending linear-index order.
	// Every cell appears in exactly one list, or in none iff unmeasured.
	SuccessfulDevices [][2]int `json:"successfulDevices"`
	FailedDevices     [][2]int `json:"failedDevices"`
	MisalignedDevices [][2]int `json:"misalignedDevices"`
}

// Measurements holds the raw flat cell sequence and its row-major 2D
// reconstruction, grid[r][c] = raw[r*size+c].
type Measurements struct {
	Raw  []int   `json:"raw"`
	Grid [][]int `json:"grid"`
}

// Statistics holds the per-state counts. The four states always sum to Total.
type Statistics struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Misaligned int `json:"misaligned"`
	Unmeasured int `json:"unmeasured"`
}

// percent formats count/total as a percentage with one decimal, guarding the
// degenerate empty-grid case.
func (s Statistics) percent(count int) string {
	if s.Total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(count)/float64(s.Total)*100)
}

// SuccessPercent returns the successful share, one decimal.
func (s Statistics) SuccessPercent() string { return s.percent(s.Successful) }

// FailedPercent returns the failed share, one decimal.
func (s Statistics) FailedPercent() string { return s.percent(s.Failed) }

// MisalignedPercent returns the misaligned share, one decimal.
func (s Statistics) MisalignedPercent() string { return s.percent(s.Misaligned) }

// UnmeasuredPercent returns the unmeasured share, one decimal.
func (s Statistics) UnmeasuredPercent() string { return s.percent(s.Unmeasured) }

// Build derives the export document from a grid.
func Build(g *grid.Grid) *Document {
	doc := &Document{
		Name:         g.Name,
		Size:         g.Size,
		CreatedAt:    g.CreatedAt,
		LastModified: g.LastModified,
		Measurements: Measurements{
			Raw:  make([]int, len(g.Cells)),
			Grid: make([][]int, g.Size),
		},
		Statistics:        Statistics{Total: len(g.Cells)},
		SuccessfulDevices: [][2]int{},
		FailedDevices:     [][2]int{},
		MisalignedDevices: [][2]int{},
	}

	for r := 0; r < g.Size; r++ {
		doc.Measurements.Grid[r] = make([]int, g.Size)
	}

	for i, state := range g.Cells {
		row, col := g.Coord(i)
		doc.Measurements.Raw[i] = int(state)
		doc.Measurements.Grid[row][col] = int(state)

		switch state {
		case grid.Success:
			doc.Statistics.Successful++
			doc.SuccessfulDevices = append(doc.SuccessfulDevices, [2]int{row, col})
		case grid.Failed:
			doc.Statistics.Failed++
			doc.FailedDevices = append(doc.FailedDevices, [2]int{row, col})
		case grid.Misaligned:
			doc.Statistics.Misaligned++
			doc.MisalignedDevices = append(doc.MisalignedDevices, [2]int{row, col})
		default:
			doc.Statistics.Unmeasured++
		}
	}

	return doc
}

// Marshal builds the document and renders it as indented JSON.
func Marshal(g *grid.Grid) ([]byte, error) {
	data, err := json.MarshalIndent(Build(g), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export document %q: %w", g.Name, err)
	}
	return data, nil
}
