package grid

import "errors"

// Common grid errors.
var (
	// ErrEmptyName is returned when a grid is created without a name.
	ErrEmptyName = errors.New("grid name is empty")

	// ErrUnsupportedSize is returned for a dimension outside SupportedSizes.
	ErrUnsupportedSize = errors.New("unsupported grid size")

	// ErrInvalidCoordinate is returned for a row/col or linear index outside the grid.
	ErrInvalidCoordinate = errors.New("coordinate out of range")

	// ErrInvalidState is returned for a cell value outside the four defined states.
	ErrInvalidState = errors.New("invalid cell state")

	// ErrCellCount is returned when the cell sequence length does not match size squared.
	ErrCellCount = errors.New("cell count does not match grid size")
)
