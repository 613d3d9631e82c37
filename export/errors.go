package export

import "errors"

// ErrInvalidFormat is returned for an import document missing required
// fields or carrying values outside the measurement model.
var ErrInvalidFormat = errors.New("invalid import document")
