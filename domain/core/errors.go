package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrCellNotFound       = fmt.Errorf("%w: cell", ErrNotFound)
	ErrExperimentNotFound = fmt.Errorf("%w: experiment", ErrNotFound)

	// Structural input errors. Short or partial data is not an error; it yields nil metrics.
	ErrEmptySeries     = errors.New("cycle series is empty")
	ErrMalformedSeries = errors.New("cycle series is malformed")

	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// NewNotFoundError wraps ErrNotFound with the resource kind and id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// NewMalformedSeriesError wraps ErrMalformedSeries with the offending row
func NewMalformedSeriesError(row int, reason string) error {
	return fmt.Errorf("%w: row %d: %s", ErrMalformedSeries, row, reason)
}

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidSeriesError reports whether err means the series itself is unusable
func IsInvalidSeriesError(err error) bool {
	return errors.Is(err, ErrEmptySeries) || errors.Is(err, ErrMalformedSeries)
}
