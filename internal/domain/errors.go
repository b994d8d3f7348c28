package domain

import "errors"

var (
	// ErrUnknownStock is returned when an operation names an instrument
	// that is not in the catalog.
	ErrUnknownStock = errors.New("unknown stock")

	// ErrEmptyHistory is returned when a sparkline is requested for an
	// instrument with a zero-capacity history ring.
	ErrEmptyHistory = errors.New("empty price history")
)
