package domain

import "errors"

var (
	// ErrInvalidConfiguration covers non-positive intervals or trial counts,
	// windows resolving to zero and unknown selectors.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDivisionByZero is returned for zero-price trades or empty trade sets.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrUndefinedResult is returned when a return is requested before any capital is invested
	// and the configured policy does not allow a sentinel value.
	ErrUndefinedResult = errors.New("undefined result")

	// ErrShapeMismatch signals misaligned sequences. It indicates a bug, never bad input.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrSeriesNotFound is returned by loaders when no history exists for a symbol.
	ErrSeriesNotFound = errors.New("price series not found")
)
