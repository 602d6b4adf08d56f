package recommender

import "errors"

var (
	// ErrInvalidStatistics marks malformed or inconsistent usage statistics.
	// Callers should skip the entity and continue.
	ErrInvalidStatistics = errors.New("invalid statistics")

	// ErrInvalidConfiguration marks a sizing configuration that makes a correct
	// recommendation impossible. Callers should abort the run.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidInput marks a non-positive baseline passed to CompareToExisting
	ErrInvalidInput = errors.New("invalid input")
)
