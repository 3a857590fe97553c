package domain

import "errors"

var (
	// ErrRunInProgress is returned when another run holds the lock for the
	// same source. Callers should retry later.
	ErrRunInProgress = errors.New("analysis run already in progress for source")

	// ErrValidation marks invalid caller input such as a malformed date.
	ErrValidation = errors.New("validation error")

	// ErrPartialFailure marks a run where at least one batch could not be
	// committed after retries. Committed batches stay intact.
	ErrPartialFailure = errors.New("analysis run partially failed")

	// ErrInvalidInventory marks snapshot facts that cannot describe a real
	// stock position, for example negative quantities.
	ErrInvalidInventory = errors.New("invalid inventory snapshot")

	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
)
