package ir

import "errors"

// Store sentinels. Engines translate these into named authorization failures.
var (
	// ErrNotFound is returned when a record or aggregate does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCapacity is returned when a store capacity bound would be exceeded.
	ErrCapacity = errors.New("store capacity exhausted")

	// ErrConflict is returned when an aggregate was modified concurrently
	// since it was loaded. The operation had no effect and may be retried.
	ErrConflict = errors.New("aggregate modified concurrently")
)
