package store

import "errors"

var (
	// ErrConflict reports that a calendar write collided with an existing
	// appointment for the same professional.
	ErrConflict = errors.New("store: calendar conflict")

	// ErrNotFound reports that no row matched the tenant-scoped lookup.
	ErrNotFound = errors.New("store: not found")

	// ErrIdempotencyConflict reports that an idempotency key was replayed
	// with a different payload.
	ErrIdempotencyConflict = errors.New("store: idempotency key conflict")
)
