package store

import "errors"

var (
	// ErrNotFound is returned when a row doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("storefront: entity not found")

	// ErrConcurrencyConflict is returned when a conditional write carries a stale version token.
	ErrConcurrencyConflict = errors.New("storefront: entity was modified concurrently")

	// ErrInvalidRow is returned when a row is missing its partition or row key.
	ErrInvalidRow = errors.New("storefront: row is missing partition or row key")

	// ErrKindMismatch is returned when decoding a row into the wrong entity type.
	ErrKindMismatch = errors.New("storefront: row belongs to a different partition")
)
