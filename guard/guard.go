// Package guard enforces optimistic concurrency on read-modify-write paths.
//
// Every edit of a row the caller did not just create goes through [Update] or
// [Save]: the version token captured at read time is sent with the write, and
// a mismatch surfaces as [ErrStaleWrite]. Nothing is merged or overwritten
// silently; callers re-read and retry, optionally via [Retry].
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacentio/storefront/store"
)

var (
	// ErrStaleWrite is returned when the row changed since it was read.
	// It wraps store.ErrConcurrencyConflict.
	ErrStaleWrite = errors.New("storefront: stale write, re-read and retry")

	// ErrMissingVersion is returned by Save for entities that were never read from the store.
	ErrMissingVersion = errors.New("storefront: entity has no version token")
)

// Update reads the row of kind T with the given id, applies mutate and writes
// it back conditioned on the version that was read. The returned entity
// carries the new version token.
func Update[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, id string, mutate func(*T) error) (T, error) {
	var zero T
	kind := P(&zero).Kind()

	row, err := rows.Get(ctx, kind, id)
	if err != nil {
		return zero, err
	}
	v, err := store.Decode[T, P](row)
	if err != nil {
		return zero, err
	}
	if err := mutate(&v); err != nil {
		return zero, err
	}
	return put[T, P](ctx, rows, v, row.Version)
}

// Save writes v conditioned on the version token it already carries,
// typically one captured when the entity was shown to a user for editing.
func Save[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, v T) (T, error) {
	row, err := P(&v).ToRow()
	if err != nil {
		var zero T
		return zero, err
	}
	if row.Version == "" {
		var zero T
		return zero, ErrMissingVersion
	}
	return put[T, P](ctx, rows, v, row.Version)
}

func put[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, v T, expected string) (T, error) {
	var zero T
	row, err := P(&v).ToRow()
	if err != nil {
		return zero, err
	}
	version, err := rows.Put(ctx, row, expected)
	if err != nil {
		if errors.Is(err, store.ErrConcurrencyConflict) {
			return zero, fmt.Errorf("%w: %s %s: %w", ErrStaleWrite, row.Kind, row.Key, err)
		}
		return zero, err
	}
	row.Version = version
	return store.Decode[T, P](row)
}

// Retry runs fn up to attempts times while it fails with ErrStaleWrite,
// backing off briefly between attempts. Any other error is returned at once.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !errors.Is(err, ErrStaleWrite) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	return err
}
