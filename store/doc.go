// Package store provides a DynamoDB data access layer for storefront entities.
//
// Customers, products and orders live in one table, partitioned by entity kind
// and addressed by a UUID row key. DynamoDB offers no multi-row transactions
// here, so every write carries an opaque version token and conditional writes
// are the only consistency mechanism.
//
// # Key Features
//
//   - Opaque version tokens, replaced on every write
//   - Conditional writes rejected with [ErrConcurrencyConflict] on stale tokens
//   - Soft deletes via TTL, invisible to [Store.Get] and [Store.List]
//   - Lazy, paginated, weakly consistent partition listing
//   - Typed entities ([Customer], [Product], [Order]) encoded with attributevalue
//
// # Rows and Entities
//
// The store speaks [Row]. Typed entities convert with ToRow and [Decode]:
//
//	row, err := s.Get(ctx, store.KindProduct, id)
//	product, err := store.Decode[store.Product](row)
//
// # Implementations
//
// [Store] talks to DynamoDB through the narrow [API] interface.
// [Memory] implements the same [RowStore] contract in process.
//
// # Errors
//
//   - [ErrNotFound] - row doesn't exist or is deleted
//   - [ErrConcurrencyConflict] - expected version didn't match
//   - [ErrInvalidRow] - row is missing its keys
//   - [ErrKindMismatch] - row decoded into the wrong entity type
//   - [ErrInvalidTransition] - disallowed order status change
package store
