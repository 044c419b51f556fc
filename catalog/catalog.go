// Package catalog is the administrative surface for customers and products.
//
// Reads are plain store reads. Edits go through the concurrency guard with
// the version token the caller read, so an edit based on a stale form fails
// with guard.ErrStaleWrite instead of overwriting someone else's change.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jacentio/storefront/guard"
	"github.com/jacentio/storefront/store"
)

// ErrInvalid is returned when a required field is missing or out of range.
var ErrInvalid = errors.New("storefront: invalid entity")

// Products manages catalog products.
type Products struct {
	rows   store.RowStore
	logger *slog.Logger
}

// NewProducts creates a product service.
func NewProducts(rows store.RowStore, logger *slog.Logger) *Products {
	if logger == nil {
		logger = slog.Default()
	}
	return &Products{rows: rows, logger: logger}
}

func (s *Products) List(ctx context.Context) ([]store.Product, error) {
	return list[store.Product](ctx, s.rows, store.KindProduct)
}

func (s *Products) Get(ctx context.Context, id string) (store.Product, error) {
	return get[store.Product](ctx, s.rows, store.KindProduct, id)
}

// Create stores a new product under a fresh id.
func (s *Products) Create(ctx context.Context, p store.Product) (store.Product, error) {
	if err := validateProduct(p); err != nil {
		return store.Product{}, err
	}
	p.ProductID = uuid.New().String()
	p, err := create[store.Product](ctx, s.rows, p)
	if err != nil {
		return store.Product{}, err
	}
	s.logger.Info("product created", "productID", p.ProductID, "name", p.ProductName)
	return p, nil
}

// Update writes p conditioned on p.Version.
func (s *Products) Update(ctx context.Context, p store.Product) (store.Product, error) {
	if err := validateProduct(p); err != nil {
		return store.Product{}, err
	}
	updated, err := guard.Save[store.Product](ctx, s.rows, p)
	if err != nil {
		return store.Product{}, err
	}
	s.logger.Info("product updated", "productID", updated.ProductID)
	return updated, nil
}

// Delete soft-deletes the product if it still has the given version.
func (s *Products) Delete(ctx context.Context, id, version string) error {
	if err := s.rows.Delete(ctx, store.KindProduct, id, version); err != nil {
		return staleOr(err, store.KindProduct, id)
	}
	s.logger.Info("product deleted", "productID", id)
	return nil
}

// Customers manages customer records.
type Customers struct {
	rows   store.RowStore
	logger *slog.Logger
}

// NewCustomers creates a customer service.
func NewCustomers(rows store.RowStore, logger *slog.Logger) *Customers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Customers{rows: rows, logger: logger}
}

func (s *Customers) List(ctx context.Context) ([]store.Customer, error) {
	return list[store.Customer](ctx, s.rows, store.KindCustomer)
}

func (s *Customers) Get(ctx context.Context, id string) (store.Customer, error) {
	return get[store.Customer](ctx, s.rows, store.KindCustomer, id)
}

// ByUsername returns the customer linked to a storefront username.
func (s *Customers) ByUsername(ctx context.Context, username string) (store.Customer, error) {
	found, err := list[store.Customer](ctx, s.rows, store.KindCustomer, store.WhereEquals(store.AttrUsername, username))
	if err != nil {
		return store.Customer{}, err
	}
	if len(found) == 0 {
		return store.Customer{}, store.ErrNotFound
	}
	return found[0], nil
}

// Create stores a new customer under a fresh id. Name and email are required.
func (s *Customers) Create(ctx context.Context, c store.Customer) (store.Customer, error) {
	if err := validateCustomer(c); err != nil {
		return store.Customer{}, err
	}
	c.CustomerID = uuid.New().String()
	c, err := create[store.Customer](ctx, s.rows, c)
	if err != nil {
		return store.Customer{}, err
	}
	s.logger.Info("customer created", "customerID", c.CustomerID, "username", c.Username)
	return c, nil
}

// Update writes c conditioned on c.Version.
func (s *Customers) Update(ctx context.Context, c store.Customer) (store.Customer, error) {
	if err := validateCustomer(c); err != nil {
		return store.Customer{}, err
	}
	updated, err := guard.Save[store.Customer](ctx, s.rows, c)
	if err != nil {
		return store.Customer{}, err
	}
	s.logger.Info("customer updated", "customerID", updated.CustomerID)
	return updated, nil
}

// Delete soft-deletes the customer if it still has the given version.
func (s *Customers) Delete(ctx context.Context, id, version string) error {
	if err := s.rows.Delete(ctx, store.KindCustomer, id, version); err != nil {
		return staleOr(err, store.KindCustomer, id)
	}
	s.logger.Info("customer deleted", "customerID", id)
	return nil
}

func list[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, kind store.Kind, opts ...store.ListOption) ([]T, error) {
	var out []T
	for row, err := range rows.List(ctx, kind, opts...) {
		if err != nil {
			return nil, err
		}
		v, err := store.Decode[T, P](row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func get[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, kind store.Kind, id string) (T, error) {
	row, err := rows.Get(ctx, kind, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return store.Decode[T, P](row)
}

func create[T any, P store.Record[T]](ctx context.Context, rows store.RowStore, v T) (T, error) {
	var zero T
	row, err := P(&v).ToRow()
	if err != nil {
		return zero, err
	}
	version, err := rows.Put(ctx, row, "")
	if err != nil {
		return zero, err
	}
	row.Version = version
	return store.Decode[T, P](row)
}

func staleOr(err error, kind store.Kind, id string) error {
	if errors.Is(err, store.ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %s %s: %w", guard.ErrStaleWrite, kind, id, err)
	}
	return err
}

func validateProduct(p store.Product) error {
	switch {
	case strings.TrimSpace(p.ProductName) == "":
		return fmt.Errorf("%w: product name is required", ErrInvalid)
	case strings.TrimSpace(p.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalid)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	case p.StockAvailable < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalid)
	}
	return nil
}

func validateCustomer(c store.Customer) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case strings.TrimSpace(c.Email) == "":
		return fmt.Errorf("%w: email is required", ErrInvalid)
	}
	return nil
}
