package checkout

import (
	"errors"
	"fmt"

	"github.com/jacentio/storefront/cart"
	"github.com/jacentio/storefront/store"
)

var (
	// ErrEmptyCart is returned when the customer has nothing to check out.
	ErrEmptyCart = errors.New("storefront: cart is empty")

	// ErrCustomerNotFound is returned when the username resolves to no customer row.
	ErrCustomerNotFound = errors.New("storefront: customer not found")
)

// Reason says why a cart line did not become an order.
type Reason string

const (
	// ReasonProductGone means the product was deleted from the catalog.
	ReasonProductGone Reason = "ProductGone"

	// ReasonStoreError means a store call failed or timed out.
	ReasonStoreError Reason = "StoreError"

	// ReasonOutOfStock means stock reservation found too few units.
	ReasonOutOfStock Reason = "OutOfStock"
)

// LineResult is the outcome of one cart line: either an order id or a failure reason.
type LineResult struct {
	Line    cart.Line
	OrderID string
	Reason  Reason
	Err     error
}

// OK reports whether the line became an order.
func (l LineResult) OK() bool {
	return l.Reason == ""
}

// Result reports a checkout attempt line by line.
type Result struct {
	Customer store.Customer

	// Lines holds one entry per cart line, in cart order.
	Lines []LineResult

	// Orders holds the orders written, in cart order.
	Orders []store.Order

	// CartErr is set when orders were written but their lines could not be
	// removed from the cart. The orders remain committed.
	CartErr error
}

// Created returns the number of orders written.
func (r *Result) Created() int {
	return len(r.Orders)
}

// Failures returns the lines that did not become orders.
func (r *Result) Failures() []LineResult {
	var failed []LineResult
	for _, l := range r.Lines {
		if !l.OK() {
			failed = append(failed, l)
		}
	}
	return failed
}

// OK reports whether at least one order was created.
// A checkout with zero created orders is a failed checkout.
func (r *Result) OK() bool {
	return len(r.Orders) > 0
}

// Err returns a *PartialCheckoutError when any line failed, or nil.
func (r *Result) Err() error {
	failed := r.Failures()
	if len(failed) == 0 {
		return nil
	}
	return &PartialCheckoutError{Created: r.Created(), Failed: failed}
}

// PartialCheckoutError aggregates the failed lines of a checkout.
type PartialCheckoutError struct {
	Created int
	Failed  []LineResult
}

func (e *PartialCheckoutError) Error() string {
	total := e.Created + len(e.Failed)
	return fmt.Sprintf("storefront: checkout failed for %d of %d lines", len(e.Failed), total)
}

// Unwrap exposes the per-line causes to errors.Is and errors.As.
func (e *PartialCheckoutError) Unwrap() []error {
	var errs []error
	for _, l := range e.Failed {
		if l.Err != nil {
			errs = append(errs, l.Err)
		}
	}
	return errs
}
