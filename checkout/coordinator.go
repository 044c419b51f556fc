// Package checkout converts a customer's cart into order rows.
//
// The entity store has no multi-row transactions, so checkout is a
// best-effort batch: each cart line is attempted on its own, failures are
// recorded and the walk continues. Lines that became orders leave the cart;
// failed lines stay for a retry. Order events are published after the fact
// and a publish failure never undoes a written order.
//
// Stock is not decremented at checkout unless Config.ReserveStock is set, so
// two concurrent checkouts may both buy the last unit. With ReserveStock the
// decrement is a version-guarded write made before the order is written.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacentio/storefront/cart"
	"github.com/jacentio/storefront/guard"
	"github.com/jacentio/storefront/relay"
	"github.com/jacentio/storefront/store"
)

const tracerName = "github.com/jacentio/storefront/checkout"

var errOutOfStock = errors.New("storefront: insufficient stock")

// Carts is the cart store as seen by checkout.
type Carts interface {
	Get(ctx context.Context, customer string) ([]cart.Line, error)
	Clear(ctx context.Context, customer string, lines []cart.Line) error
}

// Config holds configuration for the Coordinator.
type Config struct {
	// CallTimeout bounds every individual store call.
	// Default: 5s
	CallTimeout time.Duration

	// ReserveStock decrements product stock with a conditional write before
	// each order is written, closing the oversell race.
	// Default: false
	ReserveStock bool

	// ReserveRetries is the number of attempts for a contended stock decrement.
	// Default: 3
	ReserveRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout:    5 * time.Second,
		ReserveRetries: 3,
	}
}

func (c *Config) validate() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.ReserveRetries < 1 {
		c.ReserveRetries = 3
	}
}

// Coordinator runs checkouts.
type Coordinator struct {
	rows   store.RowStore
	carts  Carts
	events relay.Publisher
	config Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Coordinator. events may be nil, in which case no events are published.
func New(rows store.RowStore, carts Carts, events relay.Publisher, config Config, logger *slog.Logger) *Coordinator {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		rows:   rows,
		carts:  carts,
		events: events,
		config: config,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Checkout turns the cart of the authenticated username into orders.
//
// It returns an error only when checkout cannot start: ErrCustomerNotFound,
// ErrEmptyCart, or a failure reading the customer or cart. Once lines are
// being processed, cancelling ctx no longer stops the walk, and per-line
// failures are reported in the Result rather than as an error.
func (c *Coordinator) Checkout(ctx context.Context, username string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(attribute.String("customer.username", username)),
	)
	defer span.End()

	customer, err := c.resolveCustomer(ctx, username)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	lines, err := c.readCart(ctx, username)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Orders written from here on stay written; detach from the caller.
	ctx = context.WithoutCancel(ctx)

	result := &Result{Customer: customer, Lines: make([]LineResult, 0, len(lines))}
	var placed []cart.Line
	for _, line := range lines {
		lr, order := c.placeLine(ctx, customer, line)
		result.Lines = append(result.Lines, lr)
		if !lr.OK() {
			c.logger.Warn("checkout line failed",
				"username", username,
				"productID", line.ProductID,
				"reason", lr.Reason,
				"error", lr.Err,
			)
			continue
		}
		result.Orders = append(result.Orders, order)
		placed = append(placed, line)
	}

	if len(placed) > 0 {
		if err := c.clearCart(ctx, username, placed); err != nil {
			result.CartErr = err
			c.logger.Error("failed to clear checked out lines",
				"username", username,
				"lines", len(placed),
				"error", err,
			)
		}
	}

	for _, order := range result.Orders {
		c.publish(ctx, order)
	}

	failed := len(result.Lines) - len(result.Orders)
	span.SetAttributes(
		attribute.Int("checkout.created", len(result.Orders)),
		attribute.Int("checkout.failed", failed),
	)
	if !result.OK() {
		span.SetStatus(codes.Error, "no cart line became an order")
	}

	c.logger.Info("checkout completed",
		"username", username,
		"customerID", customer.CustomerID,
		"created", len(result.Orders),
		"failed", failed,
	)
	return result, nil
}

// resolveCustomer finds the customer row whose username matches.
func (c *Coordinator) resolveCustomer(ctx context.Context, username string) (store.Customer, error) {
	if username == "" {
		return store.Customer{}, ErrCustomerNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	for row, err := range c.rows.List(ctx, store.KindCustomer, store.WhereEquals(store.AttrUsername, username)) {
		if err != nil {
			return store.Customer{}, fmt.Errorf("resolve customer: %w", err)
		}
		customer, err := store.Decode[store.Customer](row)
		if err != nil {
			return store.Customer{}, fmt.Errorf("resolve customer: %w", err)
		}
		return customer, nil
	}
	return store.Customer{}, ErrCustomerNotFound
}

func (c *Coordinator) readCart(ctx context.Context, username string) ([]cart.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	lines, err := c.carts.Get(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return lines, nil
}

// placeLine turns one cart line into an order. It never returns an error;
// failures are carried in the LineResult.
func (c *Coordinator) placeLine(ctx context.Context, customer store.Customer, line cart.Line) (LineResult, store.Order) {
	ctx, span := c.tracer.Start(ctx, "checkout.placeLine",
		trace.WithAttributes(
			attribute.String("product.id", line.ProductID),
			attribute.Int("line.quantity", line.Quantity),
		),
	)
	defer span.End()

	lr := LineResult{Line: line}
	fail := func(reason Reason, err error) (LineResult, store.Order) {
		lr.Reason = reason
		lr.Err = err
		span.SetStatus(codes.Error, string(reason))
		return lr, store.Order{}
	}

	var (
		product store.Product
		err     error
	)
	if c.config.ReserveStock {
		product, err = c.reserve(ctx, line)
	} else {
		product, err = c.product(ctx, line.ProductID)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(ReasonProductGone, err)
	case errors.Is(err, errOutOfStock):
		return fail(ReasonOutOfStock, err)
	case err != nil:
		return fail(ReasonStoreError, err)
	}

	order := store.NewOrder(customer, product, line.Quantity, c.now())
	version, err := c.putOrder(ctx, order)
	if err != nil {
		if c.config.ReserveStock {
			c.release(ctx, line)
		}
		return fail(ReasonStoreError, err)
	}
	order.Version = version

	lr.OrderID = order.OrderID
	span.SetAttributes(attribute.String("order.id", order.OrderID))
	return lr, order
}

func (c *Coordinator) product(ctx context.Context, id string) (store.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	row, err := c.rows.Get(ctx, store.KindProduct, id)
	if err != nil {
		return store.Product{}, err
	}
	return store.Decode[store.Product](row)
}

func (c *Coordinator) putOrder(ctx context.Context, order store.Order) (string, error) {
	row, err := order.ToRow()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	// New row, never contended: unconditional put.
	return c.rows.Put(ctx, row, "")
}

// reserve decrements stock for the line under the version guard, retrying
// when another writer got there first.
func (c *Coordinator) reserve(ctx context.Context, line cart.Line) (store.Product, error) {
	var product store.Product
	err := guard.Retry(ctx, c.config.ReserveRetries, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		p, err := guard.Update[store.Product](ctx, c.rows, line.ProductID, func(p *store.Product) error {
			if p.StockAvailable < line.Quantity {
				return fmt.Errorf("%w: %d available, %d requested", errOutOfStock, p.StockAvailable, line.Quantity)
			}
			p.StockAvailable -= line.Quantity
			return nil
		})
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	return product, err
}

// release returns reserved units after the order write failed.
func (c *Coordinator) release(ctx context.Context, line cart.Line) {
	err := guard.Retry(ctx, c.config.ReserveRetries, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		_, err := guard.Update[store.Product](ctx, c.rows, line.ProductID, func(p *store.Product) error {
			p.StockAvailable += line.Quantity
			return nil
		})
		return err
	})
	if err != nil {
		c.logger.Warn("failed to release reserved stock",
			"productID", line.ProductID,
			"quantity", line.Quantity,
			"error", err,
		)
	}
}

func (c *Coordinator) clearCart(ctx context.Context, username string, lines []cart.Line) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()
	return c.carts.Clear(ctx, username, lines)
}

// publish emits the order notification and stock delta. Failures are logged
// and otherwise ignored: the order row is the source of truth.
func (c *Coordinator) publish(ctx context.Context, order store.Order) {
	if c.events == nil {
		return
	}
	messages := []struct {
		topic string
		body  any
	}{
		{relay.TopicOrderNotifications, relay.NewOrderPlaced(order)},
		{relay.TopicStockUpdates, relay.NewStockDelta(order, c.config.ReserveStock)},
	}
	for _, m := range messages {
		body, err := relay.Encode(m.body)
		if err == nil {
			err = c.events.Publish(ctx, m.topic, order.CustomerID, body)
		}
		if err != nil {
			c.logger.Warn("failed to publish order event",
				"orderID", order.OrderID,
				"topic", m.topic,
				"error", err,
			)
		}
	}
}
