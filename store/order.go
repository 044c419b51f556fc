package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderSubmitted  OrderStatus = "Submitted"
	OrderProcessing OrderStatus = "Processing"
	OrderCompleted  OrderStatus = "Completed"
	OrderCancelled  OrderStatus = "Cancelled"
)

// ErrInvalidTransition is returned when an order status change is not allowed.
var ErrInvalidTransition = errors.New("storefront: invalid order status transition")

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderSubmitted:  {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderCompleted, OrderCancelled},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a single purchased line. Prices are a snapshot taken at checkout.
type Order struct {
	OrderID     string
	Version     string
	CustomerID  string
	Username    string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	OrderDate   time.Time
	Status      OrderStatus
}

type orderRecord struct {
	CustomerID  string `dynamodbav:"customer_id"`
	Username    string `dynamodbav:"username"`
	ProductID   string `dynamodbav:"product_id"`
	ProductName string `dynamodbav:"product_name"`
	Quantity    int    `dynamodbav:"quantity"`
	UnitPrice   string `dynamodbav:"unit_price"`
	TotalPrice  string `dynamodbav:"total_price"`
	OrderDate   string `dynamodbav:"order_date"`
	Status      string `dynamodbav:"status"`
}

// NewOrder snapshots the product name and price for a purchase of qty units.
// The total is fixed here and never recomputed from the live catalog.
func NewOrder(customer Customer, product Product, qty int, now time.Time) Order {
	return Order{
		OrderID:     uuid.New().String(),
		CustomerID:  customer.CustomerID,
		Username:    customer.Username,
		ProductID:   product.ProductID,
		ProductName: product.ProductName,
		Quantity:    qty,
		UnitPrice:   product.Price,
		TotalPrice:  product.Price.Mul(decimal.NewFromInt(int64(qty))),
		OrderDate:   now.UTC(),
		Status:      OrderSubmitted,
	}
}

// Transition moves the order to next, rejecting disallowed changes.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

func (o Order) Kind() Kind { return KindOrder }
func (o Order) ID() string { return o.OrderID }

func (o Order) ToRow() (*Row, error) {
	return encodeRow(KindOrder, o.OrderID, o.Version, orderRecord{
		CustomerID:  o.CustomerID,
		Username:    o.Username,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Quantity:    o.Quantity,
		UnitPrice:   formatMoney(o.UnitPrice),
		TotalPrice:  formatMoney(o.TotalPrice),
		OrderDate:   o.OrderDate.UTC().Format(time.RFC3339),
		Status:      string(o.Status),
	})
}

func (o *Order) FromRow(row *Row) error {
	var rec orderRecord
	if err := decodeRow(KindOrder, row, &rec); err != nil {
		return err
	}
	unit, err := parseMoney(rec.UnitPrice)
	if err != nil {
		return fmt.Errorf("order %s unit price: %w", row.Key, err)
	}
	total, err := parseMoney(rec.TotalPrice)
	if err != nil {
		return fmt.Errorf("order %s total: %w", row.Key, err)
	}
	var placed time.Time
	if rec.OrderDate != "" {
		if placed, err = time.Parse(time.RFC3339, rec.OrderDate); err != nil {
			return fmt.Errorf("order %s date: %w", row.Key, err)
		}
	}
	*o = Order{
		OrderID:     row.Key,
		Version:     row.Version,
		CustomerID:  rec.CustomerID,
		Username:    rec.Username,
		ProductID:   rec.ProductID,
		ProductName: rec.ProductName,
		Quantity:    rec.Quantity,
		UnitPrice:   unit,
		TotalPrice:  total,
		OrderDate:   placed,
		Status:      OrderStatus(rec.Status),
	}
	return nil
}
