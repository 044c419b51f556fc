package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacentio/storefront/store"
)

// OrderPlaced is published to TopicOrderNotifications for every created order.
type OrderPlaced struct {
	OrderID     string          `json:"orderId"`
	CustomerID  string          `json:"customerId"`
	Username    string          `json:"username"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	PlacedAt    time.Time       `json:"placedAt"`
}

// StockDelta is published to TopicStockUpdates for every created order.
// Reserved is set when stock was already decremented at checkout.
type StockDelta struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Delta     int    `json:"delta"`
	Reserved  bool   `json:"reserved"`
}

// NewOrderPlaced builds the notification for o.
func NewOrderPlaced(o store.Order) OrderPlaced {
	return OrderPlaced{
		OrderID:     o.OrderID,
		CustomerID:  o.CustomerID,
		Username:    o.Username,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Quantity:    o.Quantity,
		UnitPrice:   o.UnitPrice,
		TotalPrice:  o.TotalPrice,
		PlacedAt:    o.OrderDate,
	}
}

// NewStockDelta builds the stock adjustment for o.
func NewStockDelta(o store.Order, reserved bool) StockDelta {
	return StockDelta{
		OrderID:   o.OrderID,
		ProductID: o.ProductID,
		Delta:     -o.Quantity,
		Reserved:  reserved,
	}
}

// Encode renders a message body as JSON.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}
	return string(b), nil
}

// Decode parses a JSON message body into v.
func Decode(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}
