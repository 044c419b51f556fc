package relay_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/storefront/relay"
	"github.com/jacentio/storefront/store"
)

func TestMessagesFromOrder(t *testing.T) {
	order := store.NewOrder(
		store.Customer{CustomerID: "c-1", Username: "ada"},
		store.Product{ProductID: "p-1", ProductName: "Lamp", Price: decimal.RequireFromString("10.00")},
		2,
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	)

	body, err := relay.Encode(relay.NewOrderPlaced(order))
	require.NoError(t, err)
	assert.Contains(t, body, `"totalPrice":"`, "amounts travel as strings")

	var placed relay.OrderPlaced
	require.NoError(t, relay.Decode(body, &placed))
	assert.Equal(t, order.OrderID, placed.OrderID)
	assert.Equal(t, "ada", placed.Username)
	assert.True(t, placed.TotalPrice.Equal(decimal.RequireFromString("20.00")))

	delta := relay.NewStockDelta(order, true)
	assert.Equal(t, -2, delta.Delta)
	assert.True(t, delta.Reserved)
	assert.Equal(t, "p-1", delta.ProductID)
}

func TestDecode_Invalid(t *testing.T) {
	var d relay.StockDelta
	assert.Error(t, relay.Decode("not json", &d))
}
