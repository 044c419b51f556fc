package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := fromLookup(lookupMap(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := fromLookup(lookupMap(map[string]string{
		"STOREFRONT_TABLE":          "shop",
		"DYNAMODB_ENDPOINT":         "http://localhost:8000",
		"CART_DSN":                  "/tmp/cart.db",
		"QUEUE_ORDER_NOTIFICATIONS": "https://sqs/notify.fifo",
		"QUEUE_STOCK_UPDATES":       "https://sqs/stock.fifo",
		"QUEUE_MESSAGE_GROUPS":      "16",
		"KAFKA_BROKERS":             "k1:9092, k2:9092,,",
		"UPLOAD_BUCKET":             "proofs",
		"CHECKOUT_CALL_TIMEOUT":     "750ms",
		"CHECKOUT_RESERVE_STOCK":    "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Table)
	assert.Equal(t, "http://localhost:8000", cfg.DynamoEndpoint)
	assert.Equal(t, "/tmp/cart.db", cfg.CartPath)
	assert.Equal(t, "https://sqs/notify.fifo", cfg.NotificationsQueueURL)
	assert.Equal(t, "https://sqs/stock.fifo", cfg.StockQueueURL)
	assert.Equal(t, 16, cfg.MessageGroups)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "proofs", cfg.UploadBucket)
	assert.Equal(t, 750*time.Millisecond, cfg.CallTimeout)
	assert.True(t, cfg.ReserveStock)
}

func TestFromLookup_Invalid(t *testing.T) {
	for _, name := range []string{"QUEUE_MESSAGE_GROUPS", "CHECKOUT_CALL_TIMEOUT", "CHECKOUT_RESERVE_STOCK"} {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(lookupMap(map[string]string{name: "nonsense"}))
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg := DefaultConfig()
	cfg.CartPath = filepath.Join(t.TempDir(), "cart.db")
	cfg.UploadBucket = "proofs"
	cfg.KafkaBrokers = []string{"localhost:9092"}

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)

	assert.NotNil(t, a.Rows)
	assert.NotNil(t, a.Carts)
	assert.NotNil(t, a.Relay)
	assert.NotNil(t, a.Checkout)
	assert.NotNil(t, a.Products)
	assert.NotNil(t, a.Customers)
	assert.NotNil(t, a.Uploads)

	require.NoError(t, a.Close(ctx))
}

func TestNewConsumer(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	h, err := NewConsumer(context.Background(), DefaultConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, h)
}
