package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the process configuration, read from the environment.
type Config struct {
	// Table is the DynamoDB entity table (STOREFRONT_TABLE).
	Table string

	// DynamoEndpoint overrides the DynamoDB endpoint, e.g. DynamoDB Local (DYNAMODB_ENDPOINT).
	DynamoEndpoint string

	// CartPath is the SQLite cart database path (CART_DSN).
	CartPath string

	// NotificationsQueueURL is the SQS queue for order notifications (QUEUE_ORDER_NOTIFICATIONS).
	NotificationsQueueURL string

	// StockQueueURL is the SQS queue for stock updates (QUEUE_STOCK_UPDATES).
	StockQueueURL string

	// MessageGroups spreads FIFO messages over this many groups (QUEUE_MESSAGE_GROUPS).
	MessageGroups int

	// KafkaBrokers switches the relay from SQS to Kafka when set (KAFKA_BROKERS, comma separated).
	KafkaBrokers []string

	// UploadBucket is the S3 bucket for proof-of-payment files (UPLOAD_BUCKET).
	UploadBucket string

	// CallTimeout bounds each store call during checkout (CHECKOUT_CALL_TIMEOUT).
	CallTimeout time.Duration

	// ReserveStock enables the guarded stock decrement at checkout (CHECKOUT_RESERVE_STOCK).
	ReserveStock bool
}

// DefaultConfig returns defaults for local development.
func DefaultConfig() Config {
	return Config{
		Table:         "storefront_entities",
		CartPath:      "storefront-cart.db",
		MessageGroups: 1,
		CallTimeout:   5 * time.Second,
	}
}

// FromEnv overlays environment variables on DefaultConfig.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str("STOREFRONT_TABLE", &cfg.Table)
	str("DYNAMODB_ENDPOINT", &cfg.DynamoEndpoint)
	str("CART_DSN", &cfg.CartPath)
	str("QUEUE_ORDER_NOTIFICATIONS", &cfg.NotificationsQueueURL)
	str("QUEUE_STOCK_UPDATES", &cfg.StockQueueURL)
	str("UPLOAD_BUCKET", &cfg.UploadBucket)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if v, ok := lookup("QUEUE_MESSAGE_GROUPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("QUEUE_MESSAGE_GROUPS: %w", err)
		}
		cfg.MessageGroups = n
	}
	if v, ok := lookup("CHECKOUT_CALL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("CHECKOUT_CALL_TIMEOUT: %w", err)
		}
		cfg.CallTimeout = d
	}
	if v, ok := lookup("CHECKOUT_RESERVE_STOCK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("CHECKOUT_RESERVE_STOCK: %w", err)
		}
		cfg.ReserveStock = b
	}
	return cfg, nil
}
