// Package app wires the storefront components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jacentio/storefront/cart"
	"github.com/jacentio/storefront/catalog"
	"github.com/jacentio/storefront/checkout"
	"github.com/jacentio/storefront/consumer"
	"github.com/jacentio/storefront/relay"
	"github.com/jacentio/storefront/store"
	"github.com/jacentio/storefront/upload"
)

// App holds the storefront services.
type App struct {
	Rows      store.RowStore
	Carts     *cart.Store
	Relay     *relay.Relay
	Checkout  *checkout.Coordinator
	Products  *catalog.Products
	Customers *catalog.Customers
	Uploads   *upload.Uploader

	closers []func(context.Context) error
}

// New builds the full storefront: entity store, cart, relay, checkout and catalog.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	a := &App{Rows: newRows(awsCfg, cfg)}

	carts, err := cart.Open(cfg.CartPath)
	if err != nil {
		return nil, err
	}
	a.Carts = carts
	a.closers = append(a.closers, func(context.Context) error { return carts.Close() })

	publisher, closePublisher := newPublisher(awsCfg, cfg)
	if closePublisher != nil {
		a.closers = append(a.closers, func(context.Context) error { return closePublisher() })
	}
	a.Relay = relay.New(publisher, relay.DefaultConfig(), logger.With("component", "relay"))
	// Drain the relay before its publisher closes.
	a.closers = append(a.closers, a.Relay.Close)

	checkoutCfg := checkout.DefaultConfig()
	checkoutCfg.CallTimeout = cfg.CallTimeout
	checkoutCfg.ReserveStock = cfg.ReserveStock
	a.Checkout = checkout.New(a.Rows, a.Carts, a.Relay, checkoutCfg, logger.With("component", "checkout"))

	a.Products = catalog.NewProducts(a.Rows, logger.With("component", "catalog"))
	a.Customers = catalog.NewCustomers(a.Rows, logger.With("component", "catalog"))

	if cfg.UploadBucket != "" {
		a.Uploads = upload.New(s3.NewFromConfig(awsCfg), cfg.UploadBucket)
	}

	logger.Info("storefront ready",
		"table", cfg.Table,
		"kafka", len(cfg.KafkaBrokers) > 0,
		"reserveStock", cfg.ReserveStock,
	)
	return a, nil
}

// NewConsumer builds the queue handler used by the consumer Lambdas.
func NewConsumer(ctx context.Context, cfg Config, logger *slog.Logger) (*consumer.Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return consumer.NewHandler(newRows(awsCfg, cfg), logger), nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newRows(awsCfg aws.Config, cfg Config) *store.Store {
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	})
	storeCfg := store.DefaultConfig()
	storeCfg.Table = cfg.Table
	return store.New(client, storeCfg)
}

func newPublisher(awsCfg aws.Config, cfg Config) (relay.Publisher, func() error) {
	if len(cfg.KafkaBrokers) > 0 {
		k := relay.NewKafka(relay.NewKafkaWriter(cfg.KafkaBrokers), nil)
		return k, k.Close
	}
	return relay.NewSQS(sqs.NewFromConfig(awsCfg), relay.SQSConfig{
		QueueURLs: map[string]string{
			relay.TopicOrderNotifications: cfg.NotificationsQueueURL,
			relay.TopicStockUpdates:       cfg.StockQueueURL,
		},
		MessageGroups: cfg.MessageGroups,
	}), nil
}
