// Command order-notifications is the Lambda consumer that moves placed orders to Processing.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/storefront/internal/app"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("function", "order-notifications")

	cfg, err := app.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	handler, err := app.NewConsumer(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.HandleOrderNotifications)
}
