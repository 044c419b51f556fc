// Package consumer provides SQS Lambda handlers for order events.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/storefront/guard"
	"github.com/jacentio/storefront/relay"
	"github.com/jacentio/storefront/store"
)

// errDrop marks a message that will never succeed; it is acknowledged and logged.
var errDrop = errors.New("drop message")

// errAlreadyProcessed marks a redelivered message whose effect is already applied.
var errAlreadyProcessed = errors.New("already processed")

// Handler processes order notification and stock update queues.
type Handler struct {
	rows    store.RowStore
	logger  *slog.Logger
	retries int
}

// NewHandler creates a new queue handler.
func NewHandler(rows store.RowStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rows:    rows,
		logger:  logger,
		retries: 5,
	}
}

// HandleOrderNotifications moves newly placed orders to Processing.
// This function is designed to be used as an AWS Lambda handler with
// partial batch responses enabled.
func (h *Handler) HandleOrderNotifications(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	return h.handle(ctx, event, h.processNotification), nil
}

// HandleStockUpdates applies stock deltas to products.
func (h *Handler) HandleStockUpdates(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	return h.handle(ctx, event, h.processStockDelta), nil
}

func (h *Handler) handle(ctx context.Context, event events.SQSEvent, process func(context.Context, string) error) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		err := process(ctx, record.Body)
		switch {
		case err == nil:
		case errors.Is(err, errDrop):
			h.logger.Warn("dropping message",
				"messageID", record.MessageId,
				"error", err,
			)
		default:
			h.logger.Error("failed to process message",
				"messageID", record.MessageId,
				"error", err,
			)
			// Will retry, eventually DLQ
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}

// processNotification handles a single OrderPlaced message.
func (h *Handler) processNotification(ctx context.Context, body string) error {
	var msg relay.OrderPlaced
	if err := relay.Decode(body, &msg); err != nil {
		return fmt.Errorf("%w: %w", errDrop, err)
	}

	h.logger.Info("order placed",
		"orderID", msg.OrderID,
		"username", msg.Username,
		"productID", msg.ProductID,
		"quantity", msg.Quantity,
		"total", msg.TotalPrice.StringFixed(2),
	)

	err := guard.Retry(ctx, h.retries, func(ctx context.Context) error {
		_, err := guard.Update[store.Order](ctx, h.rows, msg.OrderID, func(o *store.Order) error {
			if o.Status != store.OrderSubmitted {
				return errAlreadyProcessed
			}
			return o.Transition(store.OrderProcessing)
		})
		return err
	})
	switch {
	case err == nil, errors.Is(err, errAlreadyProcessed):
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: order %s: %w", errDrop, msg.OrderID, err)
	}
	return fmt.Errorf("advance order %s: %w", msg.OrderID, err)
}

// processStockDelta handles a single StockDelta message.
func (h *Handler) processStockDelta(ctx context.Context, body string) error {
	var msg relay.StockDelta
	if err := relay.Decode(body, &msg); err != nil {
		return fmt.Errorf("%w: %w", errDrop, err)
	}

	// Already decremented by the checkout reservation
	if msg.Reserved {
		h.logger.Debug("stock already reserved",
			"orderID", msg.OrderID,
			"productID", msg.ProductID,
		)
		return nil
	}

	var stock int
	err := guard.Retry(ctx, h.retries, func(ctx context.Context) error {
		p, err := guard.Update[store.Product](ctx, h.rows, msg.ProductID, func(p *store.Product) error {
			p.StockAvailable += msg.Delta
			if p.StockAvailable < 0 {
				h.logger.Warn("product oversold",
					"productID", p.ProductID,
					"orderID", msg.OrderID,
					"shortfall", -p.StockAvailable,
				)
				p.StockAvailable = 0
			}
			return nil
		})
		stock = p.StockAvailable
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: product %s: %w", errDrop, msg.ProductID, err)
	}
	if err != nil {
		return fmt.Errorf("adjust stock %s: %w", msg.ProductID, err)
	}

	h.logger.Info("stock adjusted",
		"productID", msg.ProductID,
		"orderID", msg.OrderID,
		"delta", msg.Delta,
		"stock", stock,
	)
	return nil
}
