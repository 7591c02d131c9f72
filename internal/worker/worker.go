package worker

import (
	"context"

	"upsell-service/internal/broker"
	"upsell-service/internal/models"
	"upsell-service/internal/service"
	"upsell-service/internal/util"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// OrderCompleter converts completed orders into offer conversions
type OrderCompleter interface {
	CompleteOrder(ctx context.Context, order *models.Order) (*service.CompletionResult, error)
}

// ConversionWorker consumes order-completed events from the commerce pipeline
type ConversionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	completer    OrderCompleter
	logger       *zap.Logger
}

// NewConversionWorker creates a new conversion worker
func NewConversionWorker(consumer *broker.Consumer, completer OrderCompleter) *ConversionWorker {
	w := &ConversionWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		completer:    completer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCompleted(w.HandleOrderCompleted)
	return w
}

// HandleOrderCompleted converts one order. Malformed orders are dropped so
// they are not retried forever.
func (w *ConversionWorker) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	order := event.ToOrder()
	result, err := w.completer.CompleteOrder(ctx, &order)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			w.logger.Warn("Dropping malformed order event",
				zap.String("event_id", event.EventID),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			return nil
		}
		return err
	}

	w.logger.Debug("Order event processed",
		zap.Int64("order_id", result.OrderID),
		zap.Int("converted", result.Converted),
		zap.Int("unattributed", result.Unattributed),
		zap.Bool("duplicate", result.Duplicate))
	return nil
}

// Start starts the worker
func (w *ConversionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting conversion worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ConversionWorker) Stop() error {
	w.logger.Info("Stopping conversion worker")
	return w.consumer.Close()
}
