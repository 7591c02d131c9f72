package worker

import (
	"context"
	"testing"

	"upsell-service/internal/models"
	"upsell-service/internal/service"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	orders []models.Order
	err    error
}

func (s *stubCompleter) CompleteOrder(_ context.Context, order *models.Order) (*service.CompletionResult, error) {
	s.orders = append(s.orders, *order)
	if s.err != nil {
		return nil, s.err
	}
	return &service.CompletionResult{OrderID: order.OrderID, Converted: 1}, nil
}

func orderEvent() *models.OrderCompletedEvent {
	return &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: "e-1", EventType: models.EventTypeOrderCompleted},
		OrderID:   7,
		Lines:     []models.OrderLineData{{ProductID: 9, Quantity: 1, Total: decimal.NewFromInt(90), RuleID: 3}},
	}
}

func TestHandleOrderCompleted(t *testing.T) {
	completer := &stubCompleter{}
	w := NewConversionWorker(nil, completer)

	require.NoError(t, w.HandleOrderCompleted(context.Background(), orderEvent()))
	require.Len(t, completer.orders, 1)
	assert.Equal(t, int64(7), completer.orders[0].OrderID)
	assert.Equal(t, int64(3), completer.orders[0].Lines[0].RuleID)
}

func TestHandleOrderCompletedDropsMalformedOrders(t *testing.T) {
	completer := &stubCompleter{err: errors.Wrap(service.ErrInvalidInput, "order id is required")}
	w := NewConversionWorker(nil, completer)

	assert.NoError(t, w.HandleOrderCompleted(context.Background(), orderEvent()))
}

func TestHandleOrderCompletedPropagatesStorageErrors(t *testing.T) {
	completer := &stubCompleter{err: errors.New("db unavailable")}
	w := NewConversionWorker(nil, completer)

	assert.Error(t, w.HandleOrderCompleted(context.Background(), orderEvent()))
}
