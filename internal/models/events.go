package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOfferEvent     = "OFFER_EVENT"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OfferEvent is published for every recorded impression, click and conversion
type OfferEvent struct {
	BaseEvent
	RuleID      int64           `json:"rule_id"`
	Interaction EventType       `json:"interaction"`
	Amount      decimal.Decimal `json:"amount"`
}

// OrderCompletedEvent is consumed from the commerce pipeline when checkout finishes
type OrderCompletedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	CartID  string          `json:"cart_id"`
	Lines   []OrderLineData `json:"lines"`
}

// OrderLineData represents line data in order events
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	RuleID    int64           `json:"rule_id,omitempty"`
}

// ToOrder converts the event payload into an Order
func (e *OrderCompletedEvent) ToOrder() Order {
	lines := make([]OrderLine, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, OrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Total:     l.Total,
			RuleID:    l.RuleID,
		})
	}
	return Order{OrderID: e.OrderID, CartID: e.CartID, Lines: lines}
}
