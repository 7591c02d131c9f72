package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumValidity(t *testing.T) {
	assert.True(t, OfferTypeUpsell.Valid())
	assert.True(t, OfferTypeCrossSell.Valid())
	assert.False(t, OfferType("crosssell").Valid())

	assert.True(t, TriggerTypeCategory.Valid())
	assert.False(t, TriggerType("tag").Valid())

	assert.True(t, DiscountTypeNone.Valid())
	assert.False(t, DiscountType("bogo").Valid())

	assert.True(t, EventTypeConversion.Valid())
	assert.False(t, EventType("decline").Valid())
}

func TestOrderCompletedEventToOrder(t *testing.T) {
	payload := `{
		"event_id": "e-1",
		"event_type": "ORDER_COMPLETED",
		"order_id": 77,
		"cart_id": "cart-a",
		"lines": [
			{"product_id": 9, "quantity": 1, "total": "90.00", "rule_id": 3},
			{"product_id": 5, "quantity": 2, "total": 40}
		]
	}`

	var event OrderCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &event))

	order := event.ToOrder()
	assert.Equal(t, int64(77), order.OrderID)
	assert.Equal(t, "cart-a", order.CartID)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int64(3), order.Lines[0].RuleID)
	assert.True(t, decimal.RequireFromString("90").Equal(order.Lines[0].Total))
	assert.False(t, CartLine{ProductID: 5}.Annotated())
	assert.True(t, CartLine{ProductID: 9, RuleID: 3}.Annotated())
}
