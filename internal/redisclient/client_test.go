package redisclient

import (
	"context"
	"testing"
	"time"

	"upsell-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCartKey(t *testing.T) {
	assert.Equal(t, "cart:abc-123", cartKey("abc-123"))
}

func TestDecodeCart(t *testing.T) {
	lines, err := decodeCart(map[string]string{
		"9:3": `{"product_id":9,"quantity":1,"rule_id":3}`,
		"9:0": `{"product_id":9,"quantity":4}`,
		"5:0": `{"product_id":5,"quantity":2}`,
	})
	require.NoError(t, err)

	assert.Equal(t, []models.CartLine{
		{ProductID: 5, Quantity: 2},
		{ProductID: 9, Quantity: 4},
		{ProductID: 9, Quantity: 1, RuleID: 3},
	}, lines)
}

func TestDecodeCartRejectsGarbage(t *testing.T) {
	_, err := decodeCart(map[string]string{"9:0": "not json"})
	assert.Error(t, err)
}

func TestAddLineKeepsOfferLinesApart(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddLine(ctx, "c1", 5, 1, 0))
	require.NoError(t, c.AddLine(ctx, "c1", 9, 1, 3))
	require.NoError(t, c.AddLine(ctx, "c1", 9, 1, 0))
	require.NoError(t, c.AddLine(ctx, "c1", 9, 1, 3))
	require.NoError(t, c.AddLine(ctx, "c1", 9, 1, 4))

	lines, err := c.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []models.CartLine{
		{ProductID: 5, Quantity: 1},
		{ProductID: 9, Quantity: 1},
		{ProductID: 9, Quantity: 2, RuleID: 3},
		{ProductID: 9, Quantity: 1, RuleID: 4},
	}, lines)
}

func TestAddLineRefreshesTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddLine(ctx, "c1", 5, 1, 0))
	mr.FastForward(30 * time.Second)
	require.NoError(t, c.AddLine(ctx, "c1", 6, 1, 0))
	assert.Equal(t, time.Minute, mr.TTL(cartKey("c1")))

	mr.FastForward(2 * time.Minute)
	lines, err := c.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClearCart(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddLine(ctx, "c1", 9, 1, 3))
	require.NoError(t, c.ClearCart(ctx, "c1"))

	lines, err := c.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.NoError(t, c.Ping(ctx))
}
