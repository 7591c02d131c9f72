package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
)

//go:embed scripts/add_line.lua
var addLineScript string

// Client stores session carts. Each cart is a hash keyed by product and rule
// id whose values are JSON encoded cart lines, so offer annotations live and
// expire with the session.
type Client struct {
	rdb     *redis.Client
	addLine *redis.Script
	ttl     time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	return &Client{
		rdb:     rdb,
		addLine: redis.NewScript(addLineScript),
		ttl:     cartTTL,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

// AddLine atomically adds quantity of a product to the cart line for ruleID.
// A zero ruleID is a plain line; any other value annotates the line with the
// offer rule that caused it.
func (c *Client) AddLine(ctx context.Context, cartID string, productID int64, quantity int, ruleID int64) error {
	ttl := int64(c.ttl / time.Second)
	if ttl <= 0 {
		ttl = 1
	}

	_, err := c.addLine.Run(ctx, c.rdb, []string{cartKey(cartID)}, productID, quantity, ruleID, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "add cart line script")
	}
	return nil
}

// GetCart returns the cart lines ordered by product then rule id. A missing
// cart is empty.
func (c *Client) GetCart(ctx context.Context, cartID string) ([]models.CartLine, error) {
	result, err := c.rdb.HGetAll(ctx, cartKey(cartID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return decodeCart(result)
}

// ClearCart deletes the whole cart, annotations included
func (c *Client) ClearCart(ctx context.Context, cartID string) error {
	if err := c.rdb.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func decodeCart(fields map[string]string) ([]models.CartLine, error) {
	lines := make([]models.CartLine, 0, len(fields))
	for field, raw := range fields {
		var line models.CartLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, errors.Wrapf(err, "decode cart line %s", field)
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].RuleID < lines[j].RuleID
	})
	return lines, nil
}
