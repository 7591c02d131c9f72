package service

import (
	"context"
	"sort"
	"sync"
	"testing"

	"upsell-service/config"
	"upsell-service/internal/models"
	"upsell-service/internal/store"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr(v int64) *int64 { return &v }

type lineKey struct {
	productID, ruleID int64
}

type memoryCart struct {
	mu    sync.Mutex
	carts map[string]map[lineKey]models.CartLine
	err   error
	adds  int
}

func newMemoryCart() *memoryCart {
	return &memoryCart{carts: make(map[string]map[lineKey]models.CartLine)}
}

func (c *memoryCart) AddLine(_ context.Context, cartID string, productID int64, quantity int, ruleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.adds++
	lines, ok := c.carts[cartID]
	if !ok {
		lines = make(map[lineKey]models.CartLine)
		c.carts[cartID] = lines
	}
	key := lineKey{productID, ruleID}
	line := lines[key]
	line.ProductID = productID
	line.RuleID = ruleID
	line.Quantity += quantity
	lines[key] = line
	return nil
}

func (c *memoryCart) GetCart(_ context.Context, cartID string) ([]models.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	lines := []models.CartLine{}
	for _, l := range c.carts[cartID] {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].RuleID < lines[j].RuleID
	})
	return lines, nil
}

func (c *memoryCart) ClearCart(_ context.Context, cartID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	delete(c.carts, cartID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OfferEvent
	err    error
}

func (p *recordingPublisher) PublishOfferEvent(_ context.Context, event *models.OfferEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, *event)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// failingEvents wraps a store and fails every event write
type failingEvents struct {
	*store.Memory
}

func (f failingEvents) InsertStatEvent(context.Context, *models.StatEvent) error {
	return errors.New("connection reset")
}

func (f failingEvents) RecordConversion(context.Context, *models.Conversion) (bool, error) {
	return false, errors.New("connection reset")
}

// flakyEvents fails the next failures conversion writes, then delegates
type flakyEvents struct {
	*store.Memory
	mu       sync.Mutex
	failures int
}

func (f *flakyEvents) RecordConversion(ctx context.Context, conversion *models.Conversion) (bool, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Memory.RecordConversion(ctx, conversion)
}

type testEnv struct {
	store     *store.Memory
	cart      *memoryCart
	publisher *recordingPublisher
	recorder  *EventRecorder
	offers    *OfferService
}

func newTestEnv(t *testing.T, cfg config.OffersConfig) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	env := &testEnv{
		store:     mem,
		cart:      newMemoryCart(),
		publisher: &recordingPublisher{},
	}
	env.recorder = NewEventRecorder(mem, env.publisher, zap.NewNop())
	env.offers = NewOfferService(mem, mem, env.cart, env.recorder, cfg, zap.NewNop())
	return env
}

func defaultOffers() config.OffersConfig {
	return config.OffersConfig{ClampNegativePrices: true, TrackUpsellImpressions: true}
}

func (e *testEnv) product(t *testing.T, id int64, price string, categories ...int64) {
	t.Helper()
	require.NoError(t, e.store.UpsertProduct(context.Background(), &models.Product{
		ID:          id,
		Name:        "product",
		Price:       decimal.RequireFromString(price),
		CategoryIDs: categories,
	}))
}

func (e *testEnv) rule(t *testing.T, r models.Rule) *models.Rule {
	t.Helper()
	require.NoError(t, e.store.CreateRule(context.Background(), &r))
	return &r
}

func (e *testEnv) revenue(t *testing.T, ruleID int64) decimal.Decimal {
	t.Helper()
	rule, err := e.store.GetRule(context.Background(), ruleID)
	require.NoError(t, err)
	return rule.AccumulatedRevenue
}

func (e *testEnv) count(t *testing.T, eventType models.EventType) int64 {
	t.Helper()
	n, err := e.store.CountEvents(context.Background(), eventType)
	require.NoError(t, err)
	return n
}
