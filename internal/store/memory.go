package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Memory is an in-process driver with the same semantics as Store. It is used
// for local runs without Postgres and by service tests.
type Memory struct {
	mu        sync.RWMutex
	nextRule  int64
	nextEvent int64
	rules     map[int64]models.Rule
	events    []models.StatEvent
	products  map[int64]models.Product
	converted map[conversionKey]time.Time
	now       func() time.Time
}

type conversionKey struct {
	orderID, ruleID, productID int64
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		rules:     make(map[int64]models.Rule),
		products:  make(map[int64]models.Product),
		converted: make(map[conversionKey]time.Time),
		now:       time.Now,
	}
}

// Ping always succeeds
func (m *Memory) Ping(_ context.Context) error { return nil }

// Close is a no-op
func (m *Memory) Close() error { return nil }

// UpsertProduct stores a catalog product
func (m *Memory) UpsertProduct(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := *product
	p.CategoryIDs = append([]int64(nil), product.CategoryIDs...)
	m.products[p.ID] = p
	return nil
}

// GetProduct retrieves a catalog product
func (m *Memory) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "product %d", id)
	}
	return &p, nil
}

// GetProductsByIDs returns the known products among ids in id order
func (m *Memory) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool, len(ids))
	products := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok && !seen[id] {
			seen[id] = true
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// CreateRule assigns the next id and stores the rule with zero revenue
func (m *Memory) CreateRule(_ context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRule++
	now := m.now()
	rule.ID = m.nextRule
	rule.AccumulatedRevenue = decimal.Zero
	rule.CreatedAt = now
	rule.UpdatedAt = now
	m.rules[rule.ID] = *rule
	return nil
}

// UpdateRule replaces a rule, keeping its revenue and creation time
func (m *Memory) UpdateRule(_ context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "rule %d", rule.ID)
	}
	rule.AccumulatedRevenue = existing.AccumulatedRevenue
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = m.now()
	m.rules[rule.ID] = *rule
	return nil
}

// DeleteRule removes a rule and its recorded events
func (m *Memory) DeleteRule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return errors.Wrapf(ErrNotFound, "rule %d", id)
	}
	delete(m.rules, id)

	kept := m.events[:0]
	for _, e := range m.events {
		if e.RuleID != id {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

// GetRule retrieves a rule by id
func (m *Memory) GetRule(_ context.Context, id int64) (*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "rule %d", id)
	}
	return &rule, nil
}

// ListRules returns every rule in id order
func (m *Memory) ListRules(_ context.Context) ([]models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sortedRules(func(models.Rule) bool { return true }), nil
}

// FindRules returns the rules whose trigger matches the query in id order
func (m *Memory) FindRules(_ context.Context, q models.RuleQuery) ([]models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := make(map[int64]bool, len(q.CategoryIDs))
	for _, id := range q.CategoryIDs {
		categories[id] = true
	}

	rules := m.sortedRules(func(r models.Rule) bool {
		if r.OfferType != q.OfferType {
			return false
		}
		switch r.TriggerType {
		case models.TriggerTypeProduct:
			return r.TriggerProductID != nil && *r.TriggerProductID == q.ProductID
		case models.TriggerTypeCategory:
			return r.TriggerCategoryID != nil && categories[*r.TriggerCategoryID]
		}
		return false
	})
	if q.Limit > 0 && len(rules) > q.Limit {
		rules = rules[:q.Limit]
	}
	return rules, nil
}

// sortedRules must be called with m.mu held
func (m *Memory) sortedRules(keep func(models.Rule) bool) []models.Rule {
	rules := []models.Rule{}
	for _, r := range m.rules {
		if keep(r) {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// InsertStatEvent appends an impression or click event
func (m *Memory) InsertStatEvent(_ context.Context, event *models.StatEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[event.RuleID]; !ok {
		return errors.Wrapf(ErrNotFound, "rule %d", event.RuleID)
	}
	m.nextEvent++
	event.ID = m.nextEvent
	event.CreatedAt = m.now()
	m.events = append(m.events, *event)
	return nil
}

// RecordConversion marks the line converted, adds its amount to the rule's
// revenue and appends a conversion event under one lock. It returns false
// when the conversion was already recorded.
func (m *Memory) RecordConversion(_ context.Context, conversion *models.Conversion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := conversionKey{conversion.OrderID, conversion.RuleID, conversion.ProductID}
	if _, ok := m.converted[key]; ok {
		return false, nil
	}
	rule, ok := m.rules[conversion.RuleID]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "rule %d", conversion.RuleID)
	}

	now := m.now()
	rule.AccumulatedRevenue = rule.AccumulatedRevenue.Add(conversion.Amount)
	rule.UpdatedAt = now
	m.rules[rule.ID] = rule

	m.nextEvent++
	m.events = append(m.events, models.StatEvent{
		ID:        m.nextEvent,
		RuleID:    rule.ID,
		EventType: models.EventTypeConversion,
		CreatedAt: now,
	})
	m.converted[key] = now
	return true, nil
}

// CountEvents counts recorded events of one type across all rules
func (m *Memory) CountEvents(_ context.Context, eventType models.EventType) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, e := range m.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count, nil
}

// TotalRevenue sums accumulated revenue across all rules
func (m *Memory) TotalRevenue(_ context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	for _, r := range m.rules {
		total = total.Add(r.AccumulatedRevenue)
	}
	return total, nil
}

// RuleStats aggregates event counts and revenue per rule
func (m *Memory) RuleStats(_ context.Context) ([]models.RuleStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := m.sortedRules(func(models.Rule) bool { return true })
	index := make(map[int64]int, len(rules))
	stats := make([]models.RuleStats, len(rules))
	for i, r := range rules {
		index[r.ID] = i
		stats[i] = models.RuleStats{
			RuleID:    r.ID,
			Title:     r.Title,
			OfferType: r.OfferType,
			Revenue:   r.AccumulatedRevenue,
		}
	}

	for _, e := range m.events {
		i, ok := index[e.RuleID]
		if !ok {
			continue
		}
		switch e.EventType {
		case models.EventTypeImpression:
			stats[i].Impressions++
		case models.EventTypeClick:
			stats[i].Clicks++
		case models.EventTypeConversion:
			stats[i].Conversions++
		}
	}
	return stats, nil
}
