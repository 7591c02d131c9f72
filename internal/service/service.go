package service

import (
	"context"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned when an accept or convert call is missing ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidRule is returned when a rule fails write-time validation.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrOfferUnavailable is returned when an accepted offer does not match a live rule.
	ErrOfferUnavailable = errors.New("offer unavailable")
)

// RuleFinder looks up rules by trigger
type RuleFinder interface {
	FindRules(ctx context.Context, q models.RuleQuery) ([]models.Rule, error)
	GetRule(ctx context.Context, id int64) (*models.Rule, error)
}

// RuleRepository is the full rule store used by administration
type RuleRepository interface {
	RuleFinder
	CreateRule(ctx context.Context, rule *models.Rule) error
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id int64) error
	ListRules(ctx context.Context) ([]models.Rule, error)
}

// EventStore persists stat events and rule revenue. RecordConversion writes
// the conversion event and the revenue increment atomically, at most once per
// order, rule and product.
type EventStore interface {
	InsertStatEvent(ctx context.Context, event *models.StatEvent) error
	RecordConversion(ctx context.Context, conversion *models.Conversion) (bool, error)
	CountEvents(ctx context.Context, eventType models.EventType) (int64, error)
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
	RuleStats(ctx context.Context) ([]models.RuleStats, error)
}

// Catalog resolves products
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// CartStore reads and mutates session carts
type CartStore interface {
	AddLine(ctx context.Context, cartID string, productID int64, quantity int, ruleID int64) error
	GetCart(ctx context.Context, cartID string) ([]models.CartLine, error)
	ClearCart(ctx context.Context, cartID string) error
}

// Publisher emits offer events to downstream consumers
type Publisher interface {
	PublishOfferEvent(ctx context.Context, event *models.OfferEvent) error
}
