package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OfferType distinguishes upsell from cross-sell rules
type OfferType string

const (
	OfferTypeUpsell    OfferType = "upsell"
	OfferTypeCrossSell OfferType = "cross-sell"
)

// Valid reports whether t is a known offer type
func (t OfferType) Valid() bool {
	return t == OfferTypeUpsell || t == OfferTypeCrossSell
}

// TriggerType selects which trigger field of a rule is meaningful
type TriggerType string

const (
	TriggerTypeProduct  TriggerType = "product"
	TriggerTypeCategory TriggerType = "category"
)

// Valid reports whether t is a known trigger type
func (t TriggerType) Valid() bool {
	return t == TriggerTypeProduct || t == TriggerTypeCategory
}

// DiscountType selects how DiscountAmount is interpreted
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "none"
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypeNone, DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// EventType is the kind of interaction recorded against a rule
type EventType string

const (
	EventTypeImpression EventType = "impression"
	EventTypeClick      EventType = "click"
	EventTypeConversion EventType = "conversion"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventTypeImpression, EventTypeClick, EventTypeConversion:
		return true
	}
	return false
}

// Rule represents one upsell or cross-sell offer
type Rule struct {
	ID                 int64               `db:"id" json:"id"`
	Title              string              `db:"title" json:"title"`
	OfferType          OfferType           `db:"offer_type" json:"offer_type"`
	TriggerType        TriggerType         `db:"trigger_type" json:"trigger_type"`
	TriggerProductID   *int64              `db:"trigger_product_id" json:"trigger_product_id,omitempty"`
	TriggerCategoryID  *int64              `db:"trigger_category_id" json:"trigger_category_id,omitempty"`
	TargetProductID    int64               `db:"target_product_id" json:"target_product_id"`
	DiscountType       DiscountType        `db:"discount_type" json:"discount_type"`
	DiscountAmount     decimal.NullDecimal `db:"discount_amount" json:"discount_amount"`
	AccumulatedRevenue decimal.Decimal     `db:"accumulated_revenue" json:"accumulated_revenue"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// RuleQuery selects rules for one offer type by product or category trigger
type RuleQuery struct {
	OfferType   OfferType
	ProductID   int64
	CategoryIDs []int64
	Limit       int
}

// StatEvent is one impression, click or conversion occurrence
type StatEvent struct {
	ID        int64     `db:"id" json:"id"`
	RuleID    int64     `db:"rule_id" json:"rule_id"`
	EventType EventType `db:"event_type" json:"event_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Conversion attributes the offer lines of one product in a completed order
// to the rule that offered it. OrderID, RuleID and ProductID identify it.
type Conversion struct {
	OrderID   int64           `db:"order_id" json:"order_id"`
	RuleID    int64           `db:"rule_id" json:"rule_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
}

// RuleStats aggregates recorded events and revenue for a single rule
type RuleStats struct {
	RuleID      int64           `db:"rule_id" json:"rule_id"`
	Title       string          `db:"title" json:"title"`
	OfferType   OfferType       `db:"offer_type" json:"offer_type"`
	Impressions int64           `db:"impressions" json:"impressions"`
	Clicks      int64           `db:"clicks" json:"clicks"`
	Conversions int64           `db:"conversions" json:"conversions"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
}

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	CategoryIDs pq.Int64Array   `db:"category_ids" json:"category_ids"`
}

// CartLine is a line item in a customer's session cart. A non-zero RuleID
// annotates the line as added through an offer.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	RuleID    int64 `json:"rule_id,omitempty"`
}

// Annotated reports whether the line was added by accepting an offer
func (l CartLine) Annotated() bool {
	return l.RuleID > 0
}

// PriceOverride replaces the unit price of an annotated cart line
type PriceOverride struct {
	ProductID int64           `json:"product_id"`
	RuleID    int64           `json:"rule_id"`
	BasePrice decimal.Decimal `json:"base_price"`
	Price     decimal.Decimal `json:"price"`
}

// Order is a completed order as reported by the host commerce pipeline
type Order struct {
	OrderID int64       `json:"order_id" binding:"required"`
	CartID  string      `json:"cart_id,omitempty"`
	Lines   []OrderLine `json:"lines" binding:"required,min=1"`
}

// OrderLine carries the line total used for revenue attribution
type OrderLine struct {
	ProductID int64           `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	RuleID    int64           `json:"rule_id,omitempty"`
}
