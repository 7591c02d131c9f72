package service

import (
	"upsell-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceAdjuster computes offer prices from a rule's discount
type PriceAdjuster struct {
	clamp bool
}

// NewPriceAdjuster creates a price adjuster. With clamp set, prices never go
// below zero.
func NewPriceAdjuster(clamp bool) *PriceAdjuster {
	return &PriceAdjuster{clamp: clamp}
}

// DiscountedPrice returns the offer price for base under rule and whether the
// rule adjusts the price at all. The result depends only on base and rule, so
// repeated recalculation from the catalog price never compounds.
func (a *PriceAdjuster) DiscountedPrice(base decimal.Decimal, rule *models.Rule) (decimal.Decimal, bool) {
	if rule == nil || !rule.DiscountAmount.Valid {
		return decimal.Decimal{}, false
	}
	amount := rule.DiscountAmount.Decimal
	if amount.IsNegative() {
		return decimal.Decimal{}, false
	}

	var price decimal.Decimal
	switch rule.DiscountType {
	case models.DiscountTypePercentage:
		if amount.GreaterThan(hundred) {
			amount = hundred
		}
		price = base.Sub(base.Mul(amount).Shift(-2))
	case models.DiscountTypeFixed:
		price = base.Sub(amount)
	default:
		return decimal.Decimal{}, false
	}

	if a.clamp && price.IsNegative() {
		price = decimal.Zero
	}
	return price, true
}
