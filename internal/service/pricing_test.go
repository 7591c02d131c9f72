package service

import (
	"testing"

	"upsell-service/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func discountRule(t models.DiscountType, amount string) *models.Rule {
	r := &models.Rule{ID: 1, DiscountType: t}
	if amount != "" {
		r.DiscountAmount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return r
}

func cents(v int64) decimal.Decimal { return decimal.New(v, -2) }

func TestDiscountedPriceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	adjuster := NewPriceAdjuster(true)

	properties.Property("no discount never adjusts", prop.ForAll(
		func(base, amount int64) bool {
			rule := &models.Rule{DiscountType: models.DiscountTypeNone, DiscountAmount: decimal.NewNullDecimal(cents(amount))}
			_, ok := adjuster.DiscountedPrice(cents(base), rule)
			return !ok
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(-10_000, 1_000_000),
	))

	properties.Property("percentage is base times one minus rate and stable", prop.ForAll(
		func(base, basisPoints int64) bool {
			rule := &models.Rule{DiscountType: models.DiscountTypePercentage, DiscountAmount: decimal.NewNullDecimal(cents(basisPoints))}
			want := cents(base).Mul(decimal.NewFromInt(1).Sub(cents(basisPoints).Div(hundred)))

			first, ok1 := adjuster.DiscountedPrice(cents(base), rule)
			second, ok2 := adjuster.DiscountedPrice(cents(base), rule)
			return ok1 && ok2 && first.Equal(want) && second.Equal(first)
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 10_000),
	))

	properties.Property("fixed subtracts and never goes negative", prop.ForAll(
		func(base, amount int64) bool {
			rule := &models.Rule{DiscountType: models.DiscountTypeFixed, DiscountAmount: decimal.NewNullDecimal(cents(amount))}
			price, ok := adjuster.DiscountedPrice(cents(base), rule)
			if !ok || price.IsNegative() {
				return false
			}
			if amount <= base {
				return price.Equal(cents(base - amount))
			}
			return price.IsZero()
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 2_000_000),
	))

	properties.TestingRun(t)
}

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		name    string
		clamp   bool
		base    string
		rule    *models.Rule
		want    string
		applies bool
	}{
		{"nil rule", true, "100", nil, "", false},
		{"none", true, "100", discountRule(models.DiscountTypeNone, "10"), "", false},
		{"unset amount", true, "100", discountRule(models.DiscountTypePercentage, ""), "", false},
		{"percentage", true, "100", discountRule(models.DiscountTypePercentage, "10"), "90", true},
		{"fractional percentage", true, "19.99", discountRule(models.DiscountTypePercentage, "12.5"), "17.49125", true},
		{"percentage above 100", true, "80", discountRule(models.DiscountTypePercentage, "150"), "0", true},
		{"fixed", true, "100", discountRule(models.DiscountTypeFixed, "15.50"), "84.5", true},
		{"fixed above price clamps", true, "10", discountRule(models.DiscountTypeFixed, "25"), "0", true},
		{"fixed above price unclamped", false, "10", discountRule(models.DiscountTypeFixed, "25"), "-15", true},
		{"negative amount", true, "100", discountRule(models.DiscountTypeFixed, "-5"), "", false},
		{"unknown type", true, "100", discountRule(models.DiscountType("bogo"), "5"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, ok := NewPriceAdjuster(tt.clamp).DiscountedPrice(decimal.RequireFromString(tt.base), tt.rule)
			assert.Equal(t, tt.applies, ok)
			if tt.applies {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(price), "got %s want %s", price, tt.want)
			}
		})
	}
}
