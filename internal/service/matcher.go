package service

import (
	"context"
	"time"

	"upsell-service/internal/models"
	"upsell-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProductRef identifies a product and the categories it belongs to
type ProductRef struct {
	ProductID   int64
	CategoryIDs []int64
}

// RuleMatcher finds the rules triggered by a product or a cart
type RuleMatcher struct {
	rules  RuleFinder
	logger *zap.Logger
}

// NewRuleMatcher creates a new rule matcher
func NewRuleMatcher(rules RuleFinder, logger *zap.Logger) *RuleMatcher {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &RuleMatcher{rules: rules, logger: logger}
}

// FindRules returns the rules of offerType triggered by the product or any of
// its categories, in creation order. limit <= 0 means no limit.
func (m *RuleMatcher) FindRules(ctx context.Context, offerType models.OfferType, productID int64, categoryIDs []int64, limit int) ([]models.Rule, error) {
	ctx, span := util.StartSpan(ctx, "RuleMatcher.FindRules",
		attribute.String("offer_type", string(offerType)),
		attribute.Int64("product_id", productID))
	defer span.End()

	start := time.Now()
	rules, err := m.rules.FindRules(ctx, models.RuleQuery{
		OfferType:   offerType,
		ProductID:   productID,
		CategoryIDs: categoryIDs,
		Limit:       limit,
	})
	util.RuleMatchLatency.WithLabelValues(string(offerType)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rules, nil
}

// MatchUpsell returns the first upsell rule triggered by the product.
// Lookup failures are logged and reported as no match.
func (m *RuleMatcher) MatchUpsell(ctx context.Context, product ProductRef) (*models.Rule, bool) {
	rules, err := m.FindRules(ctx, models.OfferTypeUpsell, product.ProductID, product.CategoryIDs, 1)
	if err != nil {
		m.logger.Warn("Upsell lookup failed",
			zap.Int64("product_id", product.ProductID),
			zap.Error(err))
		util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeUpsell), "lookup_failed").Inc()
		return nil, false
	}
	if len(rules) == 0 {
		util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeUpsell), "no_match").Inc()
		return nil, false
	}

	util.OffersMatchedTotal.WithLabelValues(string(models.OfferTypeUpsell)).Inc()
	return &rules[0], true
}

// MatchCrossSells collects the cross-sell rules triggered by every line,
// de-duplicated by rule id in first-seen order. A failed lookup for one line
// does not hide the matches of the others.
func (m *RuleMatcher) MatchCrossSells(ctx context.Context, lines []ProductRef) []models.Rule {
	seen := make(map[int64]bool)
	matched := []models.Rule{}

	for _, line := range lines {
		rules, err := m.FindRules(ctx, models.OfferTypeCrossSell, line.ProductID, line.CategoryIDs, 0)
		if err != nil {
			m.logger.Warn("Cross-sell lookup failed",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
			util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeCrossSell), "lookup_failed").Inc()
			continue
		}
		for _, r := range rules {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			matched = append(matched, r)
		}
	}

	if len(matched) == 0 {
		util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeCrossSell), "no_match").Inc()
	} else {
		util.OffersMatchedTotal.WithLabelValues(string(models.OfferTypeCrossSell)).Add(float64(len(matched)))
	}
	return matched
}
