package service

import (
	"context"
	"strings"

	"upsell-service/internal/models"
	"upsell-service/internal/store"
	"upsell-service/internal/util"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RuleService manages upsell and cross-sell rules
type RuleService struct {
	rules   RuleRepository
	catalog Catalog
	logger  *zap.Logger
}

// NewRuleService creates a new rule service
func NewRuleService(rules RuleRepository, catalog Catalog, logger *zap.Logger) *RuleService {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &RuleService{rules: rules, catalog: catalog, logger: logger}
}

// RuleRequest is the writable part of a rule
type RuleRequest struct {
	Title             string              `json:"title"`
	OfferType         models.OfferType    `json:"offer_type"`
	TriggerType       models.TriggerType  `json:"trigger_type"`
	TriggerProductID  *int64              `json:"trigger_product_id,omitempty"`
	TriggerCategoryID *int64              `json:"trigger_category_id,omitempty"`
	TargetProductID   int64               `json:"target_product_id"`
	DiscountType      models.DiscountType `json:"discount_type"`
	DiscountAmount    decimal.NullDecimal `json:"discount_amount"`
}

// CreateRule validates and stores a new rule
func (s *RuleService) CreateRule(ctx context.Context, req *RuleRequest) (*models.Rule, error) {
	rule, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, errors.Wrap(err, "create rule")
	}
	s.logger.Info("Rule created", zap.Int64("rule_id", rule.ID), zap.String("offer_type", string(rule.OfferType)))
	return rule, nil
}

// UpdateRule replaces the writable fields of a rule. Accumulated revenue is
// left untouched.
func (s *RuleService) UpdateRule(ctx context.Context, id int64, req *RuleRequest) (*models.Rule, error) {
	rule, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	if err := s.rules.UpdateRule(ctx, rule); err != nil {
		return nil, errors.Wrapf(err, "update rule %d", id)
	}
	s.logger.Info("Rule updated", zap.Int64("rule_id", id))
	return rule, nil
}

// GetRule returns a rule by id
func (s *RuleService) GetRule(ctx context.Context, id int64) (*models.Rule, error) {
	return s.rules.GetRule(ctx, id)
}

// ListRules returns every rule in creation order
func (s *RuleService) ListRules(ctx context.Context) ([]models.Rule, error) {
	return s.rules.ListRules(ctx)
}

// DeleteRule removes a rule and its recorded events
func (s *RuleService) DeleteRule(ctx context.Context, id int64) error {
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return errors.Wrapf(err, "delete rule %d", id)
	}
	s.logger.Info("Rule deleted", zap.Int64("rule_id", id))
	return nil
}

func invalidRule(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidRule, format, args...)
}

func (s *RuleService) validate(ctx context.Context, req *RuleRequest) (*models.Rule, error) {
	rule := &models.Rule{
		Title:           strings.TrimSpace(req.Title),
		OfferType:       req.OfferType,
		TriggerType:     req.TriggerType,
		TargetProductID: req.TargetProductID,
		DiscountType:    req.DiscountType,
		DiscountAmount:  req.DiscountAmount,
	}

	if rule.Title == "" {
		return nil, invalidRule("title is required")
	}
	if !rule.OfferType.Valid() {
		return nil, invalidRule("unknown offer type %q", rule.OfferType)
	}

	switch rule.TriggerType {
	case models.TriggerTypeProduct:
		if req.TriggerProductID == nil || *req.TriggerProductID <= 0 {
			return nil, invalidRule("product trigger needs trigger_product_id")
		}
		if req.TriggerCategoryID != nil {
			return nil, invalidRule("product trigger cannot carry trigger_category_id")
		}
		rule.TriggerProductID = req.TriggerProductID
	case models.TriggerTypeCategory:
		if req.TriggerCategoryID == nil || *req.TriggerCategoryID <= 0 {
			return nil, invalidRule("category trigger needs trigger_category_id")
		}
		if req.TriggerProductID != nil {
			return nil, invalidRule("category trigger cannot carry trigger_product_id")
		}
		rule.TriggerCategoryID = req.TriggerCategoryID
	default:
		return nil, invalidRule("unknown trigger type %q", rule.TriggerType)
	}

	if rule.TargetProductID <= 0 {
		return nil, invalidRule("target_product_id is required")
	}

	if rule.DiscountType == "" {
		rule.DiscountType = models.DiscountTypeNone
	}
	switch rule.DiscountType {
	case models.DiscountTypeNone:
		rule.DiscountAmount = decimal.NullDecimal{}
	case models.DiscountTypePercentage:
		if !rule.DiscountAmount.Valid {
			return nil, invalidRule("percentage discount needs an amount")
		}
		amount := rule.DiscountAmount.Decimal
		if amount.IsNegative() || amount.GreaterThan(hundred) {
			return nil, invalidRule("percentage must be between 0 and 100, got %s", amount)
		}
	case models.DiscountTypeFixed:
		if !rule.DiscountAmount.Valid {
			return nil, invalidRule("fixed discount needs an amount")
		}
		amount := rule.DiscountAmount.Decimal
		if amount.IsNegative() {
			return nil, invalidRule("fixed discount cannot be negative, got %s", amount)
		}
		if err := s.checkFixedAmount(ctx, rule.TargetProductID, amount); err != nil {
			return nil, err
		}
	default:
		return nil, invalidRule("unknown discount type %q", rule.DiscountType)
	}

	return rule, nil
}

// checkFixedAmount rejects a fixed discount above the target's catalog price.
// Products unknown to the catalog are not checked.
func (s *RuleService) checkFixedAmount(ctx context.Context, productID int64, amount decimal.Decimal) error {
	if s.catalog == nil {
		return nil
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "get target product")
	}
	if amount.GreaterThan(product.Price) {
		return invalidRule("fixed discount %s exceeds product price %s", amount, product.Price)
	}
	return nil
}
