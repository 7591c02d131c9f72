package service

import (
	"context"

	"upsell-service/config"
	"upsell-service/internal/models"
	"upsell-service/internal/store"
	"upsell-service/internal/util"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OfferService ties rule matching, pricing and event recording to the
// extension points of the host commerce pipeline
type OfferService struct {
	rules    RuleFinder
	catalog  Catalog
	cart     CartStore
	matcher  *RuleMatcher
	adjuster *PriceAdjuster
	recorder *EventRecorder
	cfg      config.OffersConfig
	logger   *zap.Logger
}

// NewOfferService creates a new offer service
func NewOfferService(
	rules RuleFinder,
	catalog Catalog,
	cart CartStore,
	recorder *EventRecorder,
	cfg config.OffersConfig,
	logger *zap.Logger,
) *OfferService {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &OfferService{
		rules:    rules,
		catalog:  catalog,
		cart:     cart,
		matcher:  NewRuleMatcher(rules, logger),
		adjuster: NewPriceAdjuster(cfg.ClampNegativePrices),
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Offer is a matched rule together with the product it offers
type Offer struct {
	RuleID     int64            `json:"rule_id"`
	Title      string           `json:"title"`
	OfferType  models.OfferType `json:"offer_type"`
	Product    models.Product   `json:"product"`
	BasePrice  decimal.Decimal  `json:"base_price"`
	Price      decimal.Decimal  `json:"price"`
	Discounted bool             `json:"discounted"`
}

// AcceptOfferRequest is sent when a customer adds an offered product
type AcceptOfferRequest struct {
	CartID    string `json:"cart_id"`
	ProductID int64  `json:"product_id"`
	RuleID    int64  `json:"rule_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// AddToCartRequest is sent by the host when a customer adds a product to the
// cart outside of an offer
type AddToCartRequest struct {
	CartID    string `json:"cart_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// CompletionResult reports how the offer lines of an order were attributed.
// Lines whose rule was deleted are counted as unattributed.
type CompletionResult struct {
	OrderID          int64 `json:"order_id"`
	Converted        int   `json:"converted"`
	AlreadyConverted int   `json:"already_converted"`
	Unattributed     int   `json:"unattributed"`
	Duplicate        bool  `json:"duplicate"`
}

func (s *OfferService) newOffer(rule *models.Rule, product *models.Product) Offer {
	offer := Offer{
		RuleID:    rule.ID,
		Title:     rule.Title,
		OfferType: rule.OfferType,
		Product:   *product,
		BasePrice: product.Price,
		Price:     product.Price,
	}
	if price, ok := s.adjuster.DiscountedPrice(product.Price, rule); ok {
		offer.Price = price
		offer.Discounted = true
	}
	return offer
}

// GetUpsellOffer returns the upsell offer for a product just added to the
// cart. Any failure along the way is reported as no offer.
func (s *OfferService) GetUpsellOffer(ctx context.Context, productID int64) (*Offer, bool) {
	ctx, span := util.StartSpan(ctx, "OfferService.GetUpsellOffer", attribute.Int64("product_id", productID))
	defer span.End()

	if productID <= 0 {
		return nil, false
	}

	trigger, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Debug("Trigger product unavailable", zap.Int64("product_id", productID), zap.Error(err))
		util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeUpsell), "product_not_found").Inc()
		return nil, false
	}

	rule, ok := s.matcher.MatchUpsell(ctx, ProductRef{ProductID: trigger.ID, CategoryIDs: trigger.CategoryIDs})
	if !ok {
		return nil, false
	}

	target, err := s.catalog.GetProduct(ctx, rule.TargetProductID)
	if err != nil {
		s.logger.Warn("Upsell target product unavailable",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("product_id", rule.TargetProductID),
			zap.Error(err))
		util.OffersMissedTotal.WithLabelValues(string(models.OfferTypeUpsell), "target_not_found").Inc()
		return nil, false
	}

	offer := s.newOffer(rule, target)
	if s.cfg.TrackUpsellImpressions {
		_ = s.recorder.Record(ctx, rule.ID, models.EventTypeImpression)
	}
	return &offer, true
}

// GetCrossSellOffers returns the cross-sell offers for every line in the cart
// and records one impression per offer.
func (s *OfferService) GetCrossSellOffers(ctx context.Context, cartID string) ([]Offer, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.GetCrossSellOffers", attribute.String("cart_id", cartID))
	defer span.End()

	if cartID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "cart id is required")
	}

	offers := []Offer{}

	lines, err := s.cart.GetCart(ctx, cartID)
	if err != nil {
		s.logger.Warn("Failed to load cart", zap.String("cart_id", cartID), zap.Error(err))
		return offers, nil
	}
	if len(lines) == 0 {
		return offers, nil
	}

	// plain and offer lines of the same product trigger the same rules
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to load cart products", zap.String("cart_id", cartID), zap.Error(err))
		return offers, nil
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	refs := make([]ProductRef, 0, len(ids))
	for _, id := range ids {
		ref := ProductRef{ProductID: id}
		if p, ok := byID[id]; ok {
			ref.CategoryIDs = p.CategoryIDs
		}
		refs = append(refs, ref)
	}

	for _, rule := range s.matcher.MatchCrossSells(ctx, refs) {
		rule := rule
		target, err := s.catalog.GetProduct(ctx, rule.TargetProductID)
		if err != nil {
			s.logger.Warn("Cross-sell target product unavailable",
				zap.Int64("rule_id", rule.ID),
				zap.Int64("product_id", rule.TargetProductID),
				zap.Error(err))
			continue
		}
		offers = append(offers, s.newOffer(&rule, target))
		_ = s.recorder.Record(ctx, rule.ID, models.EventTypeImpression)
	}
	return offers, nil
}

// AddToCart records a plain cart line so cross-sell matching sees every
// product in the cart. Plain lines never merge with offer lines.
func (s *OfferService) AddToCart(ctx context.Context, req *AddToCartRequest) error {
	ctx, span := util.StartSpan(ctx, "OfferService.AddToCart",
		attribute.String("cart_id", req.CartID),
		attribute.Int64("product_id", req.ProductID))
	defer span.End()

	if req.CartID == "" || req.ProductID <= 0 || req.Quantity < 0 {
		return errors.Wrap(ErrInvalidInput, "cart_id and product_id are required")
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	if err := s.cart.AddLine(ctx, req.CartID, req.ProductID, quantity, 0); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "add cart line")
	}
	return nil
}

// AcceptOffer adds the offered product to the cart annotated with the rule id
// and records a click. Nothing is mutated or recorded when validation fails.
func (s *OfferService) AcceptOffer(ctx context.Context, req *AcceptOfferRequest) error {
	ctx, span := util.StartSpan(ctx, "OfferService.AcceptOffer",
		attribute.Int64("rule_id", req.RuleID),
		attribute.Int64("product_id", req.ProductID))
	defer span.End()

	if req.CartID == "" || req.ProductID <= 0 || req.RuleID <= 0 || req.Quantity < 0 {
		return errors.Wrap(ErrInvalidInput, "cart_id, product_id and rule_id are required")
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	rule, err := s.rules.GetRule(ctx, req.RuleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(ErrOfferUnavailable, "rule %d", req.RuleID)
		}
		return errors.Wrap(err, "get rule")
	}
	if rule.TargetProductID != req.ProductID {
		return errors.Wrapf(ErrOfferUnavailable, "rule %d does not offer product %d", rule.ID, req.ProductID)
	}

	if err := s.cart.AddLine(ctx, req.CartID, req.ProductID, quantity, rule.ID); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "add offer to cart")
	}
	util.OffersAcceptedTotal.WithLabelValues(string(rule.OfferType)).Inc()

	_ = s.recorder.Record(ctx, rule.ID, models.EventTypeClick)

	s.logger.Info("Offer accepted",
		zap.String("cart_id", req.CartID),
		zap.Int64("rule_id", rule.ID),
		zap.Int64("product_id", req.ProductID))
	return nil
}

// ApplyCartDiscounts recomputes the offer price of every annotated cart line
// from the catalog base price. Lines whose rule or product is gone keep their
// base price.
func (s *OfferService) ApplyCartDiscounts(ctx context.Context, cartID string) ([]models.PriceOverride, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.ApplyCartDiscounts", attribute.String("cart_id", cartID))
	defer span.End()

	if cartID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "cart id is required")
	}

	lines, err := s.cart.GetCart(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	annotated := make([]models.CartLine, 0, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.Annotated() {
			annotated = append(annotated, l)
			ids = append(ids, l.ProductID)
		}
	}

	overrides := []models.PriceOverride{}
	if len(annotated) == 0 {
		return overrides, nil
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get cart products")
	}
	prices := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	rules := make(map[int64]*models.Rule)
	for _, line := range annotated {
		base, ok := prices[line.ProductID]
		if !ok {
			continue
		}

		rule, cached := rules[line.RuleID]
		if !cached {
			rule, err = s.rules.GetRule(ctx, line.RuleID)
			if err != nil {
				s.logger.Debug("Annotated rule unavailable", zap.Int64("rule_id", line.RuleID), zap.Error(err))
				rule = nil
			}
			rules[line.RuleID] = rule
		}
		if rule == nil || rule.TargetProductID != line.ProductID {
			continue
		}

		price, ok := s.adjuster.DiscountedPrice(base, rule)
		if !ok {
			continue
		}
		overrides = append(overrides, models.PriceOverride{
			ProductID: line.ProductID,
			RuleID:    rule.ID,
			BasePrice: base,
			Price:     price,
		})
		util.PriceOverridesTotal.Inc()
	}
	return overrides, nil
}

type conversionLine struct {
	ruleID, productID int64
}

// CompleteOrder records a conversion for every order line added through an
// offer. Lines of the same rule and product are summed and converted at most
// once, so a failed completion can be retried safely. The session cart, and
// with it every offer annotation, is dropped once the order is handled.
func (s *OfferService) CompleteOrder(ctx context.Context, order *models.Order) (*CompletionResult, error) {
	ctx, span := util.StartSpan(ctx, "OfferService.CompleteOrder", attribute.Int64("order_id", order.OrderID))
	defer span.End()

	if order.OrderID <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "order id is required")
	}

	var keys []conversionLine
	totals := make(map[conversionLine]decimal.Decimal)
	for _, l := range order.Lines {
		if l.RuleID <= 0 {
			continue
		}
		if l.ProductID <= 0 || l.Total.IsNegative() {
			return nil, errors.Wrapf(ErrInvalidInput, "order %d has a malformed offer line", order.OrderID)
		}
		key := conversionLine{ruleID: l.RuleID, productID: l.ProductID}
		if _, ok := totals[key]; !ok {
			keys = append(keys, key)
		}
		totals[key] = totals[key].Add(l.Total)
	}

	result := &CompletionResult{OrderID: order.OrderID}
	for _, key := range keys {
		first, err := s.recorder.RecordConversion(ctx, &models.Conversion{
			OrderID:   order.OrderID,
			RuleID:    key.ruleID,
			ProductID: key.productID,
			Amount:    totals[key],
		})
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("Offer rule no longer exists",
				zap.Int64("order_id", order.OrderID),
				zap.Int64("rule_id", key.ruleID))
			result.Unattributed++
		case err != nil:
			span.RecordError(err)
			return nil, errors.Wrapf(err, "convert order %d", order.OrderID)
		case first:
			result.Converted++
		default:
			result.AlreadyConverted++
		}
	}
	result.Duplicate = len(keys) > 0 && result.AlreadyConverted == len(keys)

	s.clearCart(ctx, order.CartID)

	if result.Converted > 0 {
		util.OrdersConvertedTotal.Inc()
	}
	s.logger.Info("Order completed",
		zap.Int64("order_id", order.OrderID),
		zap.Int("converted", result.Converted),
		zap.Int("already_converted", result.AlreadyConverted),
		zap.Int("unattributed", result.Unattributed))
	return result, nil
}

func (s *OfferService) clearCart(ctx context.Context, cartID string) {
	if cartID == "" {
		return
	}
	if err := s.cart.ClearCart(ctx, cartID); err != nil {
		s.logger.Warn("Failed to clear cart", zap.String("cart_id", cartID), zap.Error(err))
	}
}
