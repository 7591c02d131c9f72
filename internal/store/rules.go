package store

import (
	"context"
	"database/sql"
	"fmt"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
)

const ruleColumns = `id, title, offer_type, trigger_type, trigger_product_id, trigger_category_id,
	target_product_id, discount_type, discount_amount, accumulated_revenue, created_at, updated_at`

// CreateRule inserts a new rule. Accumulated revenue always starts at zero.
func (s *Store) CreateRule(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT INTO upsell_rules (title, offer_type, trigger_type, trigger_product_id, trigger_category_id,
			target_product_id, discount_type, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, accumulated_revenue, created_at, updated_at`

	err := s.db.GetContext(ctx, rule, query,
		rule.Title, rule.OfferType, rule.TriggerType, rule.TriggerProductID, rule.TriggerCategoryID,
		rule.TargetProductID, rule.DiscountType, rule.DiscountAmount)
	if err != nil {
		return errors.Wrap(err, "insert rule")
	}
	return nil
}

// UpdateRule overwrites the editable fields of a rule
func (s *Store) UpdateRule(ctx context.Context, rule *models.Rule) error {
	query := `
		UPDATE upsell_rules
		SET title = $1, offer_type = $2, trigger_type = $3, trigger_product_id = $4, trigger_category_id = $5,
			target_product_id = $6, discount_type = $7, discount_amount = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING accumulated_revenue, created_at, updated_at`

	err := s.db.GetContext(ctx, rule, query,
		rule.Title, rule.OfferType, rule.TriggerType, rule.TriggerProductID, rule.TriggerCategoryID,
		rule.TargetProductID, rule.DiscountType, rule.DiscountAmount, rule.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "rule %d", rule.ID)
	}
	if err != nil {
		return errors.Wrap(err, "update rule")
	}
	return nil
}

// DeleteRule removes a rule and, by cascade, its recorded events
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM upsell_rules WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "delete rule")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete rule")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "rule %d", id)
	}
	return nil
}

// GetRule retrieves a rule by ID
func (s *Store) GetRule(ctx context.Context, id int64) (*models.Rule, error) {
	var rule models.Rule
	err := s.db.GetContext(ctx, &rule, "SELECT "+ruleColumns+" FROM upsell_rules WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "rule %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get rule")
	}
	return &rule, nil
}

// ListRules retrieves all rules in creation order
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	rules := []models.Rule{}
	err := s.db.SelectContext(ctx, &rules, "SELECT "+ruleColumns+" FROM upsell_rules ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	return rules, nil
}

// FindRules returns rules of the queried offer type triggered either by the
// product itself or by one of its categories, oldest first.
func (s *Store) FindRules(ctx context.Context, q models.RuleQuery) ([]models.Rule, error) {
	categoryIDs := q.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []int64{}
	}

	query := `SELECT ` + ruleColumns + ` FROM upsell_rules
		WHERE offer_type = $1 AND (
			(trigger_type = 'product' AND trigger_product_id = $2)
			OR (trigger_type = 'category' AND trigger_category_id = ANY($3))
		)
		ORDER BY id`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rules := []models.Rule{}
	if err := s.db.SelectContext(ctx, &rules, query, q.OfferType, q.ProductID, pq.Array(categoryIDs)); err != nil {
		return nil, errors.Wrap(err, "find rules")
	}
	return rules, nil
}
