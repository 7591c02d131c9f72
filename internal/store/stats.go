package store

import (
	"context"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// InsertStatEvent appends an impression or click row
func (s *Store) InsertStatEvent(ctx context.Context, event *models.StatEvent) error {
	return insertStatEvent(ctx, s.db, event)
}

func insertStatEvent(ctx context.Context, q sqlx.QueryerContext, event *models.StatEvent) error {
	query := `
		INSERT INTO offer_stats (rule_id, event_type)
		VALUES ($1, $2)
		RETURNING id, created_at`

	if err := sqlx.GetContext(ctx, q, event, query, event.RuleID, event.EventType); err != nil {
		return errors.Wrap(err, "insert stat event")
	}
	return nil
}

// incrementRevenue adds delta to a rule's accumulated revenue in a single
// statement so concurrent conversions cannot lose updates.
func incrementRevenue(ctx context.Context, e sqlx.ExecerContext, ruleID int64, delta decimal.Decimal) error {
	res, err := e.ExecContext(ctx,
		"UPDATE upsell_rules SET accumulated_revenue = accumulated_revenue + $1, updated_at = NOW() WHERE id = $2",
		delta, ruleID)
	if err != nil {
		return errors.Wrap(err, "increment revenue")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "increment revenue")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "rule %d", ruleID)
	}
	return nil
}

// RecordConversion writes the conversion guard row, the revenue increment and
// the conversion event in one transaction. It returns false without writing
// anything when the conversion was already recorded.
func (s *Store) RecordConversion(ctx context.Context, conversion *models.Conversion) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin conversion")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO converted_lines (order_id, rule_id, product_id, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, rule_id, product_id) DO NOTHING`,
		conversion.OrderID, conversion.RuleID, conversion.ProductID, conversion.Amount)
	if err != nil {
		return false, errors.Wrap(err, "mark line converted")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "mark line converted")
	}
	if n == 0 {
		return false, nil
	}

	if err := incrementRevenue(ctx, tx, conversion.RuleID, conversion.Amount); err != nil {
		return false, err
	}
	event := &models.StatEvent{RuleID: conversion.RuleID, EventType: models.EventTypeConversion}
	if err := insertStatEvent(ctx, tx, event); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit conversion")
	}
	return true, nil
}

// CountEvents counts recorded events of one type across all rules
func (s *Store) CountEvents(ctx context.Context, eventType models.EventType) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM offer_stats WHERE event_type = $1", eventType)
	if err != nil {
		return 0, errors.Wrap(err, "count events")
	}
	return count, nil
}

// TotalRevenue sums accumulated revenue across all rules
func (s *Store) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total, "SELECT COALESCE(SUM(accumulated_revenue), 0) FROM upsell_rules")
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "total revenue")
	}
	return total, nil
}

// RuleStats aggregates event counts and revenue per rule
func (s *Store) RuleStats(ctx context.Context) ([]models.RuleStats, error) {
	query := `
		SELECT r.id AS rule_id, r.title, r.offer_type,
			COUNT(st.id) FILTER (WHERE st.event_type = 'impression') AS impressions,
			COUNT(st.id) FILTER (WHERE st.event_type = 'click') AS clicks,
			COUNT(st.id) FILTER (WHERE st.event_type = 'conversion') AS conversions,
			r.accumulated_revenue AS revenue
		FROM upsell_rules r
		LEFT JOIN offer_stats st ON st.rule_id = r.id
		GROUP BY r.id
		ORDER BY r.id`

	stats := []models.RuleStats{}
	if err := s.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, errors.Wrap(err, "rule stats")
	}
	return stats, nil
}
