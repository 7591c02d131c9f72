package service

import (
	"context"
	"time"

	"upsell-service/internal/models"
	"upsell-service/internal/util"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventRecorder appends impression, click and conversion events per rule
type EventRecorder struct {
	events    EventStore
	publisher Publisher
	logger    *zap.Logger
}

// NewEventRecorder creates a new event recorder. A nil publisher disables
// event publishing.
func NewEventRecorder(events EventStore, publisher Publisher, logger *zap.Logger) *EventRecorder {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &EventRecorder{events: events, publisher: publisher, logger: logger}
}

// Report summarizes all recorded events
type Report struct {
	Impressions    int64           `json:"impressions"`
	Clicks         int64           `json:"clicks"`
	Conversions    int64           `json:"conversions"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
	Revenue        decimal.Decimal `json:"revenue"`
}

// RuleReport is the per-rule breakdown of recorded events
type RuleReport struct {
	models.RuleStats
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// Record appends a single impression or click event for the rule
func (r *EventRecorder) Record(ctx context.Context, ruleID int64, eventType models.EventType) error {
	if ruleID <= 0 || !eventType.Valid() {
		return errors.Wrapf(ErrInvalidInput, "record %q for rule %d", eventType, ruleID)
	}
	if eventType == models.EventTypeConversion {
		return errors.Wrap(ErrInvalidInput, "conversions carry a line total")
	}
	return r.insert(ctx, ruleID, eventType, decimal.Zero)
}

// RecordConversion appends a conversion event and adds its amount to the
// rule's accumulated revenue as one storage write. It returns false when the
// conversion was already recorded, in which case nothing changes.
func (r *EventRecorder) RecordConversion(ctx context.Context, conversion *models.Conversion) (bool, error) {
	ctx, span := util.StartSpan(ctx, "EventRecorder.RecordConversion",
		attribute.Int64("order_id", conversion.OrderID),
		attribute.Int64("rule_id", conversion.RuleID))
	defer span.End()

	if conversion.OrderID <= 0 || conversion.RuleID <= 0 || conversion.ProductID <= 0 {
		return false, errors.Wrap(ErrInvalidInput, "conversion needs order, rule and product ids")
	}
	if conversion.Amount.IsNegative() {
		return false, errors.Wrapf(ErrInvalidInput, "negative line total %s", conversion.Amount)
	}

	first, err := r.events.RecordConversion(ctx, conversion)
	if err != nil {
		span.RecordError(err)
		util.OfferEventRecordFailures.WithLabelValues(string(models.EventTypeConversion)).Inc()
		r.logger.Error("Failed to record conversion",
			zap.Int64("order_id", conversion.OrderID),
			zap.Int64("rule_id", conversion.RuleID),
			zap.String("amount", conversion.Amount.String()),
			zap.Error(err))
		return false, errors.Wrap(err, "record conversion")
	}
	if !first {
		return false, nil
	}

	util.OfferEventsTotal.WithLabelValues(string(models.EventTypeConversion)).Inc()
	amount, _ := conversion.Amount.Float64()
	util.OfferRevenueTotal.Add(amount)

	r.publish(ctx, conversion.RuleID, models.EventTypeConversion, conversion.Amount)
	return true, nil
}

func (r *EventRecorder) insert(ctx context.Context, ruleID int64, eventType models.EventType, amount decimal.Decimal) error {
	event := &models.StatEvent{RuleID: ruleID, EventType: eventType}
	if err := r.events.InsertStatEvent(ctx, event); err != nil {
		util.OfferEventRecordFailures.WithLabelValues(string(eventType)).Inc()
		r.logger.Error("Failed to record offer event",
			zap.Int64("rule_id", ruleID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
		return errors.Wrapf(err, "record %s", eventType)
	}
	util.OfferEventsTotal.WithLabelValues(string(eventType)).Inc()

	r.publish(ctx, ruleID, eventType, amount)
	return nil
}

func (r *EventRecorder) publish(ctx context.Context, ruleID int64, eventType models.EventType, amount decimal.Decimal) {
	if r.publisher == nil {
		return
	}
	event := &models.OfferEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOfferEvent,
			Timestamp: time.Now(),
		},
		RuleID:      ruleID,
		Interaction: eventType,
		Amount:      amount,
	}
	if err := r.publisher.PublishOfferEvent(ctx, event); err != nil {
		r.logger.Warn("Failed to publish offer event",
			zap.Int64("rule_id", ruleID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// Stats returns how many events of eventType were recorded
func (r *EventRecorder) Stats(ctx context.Context, eventType models.EventType) (int64, error) {
	if !eventType.Valid() {
		return 0, errors.Wrapf(ErrInvalidInput, "event type %q", eventType)
	}
	return r.events.CountEvents(ctx, eventType)
}

// Report returns totals across every rule
func (r *EventRecorder) Report(ctx context.Context) (*Report, error) {
	var report Report
	counts := []struct {
		eventType models.EventType
		dst       *int64
	}{
		{models.EventTypeImpression, &report.Impressions},
		{models.EventTypeClick, &report.Clicks},
		{models.EventTypeConversion, &report.Conversions},
	}
	for _, c := range counts {
		n, err := r.events.CountEvents(ctx, c.eventType)
		if err != nil {
			return nil, errors.Wrapf(err, "count %s", c.eventType)
		}
		*c.dst = n
	}

	revenue, err := r.events.TotalRevenue(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "total revenue")
	}
	report.Revenue = revenue
	report.ConversionRate = ConversionRate(report.Impressions, report.Clicks)
	return &report, nil
}

// RuleReport returns per-rule counts and revenue in rule id order
func (r *EventRecorder) RuleReport(ctx context.Context) ([]RuleReport, error) {
	stats, err := r.events.RuleStats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "rule stats")
	}
	reports := make([]RuleReport, 0, len(stats))
	for _, s := range stats {
		reports = append(reports, RuleReport{
			RuleStats:      s,
			ConversionRate: ConversionRate(s.Impressions, s.Clicks),
		})
	}
	return reports, nil
}

// ConversionRate is clicks per impression as a percentage rounded to two
// decimals. It is zero when there are no impressions.
func ConversionRate(impressions, clicks int64) decimal.Decimal {
	if impressions <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(clicks).
		Mul(hundred).
		Div(decimal.NewFromInt(impressions)).
		Round(2)
}
