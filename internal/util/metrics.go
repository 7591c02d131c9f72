package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersMatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offers_matched_total",
		Help: "Total number of rule lookups that produced an offer",
	}, []string{"offer_type"})

	OffersMissedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offers_missed_total",
		Help: "Total number of rule lookups that produced no offer",
	}, []string{"offer_type", "reason"})

	RuleMatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rule_match_latency_seconds",
		Help:    "Latency of rule store lookups",
		Buckets: prometheus.DefBuckets,
	}, []string{"offer_type"})

	OfferEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_events_total",
		Help: "Total number of recorded offer events",
	}, []string{"event_type"})

	OfferEventRecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_event_record_failures_total",
		Help: "Total number of offer events that could not be recorded",
	}, []string{"event_type"})

	OfferRevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offer_revenue_total",
		Help: "Order value attributed to accepted offers",
	})

	PriceOverridesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_overrides_total",
		Help: "Total number of discounted cart line prices computed",
	})

	OffersAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offers_accepted_total",
		Help: "Total number of offers added to a cart",
	}, []string{"offer_type"})

	OrdersConvertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_converted_total",
		Help: "Total number of completed orders containing accepted offers",
	})

	OfferEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_events_published_total",
		Help: "Offer events handed to Kafka by outcome",
	}, []string{"outcome"})

	OfferPublishQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offer_publish_queue_depth",
		Help: "Offer events waiting to be written to Kafka",
	})

	OrderEventRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_event_retries_total",
		Help: "Order event deliveries retried after a handler error",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
