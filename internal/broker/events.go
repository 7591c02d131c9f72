package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"upsell-service/internal/models"
	"upsell-service/internal/util"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedMessage marks a message that can never be handled. The
// consumer commits it instead of retrying.
var ErrMalformedMessage = errors.New("malformed message")

// ErrPublishQueueFull is returned when an offer event is dropped because the
// publish queue has no room.
var ErrPublishQueueFull = errors.New("publish queue full")

// eventWriter writes one keyed event to the broker
type eventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher queues offer events and writes them from Run so request
// paths never wait on the broker.
type EventPublisher struct {
	writer  eventWriter
	queue   chan *models.OfferEvent
	timeout time.Duration
	logger  *zap.Logger
}

// NewEventPublisher creates a new event publisher holding at most queueSize
// pending events. Each write is bounded by timeout.
func NewEventPublisher(writer eventWriter, queueSize int, timeout time.Duration) *EventPublisher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &EventPublisher{
		writer:  writer,
		queue:   make(chan *models.OfferEvent, queueSize),
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// PublishOfferEvent enqueues an impression, click or conversion without
// blocking. It returns ErrPublishQueueFull when the event is dropped.
func (ep *EventPublisher) PublishOfferEvent(_ context.Context, event *models.OfferEvent) error {
	select {
	case ep.queue <- event:
		util.OfferPublishQueueDepth.Inc()
		return nil
	default:
		util.OfferEventsPublished.WithLabelValues("dropped").Inc()
		return errors.Wrapf(ErrPublishQueueFull, "rule %d %s", event.RuleID, event.Interaction)
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// already queued.
func (ep *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			ep.flush()
			return nil
		case event := <-ep.queue:
			ep.write(event)
		}
	}
}

func (ep *EventPublisher) flush() {
	for n := len(ep.queue); n > 0; n-- {
		ep.write(<-ep.queue)
	}
}

// write is bounded by the publish timeout only, so events dequeued during
// shutdown are still written.
func (ep *EventPublisher) write(event *models.OfferEvent) {
	util.OfferPublishQueueDepth.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), ep.timeout)
	defer cancel()

	key := fmt.Sprintf("rule-%d", event.RuleID)
	if err := ep.writer.PublishEvent(ctx, key, event); err != nil {
		util.OfferEventsPublished.WithLabelValues("failed").Inc()
		ep.logger.Warn("Failed to publish offer event",
			zap.String("event_id", event.EventID),
			zap.Int64("rule_id", event.RuleID),
			zap.Error(err))
		return
	}
	util.OfferEventsPublished.WithLabelValues("written").Inc()
}

// NopPublisher drops events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishOfferEvent(context.Context, *models.OfferEvent) error { return nil }

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCompleted func(context.Context, *models.OrderCompletedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCompleted registers a handler for OrderCompleted events
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "unmarshal base event: %v", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return errors.Wrapf(ErrMalformedMessage, "unmarshal OrderCompleted event: %v", err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
