package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"exchange-service/internal/models"
	"exchange-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// ProductKey partitions events by the product under negotiation
func ProductKey(productID int64) string {
	return fmt.Sprintf("product-%d", productID)
}

// PublishNegotiationEvent publishes a request status transition
func (ep *EventPublisher) PublishNegotiationEvent(ctx context.Context, event *models.NegotiationEvent) error {
	return ep.producer.PublishEvent(ctx, ProductKey(event.ProductID), event.EventType, event)
}

// PublishMessageSent publishes a MessageSent event
func (ep *EventPublisher) PublishMessageSent(ctx context.Context, productID int64, event *models.MessageSentEvent) error {
	return ep.producer.PublishEvent(ctx, ProductKey(productID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onApproved func(context.Context, *models.NegotiationEvent) error
	onClosed   func(context.Context, *models.NegotiationEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnApproved registers a handler for NegotiationApproved events
func (eh *EventHandler) OnApproved(handler func(context.Context, *models.NegotiationEvent) error) {
	eh.onApproved = handler
}

// OnClosed registers a handler for NegotiationRejected and NegotiationCancelled events
func (eh *EventHandler) OnClosed(handler func(context.Context, *models.NegotiationEvent) error) {
	eh.onClosed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var handler func(context.Context, *models.NegotiationEvent) error
	switch baseEvent.EventType {
	case models.EventTypeNegotiationApproved:
		handler = eh.onApproved
	case models.EventTypeNegotiationRejected, models.EventTypeNegotiationCancelled:
		handler = eh.onClosed
	}

	if handler == nil {
		return nil
	}

	var event models.NegotiationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
