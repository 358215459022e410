package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"inventory-sync/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing sync domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishInventoryAdjusted publishes InventoryAdjusted, keyed by SKU
func (ep *EventPublisher) PublishInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error {
	return ep.producer.PublishEvent(ctx, event.SKU, event)
}

// PublishChannelsSynced publishes ChannelsSynced, keyed by SKU
func (ep *EventPublisher) PublishChannelsSynced(ctx context.Context, event *models.ChannelsSyncedEvent) error {
	return ep.producer.PublishEvent(ctx, event.SKU, event)
}

// PublishSyncCycleCompleted publishes SyncCycleCompleted
func (ep *EventPublisher) PublishSyncCycleCompleted(ctx context.Context, event *models.SyncCycleCompletedEvent) error {
	key := fmt.Sprintf("cycle-%d", event.Cycle)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed marketplace events into the engine
type EventHandler struct {
	onOrderPlaced    func(context.Context, *models.OrderPlacedEvent) error
	onOrderCancelled func(context.Context, *models.OrderCancelledEvent) error
	onStockReceived  func(context.Context, *models.StockReceivedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// OnStockReceived registers a handler for StockReceived events
func (eh *EventHandler) OnStockReceived(handler func(context.Context, *models.StockReceivedEvent) error) {
	eh.onStockReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	case models.EventTypeStockReceived:
		if eh.onStockReceived != nil {
			var event models.StockReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockReceived event: %w", err)
			}
			return eh.onStockReceived(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
