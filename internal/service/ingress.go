package service

import (
	"context"
	"errors"
	"fmt"

	"inventory-sync/internal/models"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"

	"go.uber.org/zap"
)

// IngressService applies order-flow events from the broker to the ledger.
// Events are deduplicated by event ID, so replays and redeliveries cannot
// double-count a sale or restock.
type IngressService struct {
	events EventStore
	ledger *Ledger
	logger *zap.Logger
}

// NewIngressService creates a new ingress service
func NewIngressService(events EventStore, ledger *Ledger) *IngressService {
	return &IngressService{
		events: events,
		ledger: ledger,
		logger: util.GetLogger(),
	}
}

// HandleOrderPlaced decrements totals for every line of a placed order
func (is *IngressService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "IngressService.HandleOrderPlaced")
	defer span.End()

	processed, err := is.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		is.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.IngressEventsTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	is.logger.Info("Handling order placed",
		zap.String("order_id", event.OrderID),
		zap.String("platform", event.Platform),
		zap.Int("lines", len(event.Lines)))

	for _, line := range event.Lines {
		if line.Quantity <= 0 {
			is.logger.Warn("Order line has non-positive quantity",
				zap.String("sku", line.SKU),
				zap.Int("quantity", line.Quantity),
				zap.String("order_id", event.OrderID))
			continue
		}
		reason := fmt.Sprintf("sale of %d units on %s (order %s)", line.Quantity, event.Platform, event.OrderID)
		if _, err := is.ledger.AdjustInventory(ctx, line.SKU, -line.Quantity, reason, event.Platform); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				is.logger.Warn("Order line references unknown SKU",
					zap.String("sku", line.SKU),
					zap.String("order_id", event.OrderID))
				continue
			}
			is.logger.Error("Failed to record sale",
				zap.String("sku", line.SKU),
				zap.Error(err))
		}
	}

	if err := is.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		is.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.IngressEventsTotal.WithLabelValues(event.EventType, "processed").Inc()
	return nil
}

// HandleOrderCancelled returns a cancelled order's units to the totals
func (is *IngressService) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "IngressService.HandleOrderCancelled")
	defer span.End()

	processed, err := is.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		is.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.IngressEventsTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	is.logger.Info("Handling order cancelled",
		zap.String("order_id", event.OrderID),
		zap.String("platform", event.Platform))

	for _, line := range event.Lines {
		if line.Quantity <= 0 {
			is.logger.Warn("Cancelled line has non-positive quantity",
				zap.String("sku", line.SKU),
				zap.Int("quantity", line.Quantity),
				zap.String("order_id", event.OrderID))
			continue
		}
		reason := fmt.Sprintf("restock of %d units from cancelled order %s", line.Quantity, event.OrderID)
		if _, err := is.ledger.AdjustInventory(ctx, line.SKU, line.Quantity, reason, event.Platform); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				is.logger.Warn("Cancelled line references unknown SKU",
					zap.String("sku", line.SKU),
					zap.String("order_id", event.OrderID))
				continue
			}
			is.logger.Error("Failed to record cancellation restock",
				zap.String("sku", line.SKU),
				zap.Error(err))
		}
	}

	if err := is.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		is.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.IngressEventsTotal.WithLabelValues(event.EventType, "processed").Inc()
	return nil
}

// HandleStockReceived increments a SKU's total for stock arriving at the
// warehouse
func (is *IngressService) HandleStockReceived(ctx context.Context, event *models.StockReceivedEvent) error {
	ctx, span := util.StartSpan(ctx, "IngressService.HandleStockReceived")
	defer span.End()

	processed, err := is.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		is.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.IngressEventsTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	req := &RestockRequest{SKU: event.SKU, Quantity: event.Quantity, Source: event.Source}
	if _, err := is.ledger.RecordRestock(ctx, req); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			is.logger.Warn("Stock received for unknown SKU", zap.String("sku", event.SKU))
		} else {
			util.IngressEventsTotal.WithLabelValues(event.EventType, "error").Inc()
			return fmt.Errorf("failed to record restock: %w", err)
		}
	}

	if err := is.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		is.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.IngressEventsTotal.WithLabelValues(event.EventType, "processed").Inc()
	return nil
}
