package service

import (
	"context"
	"fmt"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger applies signed quantity deltas to a mapping's on-hand total and
// appends an audit event for every change. All writes to a SKU's total go
// through here.
type Ledger struct {
	store     MappingStore
	events    EventStore
	cache     SnapshotCache
	publisher EventPublisher
	locks     *SKULocker
	logger    *zap.Logger
}

// NewLedger creates a new inventory ledger
func NewLedger(
	store MappingStore,
	events EventStore,
	cache SnapshotCache,
	publisher EventPublisher,
	locks *SKULocker,
) *Ledger {
	return &Ledger{
		store:     store,
		events:    events,
		cache:     cache,
		publisher: publisher,
		locks:     locks,
		logger:    util.GetLogger(),
	}
}

// AdjustmentRequest represents a manual inventory adjustment. A zero delta
// is legal and logs an "adjustment" event without moving the total.
type AdjustmentRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Delta    int    `json:"delta"`
	Reason   string `json:"reason,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// SaleRequest represents a sale reported by a channel
type SaleRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// RestockRequest represents stock arriving at the warehouse
type RestockRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Source   string `json:"source,omitempty"`
}

// AdjustInventory applies a signed delta to a SKU's total. A negative delta
// larger than the current total is not an error; the total floors at zero
// and the audit event records how far it actually moved.
func (l *Ledger) AdjustInventory(ctx context.Context, sku string, delta int, reason, platform string) (*models.SyncEvent, error) {
	ctx, span := util.StartSpan(ctx, "Ledger.AdjustInventory")
	defer span.End()

	l.locks.Lock(sku)
	defer l.locks.Unlock(sku)

	previous, current, err := l.store.AdjustTotalTx(ctx, sku, delta)
	if err != nil {
		return nil, err
	}

	event := &models.SyncEvent{
		SKU:              sku,
		EventType:        models.ClassifyDelta(delta),
		Platform:         platform,
		QuantityChange:   delta,
		PreviousQuantity: previous,
		NewQuantity:      current,
		Details:          reason,
	}
	if err := l.events.InsertSyncEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	util.InventoryAdjustmentsTotal.WithLabelValues(event.EventType).Inc()
	l.logger.Info("Inventory adjusted",
		zap.String("sku", sku),
		zap.Int("delta", delta),
		zap.Int("previous", previous),
		zap.Int("current", current))

	l.refreshSnapshot(ctx, sku)
	l.publishAdjusted(ctx, event)

	return event, nil
}

// RecordSale decrements a SKU's total for units sold on a channel
func (l *Ledger) RecordSale(ctx context.Context, req *SaleRequest) (*models.SyncEvent, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	reason := fmt.Sprintf("sale of %d units on %s", req.Quantity, req.Platform)
	return l.AdjustInventory(ctx, req.SKU, -req.Quantity, reason, req.Platform)
}

// RecordRestock increments a SKU's total for stock received
func (l *Ledger) RecordRestock(ctx context.Context, req *RestockRequest) (*models.SyncEvent, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	reason := fmt.Sprintf("restock of %d units", req.Quantity)
	if req.Source != "" {
		reason = fmt.Sprintf("restock of %d units from %s", req.Quantity, req.Source)
	}
	return l.AdjustInventory(ctx, req.SKU, req.Quantity, reason, "")
}

// Availability is the point-in-time quantity view for one SKU
type Availability struct {
	SKU       string `json:"sku"`
	Total     int    `json:"total"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
	Cached    bool   `json:"cached"`
}

// GetAvailability serves the quantity view from the cache when present,
// falling back to the database on a miss
func (l *Ledger) GetAvailability(ctx context.Context, sku string) (*Availability, error) {
	if l.cache != nil {
		total, reserved, available, err := l.cache.GetStockSnapshot(ctx, sku)
		if err == nil {
			return &Availability{
				SKU:       sku,
				Total:     total,
				Reserved:  reserved,
				Available: available,
				Cached:    true,
			}, nil
		}
	}

	mapping, err := l.store.GetMappingBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &Availability{
		SKU:       sku,
		Total:     mapping.TotalQuantity,
		Reserved:  mapping.ReservedQuantity,
		Available: mapping.AvailableQuantity(0),
	}, nil
}

// refreshSnapshot mirrors the mapping's totals into the cache, best effort
func (l *Ledger) refreshSnapshot(ctx context.Context, sku string) {
	if l.cache == nil {
		return
	}
	mapping, err := l.store.GetMappingBySKU(ctx, sku)
	if err != nil {
		l.logger.Warn("Failed to reload mapping for snapshot", zap.String("sku", sku), zap.Error(err))
		return
	}
	available := mapping.AvailableQuantity(0)
	if err := l.cache.SetStockSnapshot(ctx, sku, mapping.TotalQuantity, mapping.ReservedQuantity, available); err != nil {
		l.logger.Warn("Failed to update stock snapshot", zap.String("sku", sku), zap.Error(err))
	}
}

func (l *Ledger) publishAdjusted(ctx context.Context, event *models.SyncEvent) {
	if l.publisher == nil {
		return
	}
	adjusted := &models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInventoryAdjusted,
			Timestamp: time.Now(),
		},
		SKU:           event.SKU,
		Delta:         event.QuantityChange,
		PreviousTotal: event.PreviousQuantity,
		NewTotal:      event.NewQuantity,
		Reason:        event.Details,
		Platform:      event.Platform,
	}
	if err := l.publisher.PublishInventoryAdjusted(ctx, adjusted); err != nil {
		l.logger.Error("Failed to publish InventoryAdjusted event", zap.Error(err))
	}
}
