package models

import "time"

// Broker event types
const (
	EventTypeInventoryAdjusted  = "INVENTORY_ADJUSTED"
	EventTypeChannelsSynced     = "CHANNELS_SYNCED"
	EventTypeSyncCycleCompleted = "SYNC_CYCLE_COMPLETED"
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeStockReceived      = "STOCK_RECEIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// InventoryAdjustedEvent published after every ledger mutation
type InventoryAdjustedEvent struct {
	BaseEvent
	SKU           string `json:"sku"`
	Delta         int    `json:"delta"`
	PreviousTotal int    `json:"previous_total"`
	NewTotal      int    `json:"new_total"`
	Reason        string `json:"reason,omitempty"`
	Platform      string `json:"platform,omitempty"`
}

// ChannelsSyncedEvent published after a distribution pass for one SKU
type ChannelsSyncedEvent struct {
	BaseEvent
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Synced    int    `json:"synced"`
	Failed    int    `json:"failed"`
}

// SyncCycleCompletedEvent published at the end of each reconciliation cycle
type SyncCycleCompletedEvent struct {
	BaseEvent
	Cycle           int64 `json:"cycle"`
	MappingsChecked int   `json:"mappings_checked"`
	MappingsSynced  int   `json:"mappings_synced"`
	Failures        int   `json:"failures"`
	DurationMs      int64 `json:"duration_ms"`
}

// OrderPlacedEvent consumed from the marketplace ingestion topic; each line
// becomes a recorded sale
type OrderPlacedEvent struct {
	BaseEvent
	OrderID  string          `json:"order_id"`
	Platform string          `json:"platform"`
	Lines    []OrderLineData `json:"lines"`
}

// OrderCancelledEvent consumed when a marketplace order is cancelled; sold
// units return to the pool
type OrderCancelledEvent struct {
	BaseEvent
	OrderID  string          `json:"order_id"`
	Platform string          `json:"platform"`
	Lines    []OrderLineData `json:"lines"`
	Reason   string          `json:"reason,omitempty"`
}

// StockReceivedEvent consumed when a warehouse intake lands
type StockReceivedEvent struct {
	BaseEvent
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Source   string `json:"source,omitempty"`
}

// OrderLineData represents one SKU line in an order event
type OrderLineData struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}
