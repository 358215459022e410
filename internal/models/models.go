package models

import (
	"time"

	"github.com/lib/pq"
)

// ChannelMapping is the unit of inventory truth: one physical stock pool
// identified by SKU, advertised on zero or more platform listings.
type ChannelMapping struct {
	ID               int64      `db:"id" json:"id"`
	SKU              string     `db:"sku" json:"sku"`
	ProductID        string     `db:"product_id" json:"product_id,omitempty"`
	TotalQuantity    int        `db:"total_quantity" json:"total_quantity"`
	ReservedQuantity int        `db:"reserved_quantity" json:"reserved_quantity"`
	SyncEnabled      bool       `db:"sync_enabled" json:"sync_enabled"`
	LastSyncAt       *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	Channels []ChannelEntry `db:"-" json:"channels,omitempty"`
}

// AvailableQuantity is derived, never stored: what the channels may advertise
// in total once reserved units and the buffer are held back.
func (m *ChannelMapping) AvailableQuantity(bufferStock int) int {
	available := m.TotalQuantity - m.ReservedQuantity - bufferStock
	if available < 0 {
		return 0
	}
	return available
}

// ChannelEntry links a mapping to one platform listing. The pair
// (platform, listing_id) is unique across the whole system.
type ChannelEntry struct {
	ID                 int64      `db:"id" json:"id"`
	MappingID          int64      `db:"mapping_id" json:"mapping_id"`
	Platform           string     `db:"platform" json:"platform"`
	ListingID          string     `db:"listing_id" json:"listing_id"`
	PlatformSKU        string     `db:"platform_sku" json:"platform_sku,omitempty"`
	Quantity           int        `db:"quantity" json:"quantity"`
	LastPushedQuantity int        `db:"last_pushed_quantity" json:"last_pushed_quantity"`
	LastPushAt         *time.Time `db:"last_push_at" json:"last_push_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// SyncEvent is one append-only audit record. Every quantity-affecting action
// and every push attempt produces exactly one event.
type SyncEvent struct {
	ID               int64     `db:"id" json:"id"`
	SKU              string    `db:"sku" json:"sku"`
	EventType        string    `db:"event_type" json:"event_type"`
	Platform         string    `db:"platform" json:"platform,omitempty"`
	QuantityChange   int       `db:"quantity_change" json:"quantity_change"`
	PreviousQuantity int       `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int       `db:"new_quantity" json:"new_quantity"`
	Oversell         bool      `db:"oversell" json:"oversell,omitempty"`
	Details          string    `db:"details" json:"details,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Audit event types
const (
	SyncEventSale       = "sale"
	SyncEventRestock    = "restock"
	SyncEventAdjustment = "adjustment"
	SyncEventPush       = "sync_push"
	SyncEventPull       = "sync_pull"
	SyncEventError      = "error"
)

// ClassifyDelta maps a signed inventory delta to its audit event type.
func ClassifyDelta(delta int) string {
	switch {
	case delta < 0:
		return SyncEventSale
	case delta > 0:
		return SyncEventRestock
	default:
		return SyncEventAdjustment
	}
}

// SyncDaemonConfig is the singleton reconciliation policy (row key "default").
type SyncDaemonConfig struct {
	Key                   string         `db:"key" json:"-"`
	Enabled               bool           `db:"enabled" json:"enabled"`
	IntervalMs            int64          `db:"interval_ms" json:"interval_ms"`
	Platforms             pq.StringArray `db:"platforms" json:"platforms,omitempty"`
	BufferStock           int            `db:"buffer_stock" json:"buffer_stock"`
	OversellProtection    bool           `db:"oversell_protection" json:"oversell_protection"`
	MaxQuantityPerChannel *int           `db:"max_quantity_per_channel" json:"max_quantity_per_channel,omitempty"`
	CyclesCompleted       int64          `db:"cycles_completed" json:"cycles_completed"`
	LastCycleAt           *time.Time     `db:"last_cycle_at" json:"last_cycle_at,omitempty"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// DaemonConfigKey is the key of the singleton config row.
const DaemonConfigKey = "default"

// MinSyncInterval is the floor applied to the reconciliation period.
const MinSyncInterval = 10 * time.Second

// Interval returns the reconciliation period clamped to MinSyncInterval.
func (c *SyncDaemonConfig) Interval() time.Duration {
	interval := time.Duration(c.IntervalMs) * time.Millisecond
	if interval < MinSyncInterval {
		return MinSyncInterval
	}
	return interval
}

// PlatformAllowed reports whether a channel on the given platform
// participates in distribution. An empty allow-list admits every platform.
func (c *SyncDaemonConfig) PlatformAllowed(platform string) bool {
	if len(c.Platforms) == 0 {
		return true
	}
	for _, p := range c.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// DefaultDaemonConfig returns the policy used when no row has been persisted
// yet, or when the persisted row cannot be read.
func DefaultDaemonConfig() *SyncDaemonConfig {
	return &SyncDaemonConfig{
		Key:                DaemonConfigKey,
		Enabled:            false,
		IntervalMs:         (5 * time.Minute).Milliseconds(),
		BufferStock:        0,
		OversellProtection: true,
	}
}

// MappingFilter narrows ListMappings results.
type MappingFilter struct {
	SyncEnabledOnly bool
	Limit           int
	Offset          int
}

// EventFilter narrows audit log queries. A zero Since means unbounded.
type EventFilter struct {
	SKU       string
	EventType string
	Since     time.Time
	Limit     int
}

// DailyEventCount is one per-day bucket in the statistics aggregate.
type DailyEventCount struct {
	Day   string `db:"day" json:"day"`
	Count int    `db:"count" json:"count"`
}

// SyncStats aggregates the audit log for the reporting window.
type SyncStats struct {
	SinceDays         int               `json:"since_days"`
	TotalEvents       int               `json:"total_events"`
	EventsByType      map[string]int    `json:"events_by_type"`
	EventsPerDay      []DailyEventCount `json:"events_per_day"`
	OversellIncidents int               `json:"oversell_incidents"`
	CyclesCompleted   int64             `json:"cycles_completed"`
	LastCycleAt       *time.Time        `json:"last_cycle_at,omitempty"`
}

// ProcessedEvent records a consumed broker event for exactly-once handling.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
