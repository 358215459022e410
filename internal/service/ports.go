package service

import (
	"context"
	"time"

	"inventory-sync/internal/models"
)

// MappingStore is the persistence surface for mappings and their channels.
// *store.Store implements it.
type MappingStore interface {
	CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error
	GetMappingBySKU(ctx context.Context, sku string) (*models.ChannelMapping, error)
	GetMappingByID(ctx context.Context, id int64) (*models.ChannelMapping, error)
	ListMappings(ctx context.Context, filter models.MappingFilter) ([]models.ChannelMapping, error)
	AddChannel(ctx context.Context, entry *models.ChannelEntry) error
	RemoveChannel(ctx context.Context, platform, listingID string) error
	GetChannel(ctx context.Context, platform, listingID string) (*models.ChannelEntry, error)
	AdjustTotalTx(ctx context.Context, sku string, delta int) (previous, current int, err error)
	SetSyncEnabled(ctx context.Context, sku string, enabled bool) error
	TouchLastSync(ctx context.Context, sku string, at time.Time) error
	UpdateChannelPushState(ctx context.Context, channelID int64, quantity int, at time.Time) error
}

// EventStore is the audit trail plus the persisted daemon policy.
// *store.Store implements it.
type EventStore interface {
	InsertSyncEvent(ctx context.Context, event *models.SyncEvent) error
	ListSyncEvents(ctx context.Context, filter models.EventFilter) ([]models.SyncEvent, error)
	CountEventsByType(ctx context.Context, since time.Time) (map[string]int, error)
	CountEventsPerDay(ctx context.Context, since time.Time) ([]models.DailyEventCount, error)
	CountOversellIncidents(ctx context.Context, since time.Time) (int, error)
	GetDaemonConfig(ctx context.Context) (*models.SyncDaemonConfig, error)
	SaveDaemonConfig(ctx context.Context, cfg *models.SyncDaemonConfig) error
	RecordDaemonCycle(ctx context.Context, at time.Time) (int64, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string, eventType string) error
}

// SnapshotCache mirrors quantity state into a fast read path. Failures are
// logged and swallowed; the database stays authoritative.
type SnapshotCache interface {
	SetStockSnapshot(ctx context.Context, sku string, total, reserved, available int) error
	GetStockSnapshot(ctx context.Context, sku string) (total, reserved, available int, err error)
}

// EventPublisher fans domain events out to the broker.
// *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error
	PublishChannelsSynced(ctx context.Context, event *models.ChannelsSyncedEvent) error
	PublishSyncCycleCompleted(ctx context.Context, event *models.SyncCycleCompletedEvent) error
}
