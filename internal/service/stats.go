package service

import (
	"context"
	"errors"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"

	"go.uber.org/zap"
)

// StatsService is the read-only query surface over the audit trail
type StatsService struct {
	events EventStore
	logger *zap.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(events EventStore) *StatsService {
	return &StatsService{
		events: events,
		logger: util.GetLogger(),
	}
}

const defaultStatsWindowDays = 7

// GetEvents lists audit events newest-first, optionally filtered by SKU,
// event type, and a trailing day window
func (ss *StatsService) GetEvents(ctx context.Context, sku, eventType string, sinceDays, limit int) ([]models.SyncEvent, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetEvents")
	defer span.End()

	filter := models.EventFilter{
		SKU:       sku,
		EventType: eventType,
		Limit:     limit,
	}
	if sinceDays > 0 {
		filter.Since = time.Now().UTC().AddDate(0, 0, -sinceDays)
	}
	return ss.events.ListSyncEvents(ctx, filter)
}

// GetStats aggregates sync activity over a trailing day window
func (ss *StatsService) GetStats(ctx context.Context, sinceDays int) (*models.SyncStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetStats")
	defer span.End()

	if sinceDays <= 0 {
		sinceDays = defaultStatsWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -sinceDays)

	byType, err := ss.events.CountEventsByType(ctx, since)
	if err != nil {
		return nil, err
	}
	perDay, err := ss.events.CountEventsPerDay(ctx, since)
	if err != nil {
		return nil, err
	}
	oversell, err := ss.events.CountOversellIncidents(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &models.SyncStats{
		SinceDays:         sinceDays,
		EventsByType:      byType,
		EventsPerDay:      perDay,
		OversellIncidents: oversell,
	}
	for _, count := range byType {
		stats.TotalEvents += count
	}

	cfg, err := ss.events.GetDaemonConfig(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if cfg != nil {
		stats.CyclesCompleted = cfg.CyclesCompleted
		stats.LastCycleAt = cfg.LastCycleAt
	}
	return stats, nil
}
