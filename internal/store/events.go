package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"inventory-sync/internal/models"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// InsertSyncEvent appends one audit record. Events are never updated or deleted.
func (s *Store) InsertSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	query := `
		INSERT INTO sync_events (sku, event_type, platform, quantity_change, previous_quantity, new_quantity, oversell, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, event, query,
		event.SKU, event.EventType, event.Platform, event.QuantityChange,
		event.PreviousQuantity, event.NewQuantity, event.Oversell, event.Details)
}

// ListSyncEvents retrieves audit records newest-first. The limit is clamped
// to keep reads bounded.
func (s *Store) ListSyncEvents(ctx context.Context, filter models.EventFilter) ([]models.SyncEvent, error) {
	conditions := []string{}
	args := []interface{}{}

	if filter.SKU != "" {
		args = append(args, filter.SKU)
		conditions = append(conditions, fmt.Sprintf("sku = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := "SELECT * FROM sync_events"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	var events []models.SyncEvent
	err := s.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

type eventTypeCount struct {
	EventType string `db:"event_type"`
	Count     int    `db:"count"`
}

// CountEventsByType aggregates audit records by type since the given time
func (s *Store) CountEventsByType(ctx context.Context, since time.Time) (map[string]int, error) {
	var rows []eventTypeCount
	err := s.db.SelectContext(ctx, &rows,
		"SELECT event_type, COUNT(*) AS count FROM sync_events WHERE created_at >= $1 GROUP BY event_type",
		since)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}

// CountEventsPerDay buckets audit records by calendar day since the given time
func (s *Store) CountEventsPerDay(ctx context.Context, since time.Time) ([]models.DailyEventCount, error) {
	var days []models.DailyEventCount
	err := s.db.SelectContext(ctx, &days, `
		SELECT TO_CHAR(created_at, 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM sync_events
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day`, since)
	return days, err
}

// CountOversellIncidents counts error events flagged as oversell conditions
func (s *Store) CountOversellIncidents(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sync_events WHERE event_type = $1 AND oversell AND created_at >= $2",
		models.SyncEventError, since)
	return count, err
}

// GetDaemonConfig loads the singleton daemon policy row
func (s *Store) GetDaemonConfig(ctx context.Context) (*models.SyncDaemonConfig, error) {
	var cfg models.SyncDaemonConfig
	err := s.db.GetContext(ctx, &cfg,
		"SELECT * FROM sync_daemon_config WHERE key = $1", models.DaemonConfigKey)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveDaemonConfig upserts the singleton daemon policy row, leaving the
// cycle counter untouched
func (s *Store) SaveDaemonConfig(ctx context.Context, cfg *models.SyncDaemonConfig) error {
	query := `
		INSERT INTO sync_daemon_config (key, enabled, interval_ms, platforms, buffer_stock, oversell_protection, max_quantity_per_channel)
		VALUES ($1, $2, $3, COALESCE($4, '{}'), $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_ms = EXCLUDED.interval_ms,
			platforms = EXCLUDED.platforms,
			buffer_stock = EXCLUDED.buffer_stock,
			oversell_protection = EXCLUDED.oversell_protection,
			max_quantity_per_channel = EXCLUDED.max_quantity_per_channel,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		models.DaemonConfigKey, cfg.Enabled, cfg.IntervalMs, cfg.Platforms,
		cfg.BufferStock, cfg.OversellProtection, cfg.MaxQuantityPerChannel)
	return err
}

// RecordDaemonCycle increments the lifetime cycle counter and stamps the
// cycle time, returning the new counter value
func (s *Store) RecordDaemonCycle(ctx context.Context, at time.Time) (int64, error) {
	var cycles int64
	query := `
		INSERT INTO sync_daemon_config (key, cycles_completed, last_cycle_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			cycles_completed = sync_daemon_config.cycles_completed + 1,
			last_cycle_at = EXCLUDED.last_cycle_at,
			updated_at = NOW()
		RETURNING cycles_completed`

	err := s.db.GetContext(ctx, &cycles, query, models.DaemonConfigKey, at)
	return cycles, err
}
