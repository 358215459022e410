package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inventory-sync/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateMapping creates a new channel mapping (one per SKU)
func (s *Store) CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error {
	query := `
		INSERT INTO channel_mappings (sku, product_id, total_quantity, reserved_quantity, sync_enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, mapping, query,
		mapping.SKU, mapping.ProductID, mapping.TotalQuantity, mapping.ReservedQuantity, mapping.SyncEnabled)
	if err != nil {
		return translateConstraint(err)
	}
	return nil
}

// GetMappingBySKU retrieves a mapping with its channels in creation order
func (s *Store) GetMappingBySKU(ctx context.Context, sku string) (*models.ChannelMapping, error) {
	var mapping models.ChannelMapping
	err := s.db.GetContext(ctx, &mapping, "SELECT * FROM channel_mappings WHERE sku = $1", sku)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	channels, err := s.ListChannels(ctx, mapping.ID)
	if err != nil {
		return nil, err
	}
	mapping.Channels = channels
	return &mapping, nil
}

// GetMappingByID retrieves a mapping with its channels by primary key
func (s *Store) GetMappingByID(ctx context.Context, id int64) (*models.ChannelMapping, error) {
	var mapping models.ChannelMapping
	err := s.db.GetContext(ctx, &mapping, "SELECT * FROM channel_mappings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	channels, err := s.ListChannels(ctx, mapping.ID)
	if err != nil {
		return nil, err
	}
	mapping.Channels = channels
	return &mapping, nil
}

// ListMappings retrieves mappings newest-first with their channels
func (s *Store) ListMappings(ctx context.Context, filter models.MappingFilter) ([]models.ChannelMapping, error) {
	query := "SELECT * FROM channel_mappings"
	args := []interface{}{}

	if filter.SyncEnabledOnly {
		query += " WHERE sync_enabled = TRUE"
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var mappings []models.ChannelMapping
	if err := s.db.SelectContext(ctx, &mappings, query, args...); err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return mappings, nil
	}

	ids := make([]int64, len(mappings))
	byID := make(map[int64]*models.ChannelMapping, len(mappings))
	for i := range mappings {
		ids[i] = mappings[i].ID
		byID[mappings[i].ID] = &mappings[i]
	}

	inQuery, inArgs, err := sqlx.In("SELECT * FROM channel_entries WHERE mapping_id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	inQuery = s.db.Rebind(inQuery)

	var channels []models.ChannelEntry
	if err := s.db.SelectContext(ctx, &channels, inQuery, inArgs...); err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if m, ok := byID[ch.MappingID]; ok {
			m.Channels = append(m.Channels, ch)
		}
	}
	return mappings, nil
}

// AddChannel links a platform listing to a mapping
func (s *Store) AddChannel(ctx context.Context, entry *models.ChannelEntry) error {
	query := `
		INSERT INTO channel_entries (mapping_id, platform, listing_id, platform_sku)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, entry, query,
		entry.MappingID, entry.Platform, entry.ListingID, entry.PlatformSKU)
	if err != nil {
		return translateConstraint(err)
	}
	return nil
}

// RemoveChannel unlinks a platform listing
func (s *Store) RemoveChannel(ctx context.Context, platform, listingID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM channel_entries WHERE platform = $1 AND listing_id = $2",
		platform, listingID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChannel retrieves a channel entry by its unique (platform, listing_id) pair
func (s *Store) GetChannel(ctx context.Context, platform, listingID string) (*models.ChannelEntry, error) {
	var entry models.ChannelEntry
	err := s.db.GetContext(ctx, &entry,
		"SELECT * FROM channel_entries WHERE platform = $1 AND listing_id = $2",
		platform, listingID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListChannels retrieves a mapping's channels in creation order. Remainder
// distribution depends on this ordering being stable.
func (s *Store) ListChannels(ctx context.Context, mappingID int64) ([]models.ChannelEntry, error) {
	var channels []models.ChannelEntry
	err := s.db.SelectContext(ctx, &channels,
		"SELECT * FROM channel_entries WHERE mapping_id = $1 ORDER BY id", mappingID)
	return channels, err
}

// AdjustTotalTx applies a signed delta to a mapping's total inside a
// transaction (FOR UPDATE lock), clamping the result at zero.
// Returns the totals before and after the change.
func (s *Store) AdjustTotalTx(ctx context.Context, sku string, delta int) (previous, current int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, &previous,
		"SELECT total_quantity FROM channel_mappings WHERE sku = $1 FOR UPDATE", sku)
	if err == sql.ErrNoRows {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock mapping: %w", err)
	}

	current = previous + delta
	if current < 0 {
		current = 0
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE channel_mappings SET total_quantity = $1, updated_at = NOW() WHERE sku = $2",
		current, sku)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to update total: %w", err)
	}

	return previous, current, tx.Commit()
}

// SetSyncEnabled toggles whether the daemon reconciles a mapping
func (s *Store) SetSyncEnabled(ctx context.Context, sku string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE channel_mappings SET sync_enabled = $1, updated_at = NOW() WHERE sku = $2",
		enabled, sku)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSync stamps the time a distribution pass ran for a mapping
func (s *Store) TouchLastSync(ctx context.Context, sku string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE channel_mappings SET last_sync_at = $1, updated_at = NOW() WHERE sku = $2",
		at, sku)
	return err
}

// UpdateChannelPushState records a quantity the platform has acknowledged:
// target and last-pushed collapse to the same value
func (s *Store) UpdateChannelPushState(ctx context.Context, channelID int64, quantity int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE channel_entries SET quantity = $1, last_pushed_quantity = $1, last_push_at = $2 WHERE id = $3",
		quantity, at, channelID)
	return err
}
