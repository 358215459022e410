package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PushFunc sets a listing's advertised quantity on its platform. The bool
// reports whether the platform accepted the new quantity; an error means
// the attempt itself failed.
type PushFunc func(ctx context.Context, platform, listingID string, quantity int) (bool, error)

// Channel push outcomes as reported in a SyncResult.
const (
	ChannelStatusPushed  = "pushed"
	ChannelStatusSkipped = "skipped"
	ChannelStatusFailed  = "failed"
)

// ChannelSyncResult is the outcome for one channel in a distribution pass
type ChannelSyncResult struct {
	Platform  string `json:"platform"`
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// SyncResult aggregates a distribution pass across one SKU's channels.
// Skipped channels count as synced; they already hold the target quantity.
type SyncResult struct {
	SKU       string              `json:"sku"`
	Available int                 `json:"available"`
	Synced    int                 `json:"synced"`
	Failed    int                 `json:"failed"`
	Channels  []ChannelSyncResult `json:"channels"`
}

// ChannelTarget pairs a channel with the quantity a pass would push to it
type ChannelTarget struct {
	Channel  models.ChannelEntry
	Quantity int
}

// Distributor splits a SKU's available quantity across its channels and
// pushes only the deltas. Channels already holding their target are left
// alone, which keeps steady-state cycles free of platform calls.
type Distributor struct {
	store  MappingStore
	events EventStore

	publisher EventPublisher
	locks     *SKULocker
	push      PushFunc
	logger    *zap.Logger
}

// NewDistributor creates a new channel distributor
func NewDistributor(
	store MappingStore,
	events EventStore,
	publisher EventPublisher,
	locks *SKULocker,
	push PushFunc,
) *Distributor {
	return &Distributor{
		store:     store,
		events:    events,
		publisher: publisher,
		locks:     locks,
		push:      push,
		logger:    util.GetLogger(),
	}
}

// effectiveAvailable computes the quantity a pass may hand out. Oversell
// protection forces a hard zero whenever the raw arithmetic says nothing
// is truly available, independent of the floor below it.
func effectiveAvailable(total, reserved int, cfg *models.SyncDaemonConfig) int {
	raw := total - reserved - cfg.BufferStock
	if cfg.OversellProtection && raw <= 0 {
		return 0
	}
	if raw < 0 {
		return 0
	}
	return raw
}

// distribute splits quantity across n channels: floor division, then one
// extra unit per channel in listed order until the remainder runs out.
func distribute(quantity, n int) []int {
	shares := make([]int, n)
	if n == 0 {
		return shares
	}
	base := quantity / n
	remainder := quantity % n
	for i := range shares {
		shares[i] = base
		if i < remainder {
			shares[i]++
		}
	}
	return shares
}

// PlanTargets computes each eligible channel's target quantity under the
// given policy without touching any state. The reconciler uses it for
// drift checks; a pass uses it to decide what to push.
func PlanTargets(mapping *models.ChannelMapping, cfg *models.SyncDaemonConfig) []ChannelTarget {
	eligible := make([]models.ChannelEntry, 0, len(mapping.Channels))
	for _, ch := range mapping.Channels {
		if cfg.PlatformAllowed(ch.Platform) {
			eligible = append(eligible, ch)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	effective := effectiveAvailable(mapping.TotalQuantity, mapping.ReservedQuantity, cfg)
	shares := distribute(effective, len(eligible))

	targets := make([]ChannelTarget, len(eligible))
	for i, ch := range eligible {
		quantity := shares[i]
		if cfg.MaxQuantityPerChannel != nil && quantity > *cfg.MaxQuantityPerChannel {
			quantity = *cfg.MaxQuantityPerChannel
		}
		targets[i] = ChannelTarget{Channel: ch, Quantity: quantity}
	}
	return targets
}

// HasDrift reports whether any eligible channel's target differs from the
// quantity last pushed to it
func HasDrift(mapping *models.ChannelMapping, cfg *models.SyncDaemonConfig) bool {
	for _, target := range PlanTargets(mapping, cfg) {
		if target.Quantity != target.Channel.LastPushedQuantity {
			return true
		}
	}
	return false
}

// SyncToChannels runs one full distribution pass for a SKU under the
// persisted daemon policy
func (d *Distributor) SyncToChannels(ctx context.Context, sku string) (*SyncResult, error) {
	return d.SyncWithConfig(ctx, sku, d.loadConfig(ctx))
}

// SyncWithConfig runs one distribution pass under an explicit policy. The
// reconciler calls this so every mapping in a cycle sees the same config
// snapshot. The mapping is re-read under the SKU lock, so the pass always
// works from current quantities.
func (d *Distributor) SyncWithConfig(ctx context.Context, sku string, cfg *models.SyncDaemonConfig) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "Distributor.SyncToChannels")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SyncPassLatency.Observe(time.Since(start).Seconds())
	}()

	d.locks.Lock(sku)
	defer d.locks.Unlock(sku)

	mapping, err := d.store.GetMappingBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{SKU: sku}
	if len(mapping.Channels) == 0 {
		return result, nil
	}

	targets := PlanTargets(mapping, cfg)
	if len(targets) == 0 {
		return result, nil
	}
	result.Available = effectiveAvailable(mapping.TotalQuantity, mapping.ReservedQuantity, cfg)

	now := time.Now().UTC()
	for _, target := range targets {
		outcome := d.pushChannel(ctx, sku, target, result.Available, now)
		result.Channels = append(result.Channels, outcome)
		if outcome.Status == ChannelStatusFailed {
			result.Failed++
		} else {
			result.Synced++
		}
	}

	if err := d.store.TouchLastSync(ctx, sku, now); err != nil {
		d.logger.Error("Failed to stamp last sync", zap.String("sku", sku), zap.Error(err))
	}

	util.SyncPassesTotal.Inc()
	d.logger.Info("Channels synced",
		zap.String("sku", sku),
		zap.Int("available", result.Available),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed))

	d.publishSynced(ctx, result)
	return result, nil
}

// pushChannel pushes one channel's target, skipping channels that already
// hold it. Every actual push attempt leaves exactly one audit event.
func (d *Distributor) pushChannel(ctx context.Context, sku string, target ChannelTarget, available int, now time.Time) ChannelSyncResult {
	ch := target.Channel
	outcome := ChannelSyncResult{
		Platform:  ch.Platform,
		ListingID: ch.ListingID,
		Quantity:  target.Quantity,
	}

	if target.Quantity == ch.LastPushedQuantity {
		outcome.Status = ChannelStatusSkipped
		return outcome
	}

	ok, err := d.push(ctx, ch.Platform, ch.ListingID, target.Quantity)
	if err != nil {
		outcome.Status = ChannelStatusFailed
		outcome.Error = err.Error()
		util.ChannelPushesTotal.WithLabelValues(ch.Platform, "error").Inc()
		d.appendPushError(ctx, sku, ch, available,
			fmt.Sprintf("push of %d to %s listing %s failed: %v", target.Quantity, ch.Platform, ch.ListingID, err))
		return outcome
	}
	if !ok {
		outcome.Status = ChannelStatusFailed
		outcome.Error = "push rejected by platform"
		util.ChannelPushesTotal.WithLabelValues(ch.Platform, "rejected").Inc()
		d.appendPushError(ctx, sku, ch, available,
			fmt.Sprintf("push of %d to %s listing %s rejected", target.Quantity, ch.Platform, ch.ListingID))
		return outcome
	}

	if err := d.store.UpdateChannelPushState(ctx, ch.ID, target.Quantity, now); err != nil {
		outcome.Status = ChannelStatusFailed
		outcome.Error = err.Error()
		d.logger.Error("Failed to persist push state",
			zap.String("sku", sku),
			zap.String("platform", ch.Platform),
			zap.Error(err))
		d.appendPushError(ctx, sku, ch, available,
			fmt.Sprintf("push of %d to %s listing %s succeeded but persisting state failed: %v", target.Quantity, ch.Platform, ch.ListingID, err))
		return outcome
	}

	outcome.Status = ChannelStatusPushed
	util.ChannelPushesTotal.WithLabelValues(ch.Platform, "success").Inc()
	d.appendEvent(ctx, &models.SyncEvent{
		SKU:              sku,
		EventType:        models.SyncEventPush,
		Platform:         ch.Platform,
		QuantityChange:   target.Quantity - ch.LastPushedQuantity,
		PreviousQuantity: ch.LastPushedQuantity,
		NewQuantity:      target.Quantity,
		Details:          fmt.Sprintf("pushed %d to %s listing %s", target.Quantity, ch.Platform, ch.ListingID),
	})
	return outcome
}

// appendPushError records a failed push attempt. A failure while nothing is
// available is an oversell incident: the listing may still advertise stock
// we cannot honor.
func (d *Distributor) appendPushError(ctx context.Context, sku string, ch models.ChannelEntry, available int, details string) {
	if available <= 0 {
		util.OversellIncidentsTotal.Inc()
	}
	d.appendEvent(ctx, &models.SyncEvent{
		SKU:              sku,
		EventType:        models.SyncEventError,
		Platform:         ch.Platform,
		PreviousQuantity: ch.LastPushedQuantity,
		NewQuantity:      ch.LastPushedQuantity,
		Oversell:         available <= 0,
		Details:          details,
	})
}

func (d *Distributor) appendEvent(ctx context.Context, event *models.SyncEvent) {
	if err := d.events.InsertSyncEvent(ctx, event); err != nil {
		d.logger.Error("Failed to append audit event",
			zap.String("sku", event.SKU),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// AdoptChannelQuantity records a platform-reported quantity as a channel's
// pushed baseline, so the next drift check measures against what the
// platform actually shows
func (d *Distributor) AdoptChannelQuantity(ctx context.Context, platform, listingID string, reported int) (*models.SyncEvent, error) {
	ctx, span := util.StartSpan(ctx, "Distributor.AdoptChannelQuantity")
	defer span.End()

	if reported < 0 {
		return nil, ErrInvalidQuantity
	}

	entry, err := d.store.GetChannel(ctx, platform, listingID)
	if err != nil {
		return nil, err
	}
	mapping, err := d.store.GetMappingByID(ctx, entry.MappingID)
	if err != nil {
		return nil, err
	}

	d.locks.Lock(mapping.SKU)
	defer d.locks.Unlock(mapping.SKU)

	if err := d.store.UpdateChannelPushState(ctx, entry.ID, reported, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to adopt channel quantity: %w", err)
	}

	event := &models.SyncEvent{
		SKU:              mapping.SKU,
		EventType:        models.SyncEventPull,
		Platform:         platform,
		QuantityChange:   reported - entry.LastPushedQuantity,
		PreviousQuantity: entry.LastPushedQuantity,
		NewQuantity:      reported,
		Details:          fmt.Sprintf("adopted platform-reported quantity for %s listing %s", platform, listingID),
	}
	if err := d.events.InsertSyncEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	d.logger.Info("Channel quantity adopted",
		zap.String("sku", mapping.SKU),
		zap.String("platform", platform),
		zap.String("listing_id", listingID),
		zap.Int("quantity", reported))
	return event, nil
}

// loadConfig returns the persisted policy, falling back to defaults when
// no row exists yet
func (d *Distributor) loadConfig(ctx context.Context) *models.SyncDaemonConfig {
	cfg, err := d.events.GetDaemonConfig(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Warn("Falling back to default sync config", zap.Error(err))
		}
		return models.DefaultDaemonConfig()
	}
	return cfg
}

func (d *Distributor) publishSynced(ctx context.Context, result *SyncResult) {
	if d.publisher == nil {
		return
	}
	event := &models.ChannelsSyncedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeChannelsSynced,
			Timestamp: time.Now(),
		},
		SKU:       result.SKU,
		Available: result.Available,
		Synced:    result.Synced,
		Failed:    result.Failed,
	}
	if err := d.publisher.PublishChannelsSynced(ctx, event); err != nil {
		d.logger.Error("Failed to publish ChannelsSynced event", zap.Error(err))
	}
}
