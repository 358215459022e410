package service

import (
	"context"

	"inventory-sync/internal/models"
	"inventory-sync/internal/util"

	"go.uber.org/zap"
)

// MappingService manages the SKU to platform-listing records the sync
// engine operates on
type MappingService struct {
	store  MappingStore
	logger *zap.Logger
}

// NewMappingService creates a new mapping service
func NewMappingService(store MappingStore) *MappingService {
	return &MappingService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateMappingRequest represents a request to register a SKU. The product
// reference is an optional opaque cross-reference.
type CreateMappingRequest struct {
	SKU             string `json:"sku" binding:"required"`
	ProductID       string `json:"product_id,omitempty"`
	InitialQuantity int    `json:"initial_quantity" binding:"min=0"`
}

// AddChannelRequest represents a request to link a platform listing
type AddChannelRequest struct {
	Platform    string `json:"platform" binding:"required"`
	ListingID   string `json:"listing_id" binding:"required"`
	PlatformSKU string `json:"platform_sku,omitempty"`
}

// CreateMapping registers a SKU with its starting on-hand quantity.
// Duplicate SKUs are rejected by the store.
func (ms *MappingService) CreateMapping(ctx context.Context, req *CreateMappingRequest) (*models.ChannelMapping, error) {
	ctx, span := util.StartSpan(ctx, "MappingService.CreateMapping")
	defer span.End()

	if req.InitialQuantity < 0 {
		return nil, ErrInvalidQuantity
	}

	mapping := &models.ChannelMapping{
		SKU:           req.SKU,
		ProductID:     req.ProductID,
		TotalQuantity: req.InitialQuantity,
		SyncEnabled:   true,
	}
	if err := ms.store.CreateMapping(ctx, mapping); err != nil {
		return nil, err
	}

	ms.logger.Info("Mapping created",
		zap.String("sku", mapping.SKU),
		zap.Int("initial_quantity", mapping.TotalQuantity))
	return mapping, nil
}

// AddChannel links a platform listing to an existing SKU. The same
// (platform, listing) pair can only be linked once across all SKUs.
func (ms *MappingService) AddChannel(ctx context.Context, sku string, req *AddChannelRequest) (*models.ChannelEntry, error) {
	ctx, span := util.StartSpan(ctx, "MappingService.AddChannel")
	defer span.End()

	mapping, err := ms.store.GetMappingBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	entry := &models.ChannelEntry{
		MappingID:   mapping.ID,
		Platform:    req.Platform,
		ListingID:   req.ListingID,
		PlatformSKU: req.PlatformSKU,
	}
	if err := ms.store.AddChannel(ctx, entry); err != nil {
		return nil, err
	}

	ms.logger.Info("Channel linked",
		zap.String("sku", sku),
		zap.String("platform", entry.Platform),
		zap.String("listing_id", entry.ListingID))
	return entry, nil
}

// RemoveChannel unlinks a platform listing from whichever SKU holds it
func (ms *MappingService) RemoveChannel(ctx context.Context, platform, listingID string) error {
	ctx, span := util.StartSpan(ctx, "MappingService.RemoveChannel")
	defer span.End()

	if err := ms.store.RemoveChannel(ctx, platform, listingID); err != nil {
		return err
	}

	ms.logger.Info("Channel unlinked",
		zap.String("platform", platform),
		zap.String("listing_id", listingID))
	return nil
}

// GetMapping retrieves a mapping with its channels
func (ms *MappingService) GetMapping(ctx context.Context, sku string) (*models.ChannelMapping, error) {
	return ms.store.GetMappingBySKU(ctx, sku)
}

// ListMappings retrieves mappings newest-first
func (ms *MappingService) ListMappings(ctx context.Context, filter models.MappingFilter) ([]models.ChannelMapping, error) {
	return ms.store.ListMappings(ctx, filter)
}

// SetSyncEnabled pauses or resumes reconciliation for one SKU without
// touching its channel links
func (ms *MappingService) SetSyncEnabled(ctx context.Context, sku string, enabled bool) error {
	if err := ms.store.SetSyncEnabled(ctx, sku, enabled); err != nil {
		return err
	}
	ms.logger.Info("Sync flag updated", zap.String("sku", sku), zap.Bool("enabled", enabled))
	return nil
}
