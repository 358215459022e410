package service

import (
	"context"
	"fmt"

	"inventory-sync/internal/models"

	"go.uber.org/zap"
)

// WarmSnapshots mirrors every mapping's quantities into the cache, so the
// availability fast path serves hits from the first request after boot.
// Individual failures are logged and skipped.
func (l *Ledger) WarmSnapshots(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	l.logger.Info("Warming stock snapshots")

	mappings, err := l.store.ListMappings(ctx, models.MappingFilter{})
	if err != nil {
		return fmt.Errorf("failed to list mappings: %w", err)
	}

	warmed := 0
	for i := range mappings {
		mapping := &mappings[i]
		available := mapping.AvailableQuantity(0)
		if err := l.cache.SetStockSnapshot(ctx, mapping.SKU, mapping.TotalQuantity, mapping.ReservedQuantity, available); err != nil {
			l.logger.Error("Failed to warm snapshot",
				zap.String("sku", mapping.SKU),
				zap.Error(err))
			continue
		}
		warmed++
	}

	l.logger.Info("Stock snapshots warmed", zap.Int("count", warmed))
	return nil
}
