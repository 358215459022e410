package service

import (
	"context"
	"math/rand"
	"time"

	"inventory-sync/internal/util"

	"go.uber.org/zap"
)

// SimulatedPusher stands in for real marketplace clients (mocked). Hosts
// integrate by supplying their own PushFunc; the simulator makes the engine
// runnable end to end without one.
type SimulatedPusher struct {
	logger      *zap.Logger
	successRate float64 // Mock success rate (0.0 - 1.0)
}

// NewSimulatedPusher creates a new simulated pusher
func NewSimulatedPusher(successRate float64) *SimulatedPusher {
	if successRate <= 0 || successRate > 1 {
		successRate = 0.9 // 90% success rate for testing
	}
	return &SimulatedPusher{
		logger:      util.GetLogger(),
		successRate: successRate,
	}
}

// Push pretends to set a listing's advertised quantity (mocked)
func (sp *SimulatedPusher) Push(ctx context.Context, platform, listingID string, quantity int) (bool, error) {
	time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

	success := rand.Float64() < sp.successRate
	if !success {
		sp.logger.Warn("Simulated push rejected",
			zap.String("platform", platform),
			zap.String("listing_id", listingID))
		return false, nil
	}

	sp.logger.Info("Simulated push accepted",
		zap.String("platform", platform),
		zap.String("listing_id", listingID),
		zap.Int("quantity", quantity))
	return true, nil
}
