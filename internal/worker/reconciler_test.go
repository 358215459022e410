package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/service"
	"inventory-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconMappingStore is a minimal in-memory service.MappingStore. Methods the
// reconciler never touches fall through to the embedded nil interface.
type reconMappingStore struct {
	service.MappingStore
	mu       sync.Mutex
	mappings map[string]*models.ChannelMapping
	channels map[int64]*models.ChannelEntry
	nextID   int64
}

type seedChannel struct {
	platform string
	listing  string
	pushed   int
}

func newReconMappingStore() *reconMappingStore {
	return &reconMappingStore{
		mappings: make(map[string]*models.ChannelMapping),
		channels: make(map[int64]*models.ChannelEntry),
	}
}

func (s *reconMappingStore) seed(sku string, total int, entries ...seedChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	mapping := &models.ChannelMapping{
		ID:            s.nextID,
		SKU:           sku,
		TotalQuantity: total,
		SyncEnabled:   true,
	}
	s.mappings[sku] = mapping
	for _, entry := range entries {
		s.nextID++
		s.channels[s.nextID] = &models.ChannelEntry{
			ID:                 s.nextID,
			MappingID:          mapping.ID,
			Platform:           entry.platform,
			ListingID:          entry.listing,
			LastPushedQuantity: entry.pushed,
		}
	}
}

func (s *reconMappingStore) disable(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[sku].SyncEnabled = false
}

func (s *reconMappingStore) loadLocked(stored *models.ChannelMapping) models.ChannelMapping {
	mapping := *stored
	mapping.Channels = nil
	for _, ch := range s.channels {
		if ch.MappingID == stored.ID {
			mapping.Channels = append(mapping.Channels, *ch)
		}
	}
	sort.Slice(mapping.Channels, func(i, j int) bool {
		return mapping.Channels[i].ID < mapping.Channels[j].ID
	})
	return mapping
}

func (s *reconMappingStore) GetMappingBySKU(ctx context.Context, sku string) (*models.ChannelMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.mappings[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	mapping := s.loadLocked(stored)
	return &mapping, nil
}

func (s *reconMappingStore) ListMappings(ctx context.Context, filter models.MappingFilter) ([]models.ChannelMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.ChannelMapping
	for _, stored := range s.mappings {
		if filter.SyncEnabledOnly && !stored.SyncEnabled {
			continue
		}
		result = append(result, s.loadLocked(stored))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *reconMappingStore) TouchLastSync(ctx context.Context, sku string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.mappings[sku]
	if !ok {
		return store.ErrNotFound
	}
	stored.LastSyncAt = &at
	return nil
}

func (s *reconMappingStore) UpdateChannelPushState(ctx context.Context, channelID int64, quantity int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	ch.Quantity = quantity
	ch.LastPushedQuantity = quantity
	ch.LastPushAt = &at
	return nil
}

// reconEventStore is a minimal in-memory service.EventStore
type reconEventStore struct {
	service.EventStore
	mu     sync.Mutex
	events []models.SyncEvent
	config *models.SyncDaemonConfig
	cycles int64
}

func newReconEventStore() *reconEventStore {
	return &reconEventStore{}
}

func (s *reconEventStore) InsertSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *reconEventStore) GetDaemonConfig(ctx context.Context) (*models.SyncDaemonConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil, store.ErrNotFound
	}
	cfg := *s.config
	return &cfg, nil
}

func (s *reconEventStore) SaveDaemonConfig(ctx context.Context, cfg *models.SyncDaemonConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cfg
	s.config = &stored
	return nil
}

func (s *reconEventStore) RecordDaemonCycle(ctx context.Context, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if s.config != nil {
		s.config.CyclesCompleted = s.cycles
		s.config.LastCycleAt = &at
	}
	return s.cycles, nil
}

func (s *reconEventStore) savedConfig() *models.SyncDaemonConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil
	}
	cfg := *s.config
	return &cfg
}

func (s *reconEventStore) cycleCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// reconPusher records pushes and fails per platform on demand
type reconPusher struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func newReconPusher() *reconPusher {
	return &reconPusher{errs: make(map[string]error)}
}

func (p *reconPusher) Push(ctx context.Context, platform, listingID string, quantity int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, platform)
	if err, ok := p.errs[platform]; ok {
		return false, err
	}
	return true, nil
}

func (p *reconPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeCycleLocker stands in for the redis cross-instance lock
type fakeCycleLocker struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
}

func (l *fakeCycleLocker) AcquireCycleLock(ctx context.Context, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return "", nil
	}
	return "cycle-owner-test", nil
}

func (l *fakeCycleLocker) ReleaseCycleLock(ctx context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func newTestReconciler(ms *reconMappingStore, es *reconEventStore, push service.PushFunc, locker CycleLocker) *Reconciler {
	distributor := service.NewDistributor(ms, es, nil, service.NewSKULocker(), push)
	return NewReconciler(ms, es, distributor, locker, nil)
}

func TestStartRejectsSecondStart(t *testing.T) {
	r := newTestReconciler(newReconMappingStore(), newReconEventStore(), newReconPusher().Push, nil)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, nil))
	defer r.Stop(ctx)

	assert.ErrorIs(t, r.Start(ctx, nil), ErrDaemonRunning)
	assert.True(t, r.IsRunning())
}

func TestStartRunsImmediateCycle(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	r := newTestReconciler(ms, es, pusher.Push, nil)

	ms.seed("SKU-R1", 10, seedChannel{platform: "shopee", listing: "SP-1"})
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, nil))
	defer r.Stop(ctx)

	assert.Equal(t, 1, pusher.count(), "the first cycle runs before Start returns")
	assert.Equal(t, int64(1), es.cycleCount())

	mapping, err := ms.GetMappingBySKU(ctx, "SKU-R1")
	require.NoError(t, err)
	assert.Equal(t, 10, mapping.Channels[0].LastPushedQuantity)
}

func TestStartAppliesOverrides(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	r := newTestReconciler(ms, es, pusher.Push, nil)

	ms.seed("SKU-R2", 10, seedChannel{platform: "shopee", listing: "SP-2"})
	ctx := context.Background()

	minutes := 1
	buffer := 2
	limit := 5
	req := &StartDaemonRequest{
		IntervalMinutes:       &minutes,
		BufferStock:           &buffer,
		MaxQuantityPerChannel: &limit,
		Platforms:             []string{"shopee"},
	}
	require.NoError(t, r.Start(ctx, req))
	defer r.Stop(ctx)

	cfg := es.savedConfig()
	require.NotNil(t, cfg)
	assert.True(t, cfg.Enabled, "starting persists the enabled flag for restart resume")
	assert.Equal(t, int64(60000), cfg.IntervalMs)
	assert.Equal(t, 2, cfg.BufferStock)
	require.NotNil(t, cfg.MaxQuantityPerChannel)
	assert.Equal(t, 5, *cfg.MaxQuantityPerChannel)

	mapping, err := ms.GetMappingBySKU(ctx, "SKU-R2")
	require.NoError(t, err)
	assert.Equal(t, 5, mapping.Channels[0].LastPushedQuantity, "buffer then cap applied to the first pass")
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	es := newReconEventStore()
	r := newTestReconciler(newReconMappingStore(), es, newReconPusher().Push, nil)

	minutes := 0
	err := r.Start(context.Background(), &StartDaemonRequest{IntervalMinutes: &minutes})
	assert.ErrorIs(t, err, ErrIntervalTooShort)
	assert.False(t, r.IsRunning())
	assert.Nil(t, es.savedConfig(), "a rejected start must not persist config")
}

func TestStopPersistsDisabled(t *testing.T) {
	es := newReconEventStore()
	r := newTestReconciler(newReconMappingStore(), es, newReconPusher().Push, nil)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, nil))
	assert.True(t, es.savedConfig().Enabled)

	assert.True(t, r.Stop(ctx))
	assert.False(t, r.IsRunning())
	assert.False(t, es.savedConfig().Enabled)

	assert.False(t, r.Stop(ctx), "stopping a stopped daemon is a no-op")
}

func TestHaltKeepsEnabledFlag(t *testing.T) {
	es := newReconEventStore()
	r := newTestReconciler(newReconMappingStore(), es, newReconPusher().Push, nil)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, nil))
	r.Halt()

	assert.False(t, r.IsRunning())
	assert.True(t, es.savedConfig().Enabled, "halt leaves the enabled flag for the next boot to resume")
}

func TestCycleSyncsOnlyDriftedMappings(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	r := newTestReconciler(ms, es, pusher.Push, nil)

	ms.seed("SKU-DRIFT", 10, seedChannel{platform: "shopee", listing: "SP-3"})
	ms.seed("SKU-CLEAN", 6, seedChannel{platform: "shopee", listing: "SP-4", pushed: 6})

	cfg := r.runCycle(context.Background())
	require.NotNil(t, cfg)

	assert.Equal(t, 1, pusher.count(), "clean mappings never reach the platform")
	assert.Equal(t, int64(1), es.cycleCount())

	clean, err := ms.GetMappingBySKU(context.Background(), "SKU-CLEAN")
	require.NoError(t, err)
	assert.Nil(t, clean.LastSyncAt, "clean mappings are not re-stamped")
}

func TestCycleSkipsDisabledMappings(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	r := newTestReconciler(ms, es, pusher.Push, nil)

	ms.seed("SKU-OFF", 10, seedChannel{platform: "shopee", listing: "SP-5"})
	ms.disable("SKU-OFF")

	cfg := r.runCycle(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, 0, pusher.count(), "paused mappings are invisible to the daemon")
}

func TestCycleContinuesAfterMappingFailure(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	pusher.errs["tokopedia"] = errors.New("gateway timeout")
	r := newTestReconciler(ms, es, pusher.Push, nil)

	ms.seed("SKU-BAD", 4, seedChannel{platform: "tokopedia", listing: "TP-1"})
	ms.seed("SKU-GOOD", 8, seedChannel{platform: "shopee", listing: "SP-6"})

	cfg := r.runCycle(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, 2, pusher.count(), "one mapping failing does not abort the cycle")

	good, err := ms.GetMappingBySKU(context.Background(), "SKU-GOOD")
	require.NoError(t, err)
	assert.Equal(t, 8, good.Channels[0].LastPushedQuantity)

	bad, err := ms.GetMappingBySKU(context.Background(), "SKU-BAD")
	require.NoError(t, err)
	assert.Equal(t, 0, bad.Channels[0].LastPushedQuantity)
}

func TestCycleSkippedWhileInFlight(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	slowPush := func(ctx context.Context, platform, listingID string, quantity int) (bool, error) {
		once.Do(func() { close(entered) })
		<-release
		return true, nil
	}
	r := newTestReconciler(ms, es, slowPush, nil)

	ms.seed("SKU-SLOW", 10, seedChannel{platform: "shopee", listing: "SP-7"})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		r.runCycle(ctx)
		close(done)
	}()
	<-entered

	assert.Nil(t, r.runCycle(ctx), "a tick overlapping a slow cycle is skipped")

	close(release)
	<-done
	assert.Equal(t, int64(1), es.cycleCount())
}

func TestCycleRespectsCrossInstanceLock(t *testing.T) {
	ms := newReconMappingStore()
	es := newReconEventStore()
	pusher := newReconPusher()
	locker := &fakeCycleLocker{held: true}
	r := newTestReconciler(ms, es, pusher.Push, locker)

	ms.seed("SKU-LOCKED", 10, seedChannel{platform: "shopee", listing: "SP-8"})

	cfg := r.runCycle(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, 0, pusher.count(), "another instance holds the cycle")
	assert.Equal(t, int64(0), es.cycleCount())

	locker.held = false
	cfg = r.runCycle(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, 1, pusher.count())
	assert.Equal(t, 1, locker.releases)
}

func TestUpdateConfig(t *testing.T) {
	es := newReconEventStore()
	r := newTestReconciler(newReconMappingStore(), es, newReconPusher().Push, nil)
	ctx := context.Background()

	short := int64(5000)
	_, err := r.UpdateConfig(ctx, &UpdateConfigRequest{IntervalMs: &short})
	assert.ErrorIs(t, err, ErrIntervalTooShort)

	negative := -1
	_, err = r.UpdateConfig(ctx, &UpdateConfigRequest{BufferStock: &negative})
	assert.Error(t, err)

	interval := int64(30000)
	buffer := 3
	cleared := 0
	cfg, err := r.UpdateConfig(ctx, &UpdateConfigRequest{
		IntervalMs:            &interval,
		BufferStock:           &buffer,
		MaxQuantityPerChannel: &cleared,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), cfg.IntervalMs)
	assert.Equal(t, 3, cfg.BufferStock)
	assert.Nil(t, cfg.MaxQuantityPerChannel, "a zero max clears the cap")

	saved := es.savedConfig()
	require.NotNil(t, saved)
	assert.Equal(t, int64(30000), saved.IntervalMs)
	assert.False(t, saved.Enabled, "config updates never flip the lifecycle flag")
}

func TestStatusReportsLifecycleAndConfig(t *testing.T) {
	r := newTestReconciler(newReconMappingStore(), newReconEventStore(), newReconPusher().Push, nil)
	ctx := context.Background()

	status, err := r.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, models.DefaultDaemonConfig().IntervalMs, status.Config.IntervalMs)

	require.NoError(t, r.Start(ctx, nil))
	defer r.Stop(ctx)

	status, err = r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.True(t, status.Config.Enabled)
}
