package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/store"
)

// fakeMappingStore is an in-memory MappingStore for engine tests
type fakeMappingStore struct {
	mu       sync.Mutex
	mappings map[string]*models.ChannelMapping
	channels map[int64]*models.ChannelEntry
	nextID   int64
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{
		mappings: make(map[string]*models.ChannelMapping),
		channels: make(map[int64]*models.ChannelEntry),
	}
}

func (f *fakeMappingStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeMappingStore) CreateMapping(ctx context.Context, mapping *models.ChannelMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mappings[mapping.SKU]; ok {
		return store.ErrDuplicateSKU
	}
	mapping.ID = f.id()
	mapping.CreatedAt = time.Now()
	mapping.UpdatedAt = mapping.CreatedAt
	stored := *mapping
	stored.Channels = nil
	f.mappings[mapping.SKU] = &stored
	return nil
}

func (f *fakeMappingStore) GetMappingBySKU(ctx context.Context, sku string) (*models.ChannelMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.mappings[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.loadLocked(stored), nil
}

func (f *fakeMappingStore) GetMappingByID(ctx context.Context, id int64) (*models.ChannelMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.mappings {
		if stored.ID == id {
			return f.loadLocked(stored), nil
		}
	}
	return nil, store.ErrNotFound
}

// loadLocked copies a mapping with its channels in creation order
func (f *fakeMappingStore) loadLocked(stored *models.ChannelMapping) *models.ChannelMapping {
	mapping := *stored
	for _, ch := range f.channels {
		if ch.MappingID == stored.ID {
			mapping.Channels = append(mapping.Channels, *ch)
		}
	}
	sort.Slice(mapping.Channels, func(i, j int) bool {
		return mapping.Channels[i].ID < mapping.Channels[j].ID
	})
	return &mapping
}

func (f *fakeMappingStore) ListMappings(ctx context.Context, filter models.MappingFilter) ([]models.ChannelMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.ChannelMapping
	for _, stored := range f.mappings {
		if filter.SyncEnabledOnly && !stored.SyncEnabled {
			continue
		}
		result = append(result, *f.loadLocked(stored))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (f *fakeMappingStore) AddChannel(ctx context.Context, entry *models.ChannelEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.Platform == entry.Platform && ch.ListingID == entry.ListingID {
			return store.ErrDuplicateChannel
		}
	}
	entry.ID = f.id()
	entry.CreatedAt = time.Now()
	stored := *entry
	f.channels[entry.ID] = &stored
	return nil
}

func (f *fakeMappingStore) RemoveChannel(ctx context.Context, platform, listingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.channels {
		if ch.Platform == platform && ch.ListingID == listingID {
			delete(f.channels, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeMappingStore) GetChannel(ctx context.Context, platform, listingID string) (*models.ChannelEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.channels {
		if ch.Platform == platform && ch.ListingID == listingID {
			entry := *ch
			return &entry, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeMappingStore) AdjustTotalTx(ctx context.Context, sku string, delta int) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.mappings[sku]
	if !ok {
		return 0, 0, store.ErrNotFound
	}
	previous := stored.TotalQuantity
	current := previous + delta
	if current < 0 {
		current = 0
	}
	stored.TotalQuantity = current
	return previous, current, nil
}

func (f *fakeMappingStore) SetSyncEnabled(ctx context.Context, sku string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.mappings[sku]
	if !ok {
		return store.ErrNotFound
	}
	stored.SyncEnabled = enabled
	return nil
}

func (f *fakeMappingStore) TouchLastSync(ctx context.Context, sku string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.mappings[sku]
	if !ok {
		return store.ErrNotFound
	}
	stored.LastSyncAt = &at
	return nil
}

func (f *fakeMappingStore) UpdateChannelPushState(ctx context.Context, channelID int64, quantity int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return store.ErrNotFound
	}
	ch.Quantity = quantity
	ch.LastPushedQuantity = quantity
	ch.LastPushAt = &at
	return nil
}

// fakeEventStore is an in-memory EventStore for engine tests
type fakeEventStore struct {
	mu        sync.Mutex
	events    []models.SyncEvent
	config    *models.SyncDaemonConfig
	cycles    int64
	processed map[string]bool
	nextID    int64
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{processed: make(map[string]bool)}
}

func (f *fakeEventStore) InsertSyncEvent(ctx context.Context, event *models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	event.ID = f.nextID
	event.CreatedAt = time.Now()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventStore) ListSyncEvents(ctx context.Context, filter models.EventFilter) ([]models.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var result []models.SyncEvent
	for i := len(f.events) - 1; i >= 0 && len(result) < limit; i-- {
		event := f.events[i]
		if filter.SKU != "" && event.SKU != filter.SKU {
			continue
		}
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		if !filter.Since.IsZero() && event.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}

func (f *fakeEventStore) CountEventsByType(ctx context.Context, since time.Time) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, event := range f.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		counts[event.EventType]++
	}
	return counts, nil
}

func (f *fakeEventStore) CountEventsPerDay(ctx context.Context, since time.Time) ([]models.DailyEventCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byDay := make(map[string]int)
	for _, event := range f.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		byDay[event.CreatedAt.Format("2006-01-02")]++
	}
	var result []models.DailyEventCount
	for day, count := range byDay {
		result = append(result, models.DailyEventCount{Day: day, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

func (f *fakeEventStore) CountOversellIncidents(ctx context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, event := range f.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		if event.EventType == models.SyncEventError && event.Oversell {
			count++
		}
	}
	return count, nil
}

func (f *fakeEventStore) GetDaemonConfig(ctx context.Context) (*models.SyncDaemonConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.config == nil {
		return nil, store.ErrNotFound
	}
	cfg := *f.config
	return &cfg, nil
}

func (f *fakeEventStore) SaveDaemonConfig(ctx context.Context, cfg *models.SyncDaemonConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *cfg
	f.config = &stored
	return nil
}

func (f *fakeEventStore) RecordDaemonCycle(ctx context.Context, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	if f.config != nil {
		f.config.CyclesCompleted = f.cycles
		f.config.LastCycleAt = &at
	}
	return f.cycles, nil
}

func (f *fakeEventStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[eventID], nil
}

func (f *fakeEventStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = true
	return nil
}

// eventsOfType returns recorded audit events of one type
func (f *fakeEventStore) eventsOfType(eventType string) []models.SyncEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.SyncEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			result = append(result, event)
		}
	}
	return result
}

// fakeCache is an in-memory SnapshotCache. A missing SKU returns an error,
// which the ledger treats as a cache miss.
type fakeCache struct {
	mu        sync.Mutex
	snapshots map[string][3]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[string][3]int)}
}

func (c *fakeCache) SetStockSnapshot(ctx context.Context, sku string, total, reserved, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[sku] = [3]int{total, reserved, available}
	return nil
}

func (c *fakeCache) GetStockSnapshot(ctx context.Context, sku string) (int, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot, ok := c.snapshots[sku]
	if !ok {
		return 0, 0, 0, store.ErrNotFound
	}
	return snapshot[0], snapshot[1], snapshot[2], nil
}

// fakePusher records push calls and fails on demand
type fakePusher struct {
	mu     sync.Mutex
	calls  []pushCall
	reject map[string]bool
	errs   map[string]error
}

type pushCall struct {
	Platform  string
	ListingID string
	Quantity  int
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		reject: make(map[string]bool),
		errs:   make(map[string]error),
	}
}

func (p *fakePusher) Push(ctx context.Context, platform, listingID string, quantity int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pushCall{Platform: platform, ListingID: listingID, Quantity: quantity})
	if err, ok := p.errs[platform]; ok {
		return false, err
	}
	if p.reject[platform] {
		return false, nil
	}
	return true, nil
}

func (p *fakePusher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePusher) quantities() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]int, len(p.calls))
	for i, call := range p.calls {
		result[i] = call.Quantity
	}
	return result
}
