package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/service"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDaemonRunning is returned when starting an already-running daemon
	ErrDaemonRunning = errors.New("sync daemon already running")

	// ErrIntervalTooShort is returned for intervals below the safety floor
	ErrIntervalTooShort = fmt.Errorf("sync interval must be at least %s", models.MinSyncInterval)
)

// CycleLocker holds the cross-instance reconciliation lock. A nil locker
// means single-instance mode. *redisclient.Client implements it.
type CycleLocker interface {
	AcquireCycleLock(ctx context.Context, ttl time.Duration) (string, error)
	ReleaseCycleLock(ctx context.Context, owner string) error
}

// Reconciler is the sync daemon: a single background loop that walks
// sync-enabled mappings on an interval and re-distributes any whose channel
// targets have drifted from their last-pushed quantities. Only one loop may
// be armed at a time; a second Start is rejected.
type Reconciler struct {
	mappings    service.MappingStore
	events      service.EventStore
	distributor *service.Distributor
	locker      CycleLocker
	publisher   service.EventPublisher
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// inCycle guards against a tick firing while the previous cycle's push
	// calls are still in flight
	inCycle sync.Mutex
}

// NewReconciler creates a new reconciliation daemon
func NewReconciler(
	mappings service.MappingStore,
	events service.EventStore,
	distributor *service.Distributor,
	locker CycleLocker,
	publisher service.EventPublisher,
) *Reconciler {
	return &Reconciler{
		mappings:    mappings,
		events:      events,
		distributor: distributor,
		locker:      locker,
		publisher:   publisher,
		logger:      util.GetLogger(),
	}
}

// StartDaemonRequest carries optional policy overrides merged into the
// persisted config when the daemon starts
type StartDaemonRequest struct {
	IntervalMinutes       *int     `json:"interval_minutes,omitempty"`
	BufferStock           *int     `json:"buffer_stock,omitempty"`
	OversellProtection    *bool    `json:"oversell_protection,omitempty"`
	MaxQuantityPerChannel *int     `json:"max_quantity_per_channel,omitempty"`
	Platforms             []string `json:"platforms,omitempty"`
}

// UpdateConfigRequest carries a partial policy update. Absent fields keep
// their persisted values; a zero max quantity clears the cap.
type UpdateConfigRequest struct {
	IntervalMs            *int64   `json:"interval_ms,omitempty"`
	BufferStock           *int     `json:"buffer_stock,omitempty"`
	OversellProtection    *bool    `json:"oversell_protection,omitempty"`
	MaxQuantityPerChannel *int     `json:"max_quantity_per_channel,omitempty"`
	Platforms             []string `json:"platforms,omitempty"`
}

// DaemonStatus reports the daemon's lifecycle state and active policy
type DaemonStatus struct {
	Running bool                     `json:"running"`
	Config  *models.SyncDaemonConfig `json:"config"`
}

// Start merges any overrides into the persisted config, runs one cycle
// synchronously, then arms the interval loop. Returns ErrDaemonRunning if
// a loop is already armed.
func (r *Reconciler) Start(ctx context.Context, req *StartDaemonRequest) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrDaemonRunning
	}

	cfg, err := r.mergeStartConfig(ctx, req)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	r.logger.Info("Sync daemon starting",
		zap.Duration("interval", cfg.Interval()),
		zap.Int("buffer_stock", cfg.BufferStock),
		zap.Bool("oversell_protection", cfg.OversellProtection))

	// first pass before the caller gets control back
	r.runCycle(runCtx)

	go r.run(runCtx, cfg.Interval())
	return nil
}

// Stop cancels the loop, waits for any in-flight cycle to wind down, and
// persists the disabled flag so a restart stays stopped. Stopping a stopped
// daemon is a no-op; the return value reports whether a running daemon was
// actually stopped.
func (r *Reconciler) Stop(ctx context.Context) bool {
	if !r.stopLoop() {
		return false
	}

	if err := r.setEnabled(ctx, false); err != nil {
		r.logger.Error("Failed to persist daemon disabled flag", zap.Error(err))
	}
	r.logger.Info("Sync daemon stopped")
	return true
}

// Halt cancels the loop without touching the persisted enabled flag, so the
// next boot resumes the daemon. This is the process shutdown path.
func (r *Reconciler) Halt() {
	if r.stopLoop() {
		r.logger.Info("Sync daemon halted")
	}
}

func (r *Reconciler) stopLoop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return true
}

// IsRunning reports whether the interval loop is armed
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status returns lifecycle state plus the persisted policy
func (r *Reconciler) Status(ctx context.Context) (*DaemonStatus, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &DaemonStatus{
		Running: r.IsRunning(),
		Config:  cfg,
	}, nil
}

// GetConfig returns the persisted policy, or defaults when none exists
func (r *Reconciler) GetConfig(ctx context.Context) (*models.SyncDaemonConfig, error) {
	return r.loadConfig(ctx)
}

// UpdateConfig applies a partial policy update. A running daemon picks the
// new policy up on its next cycle; the tick interval follows one tick later.
func (r *Reconciler) UpdateConfig(ctx context.Context, req *UpdateConfigRequest) (*models.SyncDaemonConfig, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if req.IntervalMs != nil {
		if *req.IntervalMs < models.MinSyncInterval.Milliseconds() {
			return nil, ErrIntervalTooShort
		}
		cfg.IntervalMs = *req.IntervalMs
	}
	if err := applyPolicy(cfg, req.BufferStock, req.OversellProtection, req.MaxQuantityPerChannel, req.Platforms); err != nil {
		return nil, err
	}

	if err := r.events.SaveDaemonConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to persist sync config: %w", err)
	}
	r.logger.Info("Sync config updated", zap.Int64("interval_ms", cfg.IntervalMs))
	return cfg, nil
}

// run is the interval loop. It re-reads the interval after every cycle so
// config updates take effect without a restart.
func (r *Reconciler) run(ctx context.Context, interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := r.runCycle(ctx)
			if cfg != nil && cfg.Interval() != interval {
				interval = cfg.Interval()
				ticker.Reset(interval)
				r.logger.Info("Sync interval updated", zap.Duration("interval", interval))
			}
		}
	}
}

// runCycle walks all sync-enabled mappings once: cheap drift check first,
// full distribution pass only for drifted mappings. One mapping's failure
// never aborts the rest of the cycle. Returns the config the cycle ran
// under, or nil when the cycle was skipped.
func (r *Reconciler) runCycle(ctx context.Context) *models.SyncDaemonConfig {
	if !r.inCycle.TryLock() {
		util.SyncCyclesSkippedTotal.Inc()
		r.logger.Warn("Previous sync cycle still running, skipping tick")
		return nil
	}
	defer r.inCycle.Unlock()

	cfg, err := r.loadConfig(ctx)
	if err != nil {
		r.logger.Error("Failed to load sync config for cycle", zap.Error(err))
		return nil
	}

	if r.locker != nil {
		// lock expires on its own if this instance dies mid-cycle
		owner, err := r.locker.AcquireCycleLock(ctx, cfg.Interval())
		if err != nil {
			r.logger.Error("Failed to acquire cycle lock", zap.Error(err))
			return cfg
		}
		if owner == "" {
			r.logger.Debug("Cycle lock held elsewhere, skipping tick")
			return cfg
		}
		defer func() {
			if err := r.locker.ReleaseCycleLock(ctx, owner); err != nil {
				r.logger.Error("Failed to release cycle lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	var checked, synced, failures int

	mappings, err := r.mappings.ListMappings(ctx, models.MappingFilter{SyncEnabledOnly: true})
	if err != nil {
		r.logger.Error("Failed to list mappings for cycle", zap.Error(err))
		return cfg
	}

	for i := range mappings {
		select {
		case <-ctx.Done():
			r.logger.Info("Sync cycle interrupted", zap.Int("checked", checked))
			return cfg
		default:
		}

		mapping := &mappings[i]
		checked++
		if !service.HasDrift(mapping, cfg) {
			continue
		}
		util.DriftDetectedTotal.Inc()

		result, err := r.distributor.SyncWithConfig(ctx, mapping.SKU, cfg)
		if err != nil {
			failures++
			r.logger.Error("Sync pass failed",
				zap.String("sku", mapping.SKU),
				zap.Error(err))
			continue
		}
		if result.Failed > 0 {
			failures++
		} else {
			synced++
		}
	}

	duration := time.Since(start)
	cycle, err := r.events.RecordDaemonCycle(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to record cycle completion", zap.Error(err))
	}

	util.SyncCyclesTotal.Inc()
	util.SyncCycleDuration.Observe(duration.Seconds())
	r.logger.Info("Sync cycle completed",
		zap.Int64("cycle", cycle),
		zap.Int("checked", checked),
		zap.Int("synced", synced),
		zap.Int("failures", failures),
		zap.Duration("duration", duration))

	r.publishCycleCompleted(ctx, cycle, checked, synced, failures, duration)
	return cfg
}

// mergeStartConfig folds start overrides into the persisted policy and
// stamps it enabled, so a process restart resumes the daemon
func (r *Reconciler) mergeStartConfig(ctx context.Context, req *StartDaemonRequest) (*models.SyncDaemonConfig, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if req != nil {
		if req.IntervalMinutes != nil {
			if *req.IntervalMinutes <= 0 {
				return nil, ErrIntervalTooShort
			}
			cfg.IntervalMs = int64(*req.IntervalMinutes) * time.Minute.Milliseconds()
		}
		if err := applyPolicy(cfg, req.BufferStock, req.OversellProtection, req.MaxQuantityPerChannel, req.Platforms); err != nil {
			return nil, err
		}
	}

	cfg.Enabled = true
	if err := r.events.SaveDaemonConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to persist sync config: %w", err)
	}
	return cfg, nil
}

// applyPolicy copies the provided policy fields onto cfg. A max quantity
// of zero or less clears the cap; an absent platforms list keeps the
// persisted allow-list.
func applyPolicy(cfg *models.SyncDaemonConfig, bufferStock *int, oversell *bool, maxPerChannel *int, platforms []string) error {
	if bufferStock != nil {
		if *bufferStock < 0 {
			return errors.New("buffer stock cannot be negative")
		}
		cfg.BufferStock = *bufferStock
	}
	if oversell != nil {
		cfg.OversellProtection = *oversell
	}
	if maxPerChannel != nil {
		if *maxPerChannel <= 0 {
			cfg.MaxQuantityPerChannel = nil
		} else {
			value := *maxPerChannel
			cfg.MaxQuantityPerChannel = &value
		}
	}
	if platforms != nil {
		cfg.Platforms = platforms
	}
	return nil
}

func (r *Reconciler) setEnabled(ctx context.Context, enabled bool) error {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Enabled = enabled
	return r.events.SaveDaemonConfig(ctx, cfg)
}

func (r *Reconciler) loadConfig(ctx context.Context) (*models.SyncDaemonConfig, error) {
	cfg, err := r.events.GetDaemonConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultDaemonConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *Reconciler) publishCycleCompleted(ctx context.Context, cycle int64, checked, synced, failures int, duration time.Duration) {
	if r.publisher == nil {
		return
	}
	event := &models.SyncCycleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncCycleCompleted,
			Timestamp: time.Now(),
		},
		Cycle:           cycle,
		MappingsChecked: checked,
		MappingsSynced:  synced,
		Failures:        failures,
		DurationMs:      duration.Milliseconds(),
	}
	if err := r.publisher.PublishSyncCycleCompleted(ctx, event); err != nil {
		r.logger.Error("Failed to publish SyncCycleCompleted event", zap.Error(err))
	}
}
