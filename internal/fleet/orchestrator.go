package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// ErrStopped is returned by TriggerScan after the orchestrator shuts down.
var ErrStopped = errors.New("scan orchestrator stopped")

// deviceProber abstracts DeviceProber for tests.
type deviceProber interface {
	Probe(ctx context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot
}

// Options tunes the orchestrator.
type Options struct {
	// Interval between scheduled cycles.
	Interval time.Duration
	// CycleTimeout bounds one cycle's wall clock. Capped at Interval so
	// cycles never overlap indefinitely.
	CycleTimeout time.Duration
	// MaxConcurrent caps simultaneous device probes. Zero means no ceiling.
	MaxConcurrent int
}

// Orchestrator fans the device prober out over the configured fleet on a
// fixed interval and on demand, and publishes each cycle's snapshot
// atomically to the state store. Only one cycle runs at a time: an on-demand
// trigger during a cycle attaches to it, a scheduled tick during a cycle is
// skipped.
type Orchestrator struct {
	configs []models.DeviceConfig
	prober  deviceProber
	store   *StateStore
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *cycle
	stopped bool
}

// cycle tracks one in-flight scan so concurrent triggers can share its
// result.
type cycle struct {
	done chan struct{}
	snap *models.FleetSnapshot
}

// NewOrchestrator creates an orchestrator and seeds the store with an empty
// snapshot listing every configured device as down, so readers always see
// the complete device set.
func NewOrchestrator(configs []models.DeviceConfig, prober deviceProber, store *StateStore, opts Options, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.CycleTimeout <= 0 || opts.CycleTimeout > opts.Interval {
		opts.CycleTimeout = opts.Interval
	}
	return &Orchestrator{
		configs: configs,
		prober:  prober,
		store:   store,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run executes scheduled cycles until ctx is cancelled. The first cycle
// starts immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("scan orchestrator running",
		zap.Duration("interval", o.opts.Interval),
		zap.Int("devices", len(o.configs)),
	)

	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick starts a scheduled cycle unless one is already in flight.
func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	if o.current != nil {
		o.logger.Warn("previous scan cycle still running, skipping tick")
		if o.metrics != nil {
			o.metrics.TicksSkipped.Inc()
		}
		return
	}
	o.startCycleLocked(ctx)
}

// TriggerScan runs an on-demand cycle and blocks until its snapshot is
// available. If a cycle is already in flight the caller attaches to it and
// receives that cycle's snapshot. The scheduled timer is not reset.
func (o *Orchestrator) TriggerScan(ctx context.Context) (*models.FleetSnapshot, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrStopped
	}
	c := o.current
	if c == nil {
		c = o.startCycleLocked(context.WithoutCancel(ctx))
	}
	o.mu.Unlock()

	select {
	case <-c.done:
		return c.snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startCycleLocked launches a cycle goroutine. Caller holds o.mu.
func (o *Orchestrator) startCycleLocked(ctx context.Context) *cycle {
	c := &cycle{done: make(chan struct{})}
	o.current = c
	go func() {
		c.snap = o.runCycle(ctx)
		o.store.Publish(c.snap)

		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
		close(c.done)
	}()
	return c
}

// runCycle probes every device concurrently and assembles the fleet snapshot
// in configuration order. Devices whose prober has not returned by the cycle
// deadline are recorded as unreachable with carried-forward identity fields;
// the device set of a snapshot is always complete.
func (o *Orchestrator) runCycle(ctx context.Context) *models.FleetSnapshot {
	start := o.now()
	cycleID := uuid.New().String()
	o.logger.Debug("scan cycle starting", zap.String("cycle_id", cycleID))

	cycleCtx, cancel := context.WithTimeout(ctx, o.opts.CycleTimeout)
	defer cancel()

	previous := o.store.Current()
	results := make([]models.DeviceSnapshot, len(o.configs))

	g, gctx := errgroup.WithContext(cycleCtx)
	if o.opts.MaxConcurrent > 0 {
		g.SetLimit(o.opts.MaxConcurrent)
	}
	for i, cfg := range o.configs {
		g.Go(func() error {
			prev := previous.Device(cfg.ID)
			results[i] = o.probeWithDeadline(gctx, cfg, prev)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // device probes never return errors

	snap := &models.FleetSnapshot{
		CycleID:             cycleID,
		GeneratedAt:         o.now(),
		ScanIntervalSeconds: int(o.opts.Interval / time.Second),
		Devices:             results,
	}

	up := 0
	for i := range snap.Devices {
		if snap.Devices[i].Up {
			up++
		}
	}
	elapsed := o.now().Sub(start)
	o.logger.Info("scan cycle complete",
		zap.String("cycle_id", cycleID),
		zap.Int("devices", len(snap.Devices)),
		zap.Int("up", up),
		zap.Duration("elapsed", elapsed),
	)
	if o.metrics != nil {
		o.metrics.ObserveCycle(elapsed, len(snap.Devices), up)
	}
	return snap
}

// probeWithDeadline guards a single device probe against overrunning the
// cycle deadline. A prober that has not returned by then yields the fallback
// unreachable snapshot; the late result is discarded.
func (o *Orchestrator) probeWithDeadline(ctx context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot {
	ch := make(chan models.DeviceSnapshot, 1)
	go func() {
		ch <- o.prober.Probe(ctx, cfg, prev)
	}()
	select {
	case snap := <-ch:
		return snap
	case <-ctx.Done():
		o.logger.Warn("device probe exceeded cycle deadline",
			zap.String("device", cfg.ID))
		return o.fallbackSnapshot(cfg, prev)
	}
}

// fallbackSnapshot records a device as unreachable while carrying forward the
// identity fields the previous cycle knew.
func (o *Orchestrator) fallbackSnapshot(cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot {
	now := o.now()
	snap := models.DeviceSnapshot{
		ID:          cfg.ID,
		Name:        cfg.Name,
		IP:          cfg.IP,
		Broadcast:   cfg.Broadcast,
		MAC:         models.NormalizeMAC(cfg.MAC),
		IPs:         []string{},
		LastChecked: &now,
	}
	if prev != nil {
		snap.LastSeen = prev.LastSeen
		snap.Hostname = prev.Hostname
		if prev.MAC != "" {
			snap.MAC = prev.MAC
		}
		snap.IPs = mergeOrdered(snap.IPs, prev.IPs...)
	}
	return snap
}

// SeedSnapshot builds the pre-first-cycle snapshot: every configured device,
// down, with only configuration-known identity.
func SeedSnapshot(configs []models.DeviceConfig, interval time.Duration, now time.Time) *models.FleetSnapshot {
	devices := make([]models.DeviceSnapshot, len(configs))
	for i, cfg := range configs {
		devices[i] = models.DeviceSnapshot{
			ID:        cfg.ID,
			Name:      cfg.Name,
			IP:        cfg.IP,
			Broadcast: cfg.Broadcast,
			MAC:       models.NormalizeMAC(cfg.MAC),
			IPs:       []string{},
		}
	}
	return &models.FleetSnapshot{
		CycleID:             uuid.New().String(),
		GeneratedAt:         now,
		ScanIntervalSeconds: int(interval / time.Second),
		Devices:             devices,
	}
}

// shutdown marks the orchestrator stopped; subsequent TriggerScan calls fail
// with ErrStopped. An in-flight cycle is left to finish on its own.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
	o.logger.Info("scan orchestrator stopped")
}
