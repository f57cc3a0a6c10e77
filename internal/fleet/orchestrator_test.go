package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/internal/testutil"
	"github.com/HerbHall/lanwarden/pkg/models"
)

// fakeProber turns a function into a deviceProber.
type fakeProber struct {
	fn func(ctx context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot

	mu    sync.Mutex
	calls int
}

func (f *fakeProber) Probe(ctx context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, cfg, prev)
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// upProber reports every device reachable at the given clock's current time.
func upProber(clock *testutil.Clock) *fakeProber {
	return &fakeProber{fn: func(_ context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		now := clock.Now()
		return models.DeviceSnapshot{
			ID:       cfg.ID,
			Name:     cfg.Name,
			IP:       cfg.IP,
			Up:       true,
			IPs:      []string{cfg.IP},
			LastSeen: &now,
		}
	}}
}

func testConfigs(ids ...string) []models.DeviceConfig {
	configs := make([]models.DeviceConfig, len(ids))
	for i, id := range ids {
		configs[i] = testutil.NewDeviceConfig(testutil.WithID(id))
	}
	return configs
}

func newTestOrchestrator(t *testing.T, configs []models.DeviceConfig, prober deviceProber, opts Options, clock *testutil.Clock) (*Orchestrator, *StateStore) {
	t.Helper()
	store := NewStateStore(SeedSnapshot(configs, opts.Interval, clock.Now()))
	o := NewOrchestrator(configs, prober, store, opts, nil, zap.NewNop())
	o.now = clock.Now
	return o, store
}

func TestTriggerScan_PublishesCompleteSnapshotInConfigOrder(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha", "beta", "gamma")
	o, store := newTestOrchestrator(t, configs, upProber(clock), Options{Interval: 30 * time.Second}, clock)

	snap, err := o.TriggerScan(context.Background())
	if err != nil {
		t.Fatalf("TriggerScan() error = %v", err)
	}

	if len(snap.Devices) != len(configs) {
		t.Fatalf("device count = %d, want %d", len(snap.Devices), len(configs))
	}
	for i, cfg := range configs {
		if snap.Devices[i].ID != cfg.ID {
			t.Errorf("devices[%d].ID = %q, want %q (configuration order)", i, snap.Devices[i].ID, cfg.ID)
		}
	}
	if snap.ScanIntervalSeconds != 30 {
		t.Errorf("ScanIntervalSeconds = %d, want 30", snap.ScanIntervalSeconds)
	}
	if store.Current() != snap {
		t.Error("store does not hold the cycle's snapshot")
	}
}

func TestTriggerScan_SequentialCyclesHaveIncreasingGeneratedAt(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")
	prober := &fakeProber{fn: func(_ context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		clock.Advance(time.Second)
		return models.DeviceSnapshot{ID: cfg.ID, IPs: []string{}}
	}}
	o, _ := newTestOrchestrator(t, configs, prober, Options{Interval: 30 * time.Second}, clock)

	first, err := o.TriggerScan(context.Background())
	if err != nil {
		t.Fatalf("first TriggerScan() error = %v", err)
	}
	second, err := o.TriggerScan(context.Background())
	if err != nil {
		t.Fatalf("second TriggerScan() error = %v", err)
	}

	if first == second {
		t.Fatal("sequential triggers returned the same snapshot")
	}
	if !second.GeneratedAt.After(first.GeneratedAt) {
		t.Errorf("GeneratedAt not increasing: %v then %v", first.GeneratedAt, second.GeneratedAt)
	}
	if first.CycleID == second.CycleID {
		t.Error("cycle ids should differ")
	}
}

func TestTriggerScan_ConcurrentCallersShareInFlightCycle(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")
	release := make(chan struct{})
	prober := &fakeProber{fn: func(ctx context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return models.DeviceSnapshot{ID: cfg.ID, IPs: []string{}}
	}}
	o, _ := newTestOrchestrator(t, configs, prober, Options{Interval: 30 * time.Second}, clock)

	type result struct {
		snap *models.FleetSnapshot
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			snap, err := o.TriggerScan(context.Background())
			results <- result{snap, err}
		}()
	}

	// Let both callers attach before the cycle completes.
	time.Sleep(50 * time.Millisecond)
	close(release)

	first := <-results
	second := <-results
	if first.err != nil || second.err != nil {
		t.Fatalf("TriggerScan() errors = %v, %v", first.err, second.err)
	}
	if first.snap != second.snap {
		t.Error("concurrent callers got different snapshots, want shared in-flight cycle result")
	}
	if got := prober.callCount(); got != 1 {
		t.Errorf("prober calls = %d, want 1 (single shared cycle)", got)
	}
}

func TestRunCycle_DeadlineRecordsStalledDeviceAsUnreachable(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("stuck")
	seen := clock.Now().Add(-time.Minute)

	// Ignores cancellation entirely; the orchestrator must not wait for it.
	prober := &fakeProber{fn: func(_ context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		time.Sleep(10 * time.Second)
		return models.DeviceSnapshot{ID: cfg.ID}
	}}

	o, store := newTestOrchestrator(t, configs, prober, Options{
		Interval:     30 * time.Second,
		CycleTimeout: 100 * time.Millisecond,
	}, clock)

	// Previous cycle knew the device.
	prevSnap := SeedSnapshot(configs, 30*time.Second, clock.Now())
	prevSnap.Devices[0].Up = true
	prevSnap.Devices[0].MAC = "aa:bb:cc:dd:ee:ff"
	prevSnap.Devices[0].IPs = []string{"192.0.2.10"}
	prevSnap.Devices[0].LastSeen = &seen
	store.Publish(prevSnap)

	start := time.Now()
	snap, err := o.TriggerScan(context.Background())
	if err != nil {
		t.Fatalf("TriggerScan() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cycle took %v, want bounded by the cycle deadline", elapsed)
	}

	if len(snap.Devices) != 1 {
		t.Fatalf("device count = %d, want 1 (stalled device never omitted)", len(snap.Devices))
	}
	dev := snap.Devices[0]
	if dev.Up {
		t.Error("Up = true, want false for stalled device")
	}
	if dev.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("MAC = %q, want carried-forward identity", dev.MAC)
	}
	if dev.LastSeen == nil || !dev.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want carried-forward %v", dev.LastSeen, seen)
	}
}

func TestLastSeen_MonotonicAcrossCycles(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")

	up := true
	prober := &fakeProber{fn: func(_ context.Context, cfg models.DeviceConfig, prev *models.DeviceSnapshot) models.DeviceSnapshot {
		snap := models.DeviceSnapshot{ID: cfg.ID, IPs: []string{}}
		if up {
			now := clock.Now()
			snap.Up = true
			snap.LastSeen = &now
		} else if prev != nil {
			snap.LastSeen = prev.LastSeen
		}
		return snap
	}}
	o, _ := newTestOrchestrator(t, configs, prober, Options{Interval: 30 * time.Second}, clock)

	first, _ := o.TriggerScan(context.Background())
	t1 := first.Devices[0].LastSeen

	clock.Advance(30 * time.Second)
	up = false
	second, _ := o.TriggerScan(context.Background())
	t2 := second.Devices[0].LastSeen

	clock.Advance(30 * time.Second)
	up = true
	third, _ := o.TriggerScan(context.Background())
	t3 := third.Devices[0].LastSeen

	if t1 == nil || t2 == nil || t3 == nil {
		t.Fatalf("LastSeen missing: %v %v %v", t1, t2, t3)
	}
	if t2.Before(*t1) {
		t.Errorf("LastSeen decreased while down: %v then %v", t1, t2)
	}
	if !t2.Equal(*t1) {
		t.Errorf("LastSeen changed while down: %v then %v", t1, t2)
	}
	if !t3.After(*t2) {
		t.Errorf("LastSeen did not advance on recovery: %v then %v", t2, t3)
	}
}

func TestTick_SkipsWhileCycleInFlight(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")
	release := make(chan struct{})
	prober := &fakeProber{fn: func(ctx context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return models.DeviceSnapshot{ID: cfg.ID, IPs: []string{}}
	}}
	o, _ := newTestOrchestrator(t, configs, prober, Options{Interval: 30 * time.Second}, clock)

	done := make(chan struct{})
	go func() {
		o.TriggerScan(context.Background()) //nolint:errcheck
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	o.tick(context.Background()) // must not start a second cycle

	close(release)
	<-done

	if got := prober.callCount(); got != 1 {
		t.Errorf("prober calls = %d, want 1 (tick skipped during in-flight cycle)", got)
	}
}

func TestTriggerScan_AfterShutdown(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")
	o, _ := newTestOrchestrator(t, configs, upProber(clock), Options{Interval: 30 * time.Second}, clock)

	o.shutdown()

	_, err := o.TriggerScan(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Errorf("TriggerScan() error = %v, want ErrStopped", err)
	}
}

func TestTriggerScan_CallerContextCancelled(t *testing.T) {
	clock := testutil.NewClock()
	configs := testConfigs("alpha")
	release := make(chan struct{})
	defer close(release)
	prober := &fakeProber{fn: func(ctx context.Context, cfg models.DeviceConfig, _ *models.DeviceSnapshot) models.DeviceSnapshot {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return models.DeviceSnapshot{ID: cfg.ID, IPs: []string{}}
	}}
	o, _ := newTestOrchestrator(t, configs, prober, Options{Interval: 30 * time.Second}, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := o.TriggerScan(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TriggerScan() error = %v, want deadline exceeded", err)
	}
}

func TestSeedSnapshot(t *testing.T) {
	clock := testutil.NewClock()
	configs := []models.DeviceConfig{
		testutil.NewDeviceConfig(testutil.WithID("a"), testutil.WithMAC("AA-BB-CC-DD-EE-FF")),
		testutil.NewDeviceConfig(testutil.WithID("b")),
	}

	snap := SeedSnapshot(configs, 30*time.Second, clock.Now())
	if len(snap.Devices) != 2 {
		t.Fatalf("device count = %d, want 2", len(snap.Devices))
	}
	if snap.Devices[0].Up {
		t.Error("seed devices must start down")
	}
	if snap.Devices[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("MAC = %q, want normalized config value", snap.Devices[0].MAC)
	}
	if snap.Devices[0].LastSeen != nil {
		t.Error("seed LastSeen must be absent")
	}
}
