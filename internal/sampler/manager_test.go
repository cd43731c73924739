package sampler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skobkin/nvmon-web/internal/metric"
)

// fakeCollector stamps every field with the call number so tests can detect
// snapshots mixing two cycles. When gated, each call blocks until released.
type fakeCollector struct {
	gate chan struct{}

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	started  chan struct{}
}

func newFakeCollector(gated bool) *fakeCollector {
	fc := &fakeCollector{started: make(chan struct{}, 64)}
	if gated {
		fc.gate = make(chan struct{})
	}
	return fc
}

func (f *fakeCollector) Collect(ctx context.Context) metric.Snapshot {
	n := f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.gate != nil {
		<-f.gate
	}

	v := float64(n)
	gpu := metric.GPU{
		DeviceName:         metric.Measured("fake"),
		UtilizationPercent: metric.Measured(v),
		MemoryUsedMiB:      metric.Measured(v),
		MemoryTotalMiB:     metric.Measured(v),
		TemperatureCelsius: metric.Measured(v),
	}
	cpu := metric.CPU{UtilizationPercent: metric.Measured(v)}
	ram := metric.RAM{UsedGiB: metric.Measured(v), TotalGiB: metric.Measured(v)}
	return metric.Snapshot{
		Timestamp: time.Now().UTC(),
		Platform:  "linux",
		Status:    metric.DeriveStatus(gpu, cpu, ram),
		GPU:       gpu,
		CPU:       cpu,
		RAM:       ram,
	}
}

func (f *fakeCollector) release() {
	f.gate <- struct{}{}
}

func (f *fakeCollector) awaitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cycle to start")
	}
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(0, newFakeCollector(false), nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := NewManager(time.Second, nil, nil); err == nil {
		t.Fatalf("expected error for nil collector")
	}
}

func TestManagerPublishesAndNotifies(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, 15*time.Millisecond, newFakeCollector(false))

	if _, ok := manager.Latest(); ok {
		t.Fatalf("Latest should report no snapshot before start")
	}
	if snap, _ := manager.Latest(); snap.Status != metric.StatusPending {
		t.Fatalf("expected pending status, got %v", snap.Status)
	}

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = manager.Run(ctx)
	}()

	awaitSignal(t, ch)
	waitFor(t, 500*time.Millisecond, manager.Ready)

	first, ok := manager.Latest()
	if !ok || first.Sequence == 0 {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	awaitSignal(t, ch)
	next, _ := manager.Latest()
	if next.Sequence <= first.Sequence {
		t.Fatalf("sequence did not advance: %d -> %d", first.Sequence, next.Sequence)
	}
	if next.Status != metric.StatusOK {
		t.Fatalf("unexpected status %v", next.Status)
	}
}

func TestManagerNotifiesOncePerCycle(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(true)
	manager := newTestManager(t, time.Hour, fc)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() {
		go drainGate(fc)
		manager.Stop()
	})

	for cycle := 1; cycle <= 3; cycle++ {
		fc.awaitStarted(t)
		assertNoSignal(t, ch)
		fc.release()
		awaitSignal(t, ch)
		assertNoSignal(t, ch)

		snap, _ := manager.Latest()
		if snap.Sequence != uint64(cycle) {
			t.Fatalf("cycle %d: sequence %d", cycle, snap.Sequence)
		}
		if cycle < 3 && !manager.TriggerNow() {
			t.Fatalf("TriggerNow rejected while running")
		}
	}
}

func TestManagerTriggerDuringRefreshDoesNotOverlap(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(true)
	manager := newTestManager(t, time.Hour, fc)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() {
		go drainGate(fc)
		manager.Stop()
	})

	fc.awaitStarted(t)
	if state := manager.State(); state != StateRefreshing {
		t.Fatalf("expected refreshing state, got %v", state)
	}

	for i := 0; i < 5; i++ {
		if !manager.TriggerNow() {
			t.Fatalf("TriggerNow returned false")
		}
	}

	fc.release()
	fc.awaitStarted(t)
	fc.release()

	waitFor(t, time.Second, func() bool { return manager.Stats().Cycles == 2 })
	time.Sleep(30 * time.Millisecond)

	stats := manager.Stats()
	if stats.Cycles != 2 {
		t.Fatalf("expected exactly 2 cycles, got %d", stats.Cycles)
	}
	if stats.Triggers != 5 || stats.Coalesced != 4 {
		t.Fatalf("unexpected trigger stats %+v", stats)
	}
	if max := fc.maxSeen.Load(); max != 1 {
		t.Fatalf("cycles overlapped: %d concurrent collections", max)
	}
}

func TestManagerGracefulStop(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(true)
	manager := newTestManager(t, time.Hour, fc)

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	fc.awaitStarted(t)
	manager.TriggerNow()

	stopped := make(chan struct{})
	go func() {
		manager.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight cycle finished")
	case <-time.After(30 * time.Millisecond):
	}
	waitFor(t, time.Second, func() bool { return !manager.TriggerNow() })

	fc.release()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}

	awaitSignal(t, ch)
	snap, ok := manager.Latest()
	if !ok || snap.Sequence != 1 {
		t.Fatalf("in-flight cycle was not published: %+v", snap)
	}
	if manager.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", manager.State())
	}
	if manager.TriggerNow() {
		t.Fatalf("TriggerNow should be rejected after stop")
	}
	if err := manager.Start(context.Background()); err != ErrStopped {
		t.Fatalf("Start after stop returned %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if calls := fc.calls.Load(); calls != 1 {
		t.Fatalf("cycles ran after stop: %d calls", calls)
	}
	manager.Stop()
}

func TestManagerStartTwice(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, time.Hour, newFakeCollector(false))
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer manager.Stop()

	if err := manager.Start(context.Background()); err != ErrAlreadyStarted {
		t.Fatalf("second Start returned %v", err)
	}
}

func TestManagerStopBeforeStart(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(false)
	manager := newTestManager(t, time.Hour, fc)
	manager.Stop()

	if manager.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", manager.State())
	}
	if fc.calls.Load() != 0 {
		t.Fatalf("collector ran without start")
	}
}

func TestManagerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, 5*time.Millisecond, newFakeCollector(false))
	ch, _ := manager.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Run(ctx)
	}()

	waitFor(t, time.Second, func() bool { return manager.Stats().Cycles >= 3 })
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if manager.State() != StateStopped {
		t.Fatalf("expected stopped state, got %v", manager.State())
	}

	// Close releases subscribers.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed")
		}
	}
}

func TestManagerAtomicPublish(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, time.Millisecond, newFakeCollector(false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = manager.Run(ctx)
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(100 * time.Millisecond)
			for time.Now().Before(deadline) {
				snap, ok := manager.Latest()
				if !ok {
					continue
				}
				want := snap.GPU.UtilizationPercent.Value()
				values := []float64{
					snap.GPU.MemoryUsedMiB.Value(),
					snap.GPU.MemoryTotalMiB.Value(),
					snap.GPU.TemperatureCelsius.Value(),
					snap.CPU.UtilizationPercent.Value(),
					snap.RAM.UsedGiB.Value(),
					snap.RAM.TotalGiB.Value(),
					float64(snap.Sequence),
				}
				for _, v := range values {
					if v != want {
						t.Errorf("snapshot mixes cycles: %+v", snap)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func newTestManager(t *testing.T, interval time.Duration, collector SnapshotCollector) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := NewManager(interval, collector, logger)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return manager
}

func drainGate(fc *fakeCollector) {
	for {
		select {
		case fc.gate <- struct{}{}:
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func awaitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for notification")
	}
}

func assertNoSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected notification")
	case <-time.After(20 * time.Millisecond):
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestManagerSubscribeAfterClose(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t, time.Hour, newFakeCollector(false))
	if err := manager.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ch, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription after Close was left open")
	}
}
