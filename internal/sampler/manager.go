// Package sampler owns the current metrics snapshot: it runs refresh cycles
// on a fixed interval or on demand, publishes each result atomically and
// notifies subscribers once per completed cycle.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/nvmon-web/internal/metric"
)

var (
	// ErrAlreadyStarted is returned by Start when the loop is running.
	ErrAlreadyStarted = errors.New("sampler already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("sampler stopped")
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateScheduled
	StateRefreshing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRefreshing:
		return "refreshing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SnapshotCollector produces one snapshot per call. *Collector implements it.
type SnapshotCollector interface {
	Collect(ctx context.Context) metric.Snapshot
}

// Stats reports refresh counters.
type Stats struct {
	State     State
	Cycles    uint64
	Triggers  uint64
	Coalesced uint64
}

// Manager schedules refresh cycles, caches the latest snapshot and fans out
// change notifications. All cycles run on a single loop goroutine, so two
// cycles never overlap.
type Manager struct {
	interval  time.Duration
	collector SnapshotCollector
	logger    *slog.Logger
	notifier  *Notifier

	current atomic.Pointer[metric.Snapshot]
	state   atomic.Int32
	seq     uint64

	trigger chan struct{}
	stopCh  chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once

	cycles    atomic.Uint64
	triggers  atomic.Uint64
	coalesced atomic.Uint64
}

// NewManager builds a Manager around collector.
func NewManager(interval time.Duration, collector SnapshotCollector, logger *slog.Logger) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if collector == nil {
		return nil, fmt.Errorf("collector must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		interval:  interval,
		collector: collector,
		logger:    logger.With("component", "sampler_manager"),
		notifier:  NewNotifier(),
		trigger:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the refresh loop. The first cycle runs immediately. Cancelling
// ctx stops the schedule; an in-flight cycle still completes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.state.Store(int32(StateScheduled))
	go m.loop(ctx)
	return nil
}

// Run starts the loop and blocks until ctx is done or Stop is called.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-m.done:
	}
	return m.Close()
}

// TriggerNow requests an immediate refresh. A request made while a cycle is
// running is queued to run right after it; further requests coalesce into the
// queued one. It returns false once the manager is stopped.
func (m *Manager) TriggerNow() bool {
	select {
	case <-m.stopCh:
		return false
	default:
	}
	m.triggers.Add(1)
	select {
	case m.trigger <- struct{}{}:
	default:
		m.coalesced.Add(1)
	}
	return true
}

// Stop cancels the schedule, waits for an in-flight cycle to publish, and
// moves the manager to StateStopped. Safe for repeated use.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	m.mu.Lock()
	started := m.started
	m.stopped = true
	m.mu.Unlock()

	if started {
		<-m.done
		return
	}
	m.state.Store(int32(StateStopped))
}

// Close stops the manager and closes all subscription channels.
func (m *Manager) Close() error {
	m.Stop()
	m.notifier.CloseAll()
	return nil
}

// Latest returns the most recently published snapshot. The bool is false
// until the first cycle completes.
func (m *Manager) Latest() (metric.Snapshot, bool) {
	snap := m.current.Load()
	if snap == nil {
		return metric.Snapshot{Status: metric.StatusPending}, false
	}
	return *snap, true
}

// Ready reports whether at least one snapshot has been published.
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// Subscribe registers for change notifications. Signals carry no data; read
// the snapshot with Latest.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	return m.notifier.Subscribe()
}

// Interval returns the refresh interval.
func (m *Manager) Interval() time.Duration {
	return m.interval
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns a copy of the refresh counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:     m.State(),
		Cycles:    m.cycles.Load(),
		Triggers:  m.triggers.Load(),
		Coalesced: m.coalesced.Load(),
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	defer m.state.Store(int32(StateStopped))

	cycleCtx := context.WithoutCancel(ctx)
	logger := m.logger
	logger.Info("sampler started", "interval", m.interval)

	if m.stopping(ctx) {
		logger.Info("sampler stopping", "reason", "stopped before first cycle")
		return
	}
	m.refresh(cycleCtx, "initial")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if m.stopping(ctx) {
			logger.Info("sampler stopping", "cycles", m.cycles.Load())
			return
		}
		select {
		case <-m.stopCh:
		case <-ctx.Done():
		case <-ticker.C:
			m.refresh(cycleCtx, "timer")
		case <-m.trigger:
			m.refresh(cycleCtx, "manual")
		}
	}
}

func (m *Manager) stopping(ctx context.Context) bool {
	select {
	case <-m.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (m *Manager) refresh(ctx context.Context, reason string) {
	m.state.Store(int32(StateRefreshing))
	start := time.Now()

	snap := m.collector.Collect(ctx)
	m.seq++
	snap.Sequence = m.seq
	m.current.Store(&snap)
	m.cycles.Add(1)

	m.state.CompareAndSwap(int32(StateRefreshing), int32(StateScheduled))
	m.notifier.Notify()

	m.logger.Debug("refresh complete",
		"reason", reason,
		"seq", snap.Sequence,
		"status", snap.Status,
		"duration", time.Since(start),
	)
}
