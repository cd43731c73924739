package tui

import (
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/view"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot metric.Snapshot
	ready    bool
	updates  chan struct{}
	triggers int
	stopped  bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{updates: make(chan struct{}, 1)}
}

func (s *fakeSource) Latest() (metric.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.ready
}

func (s *fakeSource) Subscribe() (<-chan struct{}, func()) {
	return s.updates, func() {}
}

func (s *fakeSource) TriggerNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.triggers++
	return true
}

func (s *fakeSource) publish(snap metric.Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.ready = true
	s.mu.Unlock()
	s.updates <- struct{}{}
}

func testSnapshot(seq uint64) metric.Snapshot {
	gpu := metric.GPU{
		DeviceName:         metric.Measured("NVIDIA GeForce RTX 3090"),
		UtilizationPercent: metric.Measured(37.0),
		MemoryUsedMiB:      metric.Measured(2048.0),
		MemoryTotalMiB:     metric.Measured(24576.0),
		TemperatureCelsius: metric.Measured(61.0),
	}
	cpu := metric.CPU{UtilizationPercent: metric.Measured(12.5)}
	ram := metric.RAM{UsedGiB: metric.Measured(11.72), TotalGiB: metric.Measured(15.63)}
	return metric.Snapshot{
		Sequence:  seq,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Platform:  "linux",
		Status:    metric.DeriveStatus(gpu, cpu, ram),
		GPU:       gpu,
		CPU:       cpu,
		RAM:       ram,
	}
}

func runes(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModelWaitsForFirstSnapshot(t *testing.T) {
	t.Parallel()

	model := NewModel(newFakeSource())
	defer model.Close()

	out := model.View()
	if !strings.Contains(out, "waiting for first refresh") {
		t.Fatalf("expected waiting header, got:\n%s", out)
	}
	if !strings.Contains(out, "GPU: N/A") {
		t.Fatalf("expected N/A values before first refresh, got:\n%s", out)
	}
}

func TestModelRendersPublishedSnapshot(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	model := NewModel(source)
	defer model.Close()

	cmd := model.Init()
	source.publish(testSnapshot(3))

	msg := cmd()
	if _, ok := msg.(snapshotMsg); !ok {
		t.Fatalf("expected snapshotMsg, got %T", msg)
	}
	updated, next := model.Update(msg)
	if next == nil {
		t.Fatalf("model must keep listening after a snapshot")
	}

	out := updated.View()
	for _, want := range []string{
		"NVIDIA GeForce RTX 3090",
		"GPU: 37 %",
		"Memory: 2.00/24.00GiB",
		"Temp: 61°C",
		"CPU: 12.5 %",
		"RAM: 11.72/15.63GiB",
		"#3",
		"ok",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
}

func TestModelRefreshKey(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	model := NewModel(source)

	updated, _ := model.Update(runes('r'))
	if source.triggers != 1 {
		t.Fatalf("expected one trigger, got %d", source.triggers)
	}
	if !strings.Contains(updated.View(), "refresh requested") {
		t.Fatalf("expected refresh notice")
	}

	source.stopped = true
	updated, _ = updated.Update(runes('r'))
	if !strings.Contains(updated.View(), "refresh unavailable") {
		t.Fatalf("expected unavailable notice")
	}
}

func TestModelQuitKey(t *testing.T) {
	t.Parallel()

	model := NewModel(newFakeSource())
	_, cmd := model.Update(runes('q'))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command for ctrl+c")
	}
}

func TestModelFoldGroups(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.snapshot, source.ready = testSnapshot(1), true
	model := NewModel(source)

	if got := len(model.rows()); got != 7 {
		t.Fatalf("expected 7 rows expanded, got %d", got)
	}

	// Cursor on the GPU utilization leaf folds its parent.
	updated, _ := model.Update(runes('j'))
	updated, _ = updated.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m := updated.(Model)
	if !m.collapsed[view.KindDevice] {
		t.Fatalf("device group should be collapsed")
	}
	if m.cursor != 0 {
		t.Fatalf("cursor should move to the folded group, got %d", m.cursor)
	}
	if got := len(m.rows()); got != 4 {
		t.Fatalf("expected 4 rows with device folded, got %d", got)
	}
	if strings.Contains(m.View(), "GPU: 37 %") {
		t.Fatalf("folded children must not render")
	}

	// Fold state survives a refresh that renames the device.
	renamed := testSnapshot(2)
	renamed.GPU.DeviceName = metric.Measured("NVIDIA RTX A6000")
	updated, _ = m.Update(snapshotMsg{snapshot: renamed, ready: true})
	m = updated.(Model)
	if got := len(m.rows()); got != 4 {
		t.Fatalf("fold state lost after refresh, %d rows", got)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if got := len(updated.(Model).rows()); got != 7 {
		t.Fatalf("expected expand to restore rows, got %d", got)
	}
}

func TestModelSourceClosed(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	model := NewModel(source)
	close(source.updates)

	msg := model.Init()()
	updated, cmd := model.Update(msg)
	if cmd != nil {
		t.Fatalf("closed source must stop listening")
	}
	if !strings.Contains(updated.View(), "sampler stopped") {
		t.Fatalf("expected stopped notice")
	}
}
