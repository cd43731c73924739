// Package tui implements the terminal tree viewer for live snapshots.
//
// The model reads snapshots from a Source, re-renders on every change
// notification and forwards manual refresh requests back to the source.
// Group nodes (the GPU device and the host) can be folded; fold state is
// keyed by node kind so it survives refreshes that rename the device.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/view"
)

// Source is the published view the model renders. *sampler.Manager
// implements it.
type Source interface {
	Latest() (metric.Snapshot, bool)
	Subscribe() (<-chan struct{}, func())
	TriggerNow() bool
}

// snapshotMsg carries a freshly published snapshot.
type snapshotMsg struct {
	snapshot metric.Snapshot
	ready    bool
}

// sourceClosedMsg is delivered when the source stops publishing.
type sourceClosedMsg struct{}

type row struct {
	node  view.Node
	depth int
}

// Model is the bubbletea model of the tree viewer.
type Model struct {
	source      Source
	updates     <-chan struct{}
	unsubscribe func()

	keys   KeyMap
	help   help.Model
	styles styles

	snapshot  metric.Snapshot
	ready     bool
	closed    bool
	collapsed map[view.Kind]bool
	cursor    int
	notice    string
	width     int
}

// NewModel subscribes to source and returns a model showing its latest
// snapshot. Call Close when the program exits.
func NewModel(source Source) Model {
	updates, unsubscribe := source.Subscribe()
	snap, ready := source.Latest()
	return Model{
		source:      source,
		updates:     updates,
		unsubscribe: unsubscribe,
		keys:        DefaultKeyMap,
		help:        help.New(),
		styles:      newStyles(DefaultTheme),
		snapshot:    snap,
		ready:       ready,
		collapsed:   make(map[view.Kind]bool),
	}
}

// Close releases the source subscription.
func (model Model) Close() {
	if model.unsubscribe != nil {
		model.unsubscribe()
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return listenForUpdate(model.source, model.updates)
}

// listenForUpdate blocks until the source signals a change, then delivers
// the snapshot current at that moment.
func listenForUpdate(source Source, updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return sourceClosedMsg{}
		}
		snap, ready := source.Latest()
		return snapshotMsg{snapshot: snap, ready: ready}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKeys(message)

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.help.Width = message.Width
		return model, nil

	case snapshotMsg:
		model.snapshot = message.snapshot
		model.ready = message.ready
		model.notice = ""
		model.clampCursor()
		return model, listenForUpdate(model.source, model.updates)

	case sourceClosedMsg:
		model.closed = true
		model.notice = "sampler stopped"
		return model, nil
	}
	return model, nil
}

func (model Model) handleKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Refresh):
		if model.source.TriggerNow() {
			model.notice = "refresh requested"
		} else {
			model.notice = "refresh unavailable"
		}

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.rows())-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.Toggle):
		model.setFold(func(collapsed bool) bool { return !collapsed })

	case key.Matches(message, model.keys.Expand):
		model.setFold(func(bool) bool { return false })

	case key.Matches(message, model.keys.Collapse):
		model.setFold(func(bool) bool { return true })
	}
	return model, nil
}

// setFold applies change to the group under the cursor, or to the parent
// group when the cursor is on a leaf.
func (model *Model) setFold(change func(collapsed bool) bool) {
	rows := model.rows()
	if model.cursor >= len(rows) {
		return
	}
	index := model.cursor
	for index > 0 && !rows[index].node.Kind.Group() {
		index--
	}
	kind := rows[index].node.Kind
	if !kind.Group() {
		return
	}
	model.collapsed[kind] = change(model.collapsed[kind])
	model.cursor = index
}

func (model Model) rows() []row {
	var rows []row
	for _, node := range view.Build(model.snapshot) {
		rows = append(rows, row{node: node})
		if model.collapsed[node.Kind] {
			continue
		}
		for _, child := range node.Children {
			rows = append(rows, row{node: child, depth: 1})
		}
	}
	return rows
}

func (model *Model) clampCursor() {
	if last := len(model.rows()) - 1; model.cursor > last {
		model.cursor = max(last, 0)
	}
}

// View implements tea.Model.
func (model Model) View() string {
	var b strings.Builder
	b.WriteString(model.renderHeader())
	b.WriteString("\n\n")

	for i, r := range model.rows() {
		line := model.renderRow(r)
		if i == model.cursor {
			line = model.styles.selected.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if model.notice != "" {
		b.WriteString(model.styles.faint.Render(model.notice))
		b.WriteByte('\n')
	}
	b.WriteString(model.help.View(model.keys))
	return b.String()
}

func (model Model) renderHeader() string {
	title := model.styles.header.Render("nvmon")
	if !model.ready {
		return title + "  " + model.styles.faint.Render("waiting for first refresh...")
	}
	status := model.styles.status(model.snapshot.Status).Render(model.snapshot.Status.String())
	updated := model.snapshot.Timestamp.Local().Format(time.TimeOnly)
	meta := model.styles.faint.Render(fmt.Sprintf("#%d  %s  %s", model.snapshot.Sequence, model.snapshot.Platform, updated))
	return title + "  " + status + "  " + meta
}

func (model Model) renderRow(r row) string {
	node := r.node
	if node.Kind.Group() {
		marker := "▾"
		if model.collapsed[node.Kind] {
			marker = "▸"
		}
		return marker + " " + model.styles.group.Render(node.Label)
	}
	indent := strings.Repeat("  ", r.depth+1)
	return indent + node.Label + ": " + model.styles.value(node.State).Render(node.Value)
}
