package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/skobkin/nvmon-web/internal/metric"
)

// Theme holds the viewer's colors. Colors are ANSI 256 codes.
type Theme struct {
	Header     lipgloss.Color
	Faint      lipgloss.Color
	Selected   lipgloss.Color
	Group      lipgloss.Color
	OK         lipgloss.Color
	Degraded   lipgloss.Color
	Failed     lipgloss.Color
	Unmeasured lipgloss.Color
}

// DefaultTheme targets dark terminals.
var DefaultTheme = Theme{
	Header:     lipgloss.Color("75"),
	Faint:      lipgloss.Color("243"),
	Selected:   lipgloss.Color("237"),
	Group:      lipgloss.Color("252"),
	OK:         lipgloss.Color("114"),
	Degraded:   lipgloss.Color("214"),
	Failed:     lipgloss.Color("203"),
	Unmeasured: lipgloss.Color("245"),
}

type styles struct {
	header   lipgloss.Style
	faint    lipgloss.Style
	selected lipgloss.Style
	group    lipgloss.Style
	values   map[metric.State]lipgloss.Style
	statuses map[metric.Status]lipgloss.Style
}

func newStyles(theme Theme) styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(theme.Header),
		faint:    lipgloss.NewStyle().Foreground(theme.Faint),
		selected: lipgloss.NewStyle().Background(theme.Selected),
		group:    lipgloss.NewStyle().Bold(true).Foreground(theme.Group),
		values: map[metric.State]lipgloss.Style{
			metric.StateOK:         lipgloss.NewStyle().Foreground(theme.OK),
			metric.StateFailed:     lipgloss.NewStyle().Foreground(theme.Failed),
			metric.StateUnmeasured: lipgloss.NewStyle().Foreground(theme.Unmeasured),
		},
		statuses: map[metric.Status]lipgloss.Style{
			metric.StatusPending:      lipgloss.NewStyle().Foreground(theme.Unmeasured),
			metric.StatusOK:           lipgloss.NewStyle().Foreground(theme.OK),
			metric.StatusPartialError: lipgloss.NewStyle().Foreground(theme.Degraded),
			metric.StatusError:        lipgloss.NewStyle().Foreground(theme.Failed),
		},
	}
}

func (s styles) value(state metric.State) lipgloss.Style {
	if style, ok := s.values[state]; ok {
		return style
	}
	return s.faint
}

func (s styles) status(status metric.Status) lipgloss.Style {
	if style, ok := s.statuses[status]; ok {
		return style
	}
	return s.faint
}
