package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/bgricker/matrixrun/internal/report"
)

// Theme holds every style the pretty renderers use.
type Theme struct {
	Passed   lipgloss.Style
	Failed   lipgloss.Style
	TimedOut lipgloss.Style
	Skipped  lipgloss.Style
	Running  lipgloss.Style

	Header lipgloss.Style
	Dim    lipgloss.Style
	Note   lipgloss.Style
}

// newTheme binds styles to out so colour is only emitted to terminals.
func newTheme(out io.Writer) Theme {
	r := lipgloss.NewRenderer(out)
	return Theme{
		Passed:   r.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Failed:   r.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
		TimedOut: r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Skipped:  r.NewStyle().Foreground(lipgloss.Color("#888888")),
		Running:  r.NewStyle().Foreground(lipgloss.Color("#FFFF00")),

		Header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Dim:    r.NewStyle().Foreground(lipgloss.Color("#888888")),
		Note:   r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}

func (t Theme) status(status string) lipgloss.Style {
	switch status {
	case report.StepPassed, report.InstanceSucceeded:
		return t.Passed
	case report.StepFailed:
		return t.Failed
	case report.StepTimedOut, report.StepCancelled:
		return t.TimedOut
	default:
		return t.Skipped
	}
}

func statusGlyph(status string) string {
	switch status {
	case report.StepPassed, report.InstanceSucceeded:
		return "✓"
	case report.StepFailed:
		return "✗"
	case report.StepTimedOut:
		return "⏱"
	case report.StepCancelled:
		return "⊘"
	case report.StepSkipped:
		return "-"
	default:
		return "?"
	}
}
