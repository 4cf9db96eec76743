package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/psytest/internal/ui/theme"
)

// ProgressBar displays a horizontal progress bar. Percent is on the
// 0..100 scale that session progress uses.
type ProgressBar struct {
	Label   string
	Percent float64
	Width   int
}

// NewProgressBar creates a new progress bar.
func NewProgressBar(label string, percent float64, width int) ProgressBar {
	return ProgressBar{
		Label:   label,
		Percent: percent,
		Width:   width,
	}
}

// View renders the label, the bar and the rounded percentage.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(p.Label) + "  "
	}

	pct := min(max(p.Percent, 0), 100)
	suffix := fmt.Sprintf("  %d%%", int(pct+0.5))

	barWidth := p.Width - lipgloss.Width(result) - len(suffix)
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * pct / 100)
	result += theme.ProgressFilled.Render(strings.Repeat(" ", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled))

	return result + lipgloss.NewStyle().Foreground(theme.TextDim).Render(suffix)
}
