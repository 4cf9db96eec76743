package take

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/ui/components"
	"github.com/abhisek/psytest/internal/ui/theme"
)

type keyHint struct {
	Key         string
	Description string
}

func (t *Model) render(width, height int) string {
	if t.confirmQuit {
		return t.renderQuitConfirm(width, height)
	}
	return t.renderQuestionView(width) + "\n\n" + t.renderFooter(width)
}

// renderQuestionView renders the active question display.
func (t *Model) renderQuestionView(width int) string {
	ts := t.typeState()
	if len(ts.Questions) == 0 {
		return lipgloss.NewStyle().
			Width(width).
			Align(lipgloss.Center).
			Foreground(theme.TextDim).
			Render("\n\n  No test in progress.")
	}

	var b strings.Builder

	// Test info line.
	infoLeft := lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Bold(true).
		Render("  " + ts.Session.TestType)
	infoRight := lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Render(fmt.Sprintf("answered %d/%d", len(ts.Answers), len(ts.Questions)))

	infoLine := infoLeft
	if pad := width - lipgloss.Width(infoLeft) - lipgloss.Width(infoRight) - 4; pad > 0 {
		infoLine += strings.Repeat(" ", pad) + infoRight
	}
	b.WriteString(infoLine)
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", max(width-4, 0))))
	b.WriteString("\n\n")

	bar := components.NewProgressBar(
		fmt.Sprintf("Question %d/%d", ts.CurrentQuestionIndex+1, len(ts.Questions)),
		ts.Progress, min(width-8, 60))
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, bar.View()))
	b.WriteString("\n\n")

	b.WriteString(theme.Title.Width(width).Render(t.question.Text))
	b.WriteString("\n\n")

	// Input area.
	if t.mcActive {
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, t.choice.View()))
	} else {
		b.WriteString(lipgloss.NewStyle().
			Width(width).
			Align(lipgloss.Center).
			Render("Answer: " + t.input.View()))
	}
	b.WriteString("\n")
	b.WriteString(theme.Hint.Width(width).Align(lipgloss.Center).Render(formatHint(t.question)))

	if t.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).
			Foreground(theme.Error).Bold(true).Render(t.errMsg))
	}
	if t.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).
			Foreground(theme.Accent).Render(t.notice))
	}

	return b.String()
}

func formatHint(q catalog.Question) string {
	switch q.Format {
	case catalog.FormatSingleChoice:
		return fmt.Sprintf("Select (1-%d) or use arrows + Enter", len(q.Options))
	case catalog.FormatMultipleChoice:
		lo, hi := q.SelectionBounds()
		return fmt.Sprintf("Choose %d to %d with Space or number keys, then Enter", lo, hi)
	case catalog.FormatScale:
		return fmt.Sprintf("Enter a number from %g to %g", q.Min, q.Max)
	case catalog.FormatLikert:
		return fmt.Sprintf("1 = strongly disagree, %d = strongly agree", q.Points)
	}
	return fmt.Sprintf("Free text, up to %d characters", q.TextLimit())
}

func (t *Model) keyHints() []keyHint {
	return []keyHint{
		{"Enter", "answer"},
		{"Tab", "next"},
		{"Shift+Tab", "back"},
		{"Ctrl+S", "submit"},
		{"Esc", "quit"},
	}
}

func (t *Model) renderFooter(width int) string {
	parts := make([]string, 0, 5)
	for _, h := range t.keyHints() {
		parts = append(parts,
			lipgloss.NewStyle().Foreground(theme.Text).Bold(true).Render(h.Key)+" "+
				lipgloss.NewStyle().Foreground(theme.TextDim).Render(h.Description))
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, strings.Join(parts, "   "))
}

// renderQuitConfirm renders the leave-early dialog.
func (t *Model) renderQuitConfirm(width, height int) string {
	ts := t.typeState()
	body := lipgloss.NewStyle().Foreground(theme.Accent).Bold(true).Render("End session early?") +
		"\n\n" +
		lipgloss.NewStyle().Foreground(theme.Text).Render(
			fmt.Sprintf("%d of %d answered. Your progress is saved.", len(ts.Answers), len(ts.Questions))) +
		"\n\n" +
		lipgloss.NewStyle().Foreground(theme.TextDim).Render("y  quit    n  keep going")

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, theme.Card.Render(body))
}
