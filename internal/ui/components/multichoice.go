package components

import (
	"fmt"
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/psytest/internal/ui/theme"
)

// MultiChoice is an option selector. In single mode enter or a number
// key picks one option. In multi mode space or a number key toggles the
// highlighted option and enter confirms the checked set.
type MultiChoice struct {
	Options   []string
	Multi     bool
	Selected  int
	Checked   []bool
	Submitted bool
}

// NewMultiChoice creates a selector over the option labels.
func NewMultiChoice(options []string, multi bool) MultiChoice {
	return MultiChoice{
		Options: options,
		Multi:   multi,
		Checked: make([]bool, len(options)),
	}
}

// Update handles keyboard navigation and selection.
func (m MultiChoice) Update(msg tea.Msg) (MultiChoice, tea.Cmd) {
	if m.Submitted {
		return m, nil
	}

	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key := kmsg.String(); key {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
	case "down", "j":
		if m.Selected < len(m.Options)-1 {
			m.Selected++
		}
	case "space", " ":
		if m.Multi {
			m.Checked[m.Selected] = !m.Checked[m.Selected]
		}
	case "enter":
		m.Submitted = true
	default:
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > len(m.Options) {
			return m, nil
		}
		m.Selected = n - 1
		if m.Multi {
			m.Checked[m.Selected] = !m.Checked[m.Selected]
		} else {
			m.Submitted = true
		}
	}

	return m, nil
}

// Chosen returns the picked option indexes in option order.
func (m MultiChoice) Chosen() []int {
	if !m.Multi {
		return []int{m.Selected}
	}
	var out []int
	for i, c := range m.Checked {
		if c {
			out = append(out, i)
		}
	}
	return out
}

// View renders the option list.
func (m MultiChoice) View() string {
	var b strings.Builder
	for i, opt := range m.Options {
		prefix := "  "
		if i == m.Selected {
			prefix = "▸ "
		}
		box := ""
		if m.Multi {
			box = "[ ] "
			if m.Checked[i] {
				box = "[x] "
			}
		}
		line := fmt.Sprintf("%s%d) %s%s", prefix, i+1, box, opt)

		switch {
		case i == m.Selected:
			b.WriteString(theme.Selected.Render(line))
		case m.Multi && m.Checked[i]:
			b.WriteString(theme.Checked.Render(line))
		default:
			b.WriteString(theme.Unselected.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}
