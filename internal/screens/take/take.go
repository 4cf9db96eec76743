// Package take is the interactive test-taking screen. Every answer,
// navigation step and submission goes through a session.Machine, so
// progress snapshots and resume work the same as over HTTP.
package take

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/ui/components"
)

// Model drives one test type of a Machine from the keyboard.
type Model struct {
	ctx     context.Context
	machine *session.Machine

	width  int
	height int

	// shown is the question index the components were built for.
	shown    int
	question catalog.Question
	choice   components.MultiChoice
	input    components.TextInput
	mcActive bool

	notice      string
	errMsg      string
	confirmQuit bool
	submitting  bool

	result   result.TestResult
	finished bool
	err      error
}

// New creates the screen for the machine's current test type.
func New(ctx context.Context, m *session.Machine) *Model {
	t := &Model{ctx: ctx, machine: m, shown: -1, width: 80, height: 24}
	t.sync()
	return t
}

// Outcome reports how the screen ended. finished is false when the user
// left early; the session is then paused and can be resumed.
func (t *Model) Outcome() (res result.TestResult, finished bool, err error) {
	return t.result, t.finished, t.err
}

// Init focuses the text input when the first question needs one.
func (t *Model) Init() tea.Cmd {
	if t.mcActive {
		return nil
	}
	return t.input.Init()
}

// Update handles messages.
func (t *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		t.width, t.height = msg.Width, msg.Height
		return t, nil
	case submittedMsg:
		return t.handleSubmitted(msg)
	case tea.KeyMsg:
		return t.handleKey(msg)
	}

	if !t.mcActive {
		var cmd tea.Cmd
		t.input, cmd = t.input.Update(msg)
		return t, cmd
	}
	return t, nil
}

// View renders the screen in the alternate buffer.
func (t *Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	v.SetContent(t.render(t.width, t.height))
	return v
}

func (t *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return t.leave()
	}
	if t.submitting {
		return t, nil
	}

	// Quit confirmation dialog.
	if t.confirmQuit {
		switch key {
		case "y", "Y":
			t.confirmQuit = false
			return t.leave()
		case "n", "N", "esc":
			t.confirmQuit = false
		}
		return t, nil
	}

	switch key {
	case "esc":
		t.confirmQuit = true
		return t, nil
	case "tab", "pgdown":
		t.machine.GoToNextQuestion()
		t.sync()
		return t, nil
	case "shift+tab", "pgup":
		t.machine.GoToPreviousQuestion()
		t.sync()
		return t, nil
	case "ctrl+s":
		return t.submit()
	}

	if t.mcActive {
		var cmd tea.Cmd
		t.choice, cmd = t.choice.Update(msg)
		if t.choice.Submitted {
			t.choice.Submitted = false
			return t.record(t.choiceValue())
		}
		return t, cmd
	}

	if key == "enter" {
		v, err := parseAnswer(t.question, t.input.Value())
		if err != nil {
			t.errMsg = fmt.Sprintf("Invalid answer: %v", err)
			return t, nil
		}
		return t.record(v)
	}

	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return t, cmd
}

// leave pauses the session so it can be resumed later.
func (t *Model) leave() (tea.Model, tea.Cmd) {
	if err := t.machine.Pause(); err != nil && !errors.Is(err, session.ErrNotInProgress) {
		t.err = err
	}
	return t, tea.Quit
}

// record stores v for the current question and moves on.
func (t *Model) record(v answer.Value) (tea.Model, tea.Cmd) {
	if err := t.machine.SubmitAnswer(t.question.ID, v); err != nil {
		t.errMsg = fmt.Sprintf("Invalid answer: %v", err)
		return t, nil
	}
	t.errMsg = ""

	ts := t.typeState()
	if ts.CurrentQuestionIndex < len(ts.Questions)-1 {
		t.machine.GoToNextQuestion()
		t.sync()
		return t, nil
	}
	if missing := len(ts.Questions) - len(ts.Answers); missing > 0 {
		t.notice = fmt.Sprintf("%d question(s) still unanswered. Press shift+tab to go back or ctrl+s to submit.", missing)
	} else {
		t.notice = "All questions answered. Press ctrl+s to see your result."
	}
	return t, nil
}

func (t *Model) submit() (tea.Model, tea.Cmd) {
	t.submitting = true
	t.errMsg = ""
	t.notice = "Submitting..."
	ctx, m := t.ctx, t.machine
	return t, func() tea.Msg {
		res, err := m.EndTest(ctx)
		return submittedMsg{result: res, err: err}
	}
}

// handleSubmitted ends the program once a result exists. A failed remote
// submission still yields a placeholder result and counts as finished.
func (t *Model) handleSubmitted(msg submittedMsg) (tea.Model, tea.Cmd) {
	t.submitting = false
	t.notice = ""
	if msg.err != nil && !msg.result.Placeholder {
		t.errMsg = fmt.Sprintf("Submission failed: %v", msg.err)
		return t, nil
	}
	t.result = msg.result
	t.finished = true
	return t, tea.Quit
}

func (t *Model) typeState() session.TypeState {
	st := t.machine.State()
	ts, _ := st.Type(st.CurrentTestType)
	return ts
}

// sync rebuilds the answer components when the current question changed,
// pre-filled with any earlier answer.
func (t *Model) sync() {
	ts := t.typeState()
	if ts.CurrentQuestionIndex == t.shown {
		return
	}
	q, ok := ts.CurrentQuestion()
	if !ok {
		return
	}
	t.shown = ts.CurrentQuestionIndex
	t.question = q
	t.notice, t.errMsg = "", ""
	prev, answered := answer.ByQuestion(ts.Answers)[q.ID]

	switch q.Format {
	case catalog.FormatSingleChoice, catalog.FormatMultipleChoice:
		labels := make([]string, len(q.Options))
		for i, o := range q.Options {
			labels[i] = o.Label
		}
		t.choice = components.NewMultiChoice(labels, q.Format == catalog.FormatMultipleChoice)
		t.mcActive = true
		if answered {
			t.restoreChoice(prev.Value)
		}
	default:
		limit := 0
		if q.Format == catalog.FormatText {
			limit = q.TextLimit()
		}
		t.input = components.NewTextInput(placeholder(q), q.Format != catalog.FormatText, limit)
		t.mcActive = false
		if answered {
			t.input.Model.SetValue(prev.Value.Scalar())
		}
	}
}

func (t *Model) restoreChoice(v answer.Value) {
	picked := map[string]bool{v.Scalar(): true}
	for _, item := range v.Items() {
		picked[item] = true
	}
	first := -1
	for i, o := range t.question.Options {
		if !picked[o.Value] {
			continue
		}
		if first < 0 {
			first = i
		}
		if t.choice.Multi {
			t.choice.Checked[i] = true
		}
	}
	if first >= 0 {
		t.choice.Selected = first
	}
}

func (t *Model) choiceValue() answer.Value {
	idx := t.choice.Chosen()
	if !t.choice.Multi {
		return answer.String(t.question.Options[idx[0]].Value)
	}
	items := make([]string, 0, len(idx))
	for _, i := range idx {
		items = append(items, t.question.Options[i].Value)
	}
	return answer.List(items...)
}

// parseAnswer turns typed input into a Value for scale, likert and text
// questions. Range checks are left to the machine.
func parseAnswer(q catalog.Question, s string) (answer.Value, error) {
	s = strings.TrimSpace(s)
	switch q.Format {
	case catalog.FormatScale, catalog.FormatLikert:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return answer.Value{}, fmt.Errorf("%q is not a number", s)
		}
		return answer.Number(n), nil
	default:
		if s == "" {
			return answer.Value{}, errors.New("answer is empty")
		}
		return answer.String(s), nil
	}
}

func placeholder(q catalog.Question) string {
	switch q.Format {
	case catalog.FormatScale:
		return fmt.Sprintf("%g to %g", q.Min, q.Max)
	case catalog.FormatLikert:
		return fmt.Sprintf("1 to %d", q.Points)
	}
	return "Type your answer"
}
