package take

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/testtype"
)

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, session.Submission) (result.TestResult, error) {
	return result.TestResult{}, errors.New("server unavailable")
}

func keyPress(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func specialKey(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: code}
}

func ctrlKey(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Mod: tea.ModCtrl}
}

func newMachine(t *testing.T, sub session.Submitter) *session.Machine {
	t.Helper()
	reg, _, err := testtype.Builtin()
	require.NoError(t, err)
	return session.NewMachine(session.Options{Descriptors: reg, Submitter: sub, Store: kv.NewMemory(nil)})
}

func newModel(t *testing.T, testType string) (*Model, *session.Machine) {
	t.Helper()
	_, cat, err := testtype.Builtin()
	require.NoError(t, err)
	qs, err := cat.Questions(testType, catalog.DefaultLanguage)
	require.NoError(t, err)

	m := newMachine(t, nil)
	_, err = m.StartTest(testType, qs)
	require.NoError(t, err)
	return New(context.Background(), m), m
}

func choiceModel(t *testing.T) (*Model, *session.Machine) {
	t.Helper()
	qs := []catalog.Question{
		{ID: "mood", Text: "Pick one", Format: catalog.FormatSingleChoice,
			Options: []catalog.Option{{Label: "Low", Value: "low"}, {Label: "Mid", Value: "mid"}, {Label: "High", Value: "high"}}},
		{ID: "traits", Text: "Pick up to two", Format: catalog.FormatMultipleChoice, MaxSelections: 2,
			Options: []catalog.Option{{Label: "Calm", Value: "calm"}, {Label: "Busy", Value: "busy"}, {Label: "Bold", Value: "bold"}}},
	}
	m := newMachine(t, nil)
	_, err := m.StartTest("gad7", qs)
	require.NoError(t, err)
	return New(context.Background(), m), m
}

// answerWith types s into the text input and presses enter.
func answerWith(tm *Model, s string) tea.Cmd {
	tm.input.Model.SetValue(s)
	_, cmd := tm.Update(specialKey(tea.KeyEnter))
	return cmd
}

func TestModel_CompletesGAD7(t *testing.T) {
	tm, m := newModel(t, "gad7")
	assert.False(t, tm.mcActive)

	for range 7 {
		answerWith(tm, "2")
	}
	assert.Contains(t, tm.notice, "All questions answered")
	assert.Equal(t, 6, m.State().CurrentQuestionIndex)

	_, cmd := tm.Update(ctrlKey('s'))
	require.NotNil(t, cmd)
	assert.True(t, tm.submitting)

	_, cmd = tm.Update(cmd())
	require.NotNil(t, cmd)

	res, finished, err := tm.Outcome()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, 14.0, res.TotalScore)
	assert.Equal(t, "moderate", res.Severity)
	assert.Equal(t, session.StatusCompleted, m.State().Session.Status)
}

func TestModel_InvalidAnswerKeepsQuestion(t *testing.T) {
	tm, m := newModel(t, "phq9")

	answerWith(tm, "9")
	assert.Contains(t, tm.errMsg, "Invalid answer")
	answerWith(tm, "abc")
	assert.Contains(t, tm.errMsg, "not a number")
	assert.Equal(t, 0, m.State().CurrentQuestionIndex)

	answerWith(tm, "1")
	assert.Empty(t, tm.errMsg)

	st := m.State()
	require.Len(t, st.Answers, 1)
	assert.Equal(t, answer.Number(1), st.Answers[0].Value)
	assert.Equal(t, 1, st.CurrentQuestionIndex)
}

func TestModel_NavigationRestoresAnswer(t *testing.T) {
	tm, m := newModel(t, "phq9")

	answerWith(tm, "3")
	assert.Empty(t, tm.input.Value())

	tm.Update(tea.KeyPressMsg{Code: tea.KeyTab, Mod: tea.ModShift})
	assert.Equal(t, 0, m.State().CurrentQuestionIndex)
	assert.Equal(t, "3", tm.input.Value())

	tm.Update(specialKey(tea.KeyTab))
	tm.Update(specialKey(tea.KeyTab))
	assert.Equal(t, 2, m.State().CurrentQuestionIndex)
}

func TestModel_NumericInputDropsLetters(t *testing.T) {
	tm, _ := newModel(t, "phq9")

	tm.Update(keyPress('x'))
	assert.Empty(t, tm.input.Value())
}

func TestModel_SingleChoice(t *testing.T) {
	tm, m := choiceModel(t)
	require.True(t, tm.mcActive)

	tm.Update(specialKey(tea.KeyDown))
	tm.Update(specialKey(tea.KeyEnter))

	st := m.State()
	require.Len(t, st.Answers, 1)
	assert.Equal(t, answer.String("mid"), st.Answers[0].Value)
	assert.Equal(t, 1, st.CurrentQuestionIndex)
	assert.True(t, tm.choice.Multi)
}

func TestModel_MultipleChoice(t *testing.T) {
	tm, m := choiceModel(t)
	tm.Update(keyPress('1'))
	require.Equal(t, 1, m.State().CurrentQuestionIndex)

	// Three picks exceed the two allowed.
	tm.Update(keyPress('1'))
	tm.Update(keyPress('2'))
	tm.Update(keyPress('3'))
	tm.Update(specialKey(tea.KeyEnter))
	assert.Contains(t, tm.errMsg, "Invalid answer")
	assert.Len(t, m.State().Answers, 1)

	tm.Update(keyPress('2'))
	tm.Update(specialKey(tea.KeyEnter))
	assert.Empty(t, tm.errMsg)

	byID := answer.ByQuestion(m.State().Answers)
	assert.True(t, answer.List("calm", "bold").Equal(byID["traits"].Value), "got %v", byID["traits"].Value)
	assert.Contains(t, tm.notice, "All questions answered")
}

func TestModel_ChoiceRestoredOnReturn(t *testing.T) {
	tm, _ := choiceModel(t)
	tm.Update(keyPress('3'))

	tm.Update(tea.KeyPressMsg{Code: tea.KeyTab, Mod: tea.ModShift})
	assert.False(t, tm.choice.Multi)
	assert.Equal(t, 2, tm.choice.Selected)
}

func TestModel_QuitConfirm(t *testing.T) {
	tm, m := newModel(t, "phq9")

	tm.Update(specialKey(tea.KeyEscape))
	assert.True(t, tm.confirmQuit)
	assert.Contains(t, tm.render(80, 24), "End session early?")

	tm.Update(keyPress('n'))
	assert.False(t, tm.confirmQuit)
	assert.Equal(t, session.StatusInProgress, m.State().Session.Status)
}

func TestModel_QuitConfirm_Yes(t *testing.T) {
	tm, m := newModel(t, "phq9")
	answerWith(tm, "1")

	tm.Update(specialKey(tea.KeyEscape))
	_, cmd := tm.Update(keyPress('y'))
	assert.NotNil(t, cmd)

	_, finished, err := tm.Outcome()
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, session.StatusPaused, m.State().Session.Status)
}

func TestModel_CtrlCPauses(t *testing.T) {
	tm, m := newModel(t, "gad7")

	_, cmd := tm.Update(ctrlKey('c'))
	assert.NotNil(t, cmd)
	assert.Equal(t, session.StatusPaused, m.State().Session.Status)
}

func TestModel_FailedSubmissionShowsPlaceholder(t *testing.T) {
	_, cat, err := testtype.Builtin()
	require.NoError(t, err)
	qs, err := cat.Questions("gad7", catalog.DefaultLanguage)
	require.NoError(t, err)
	m := newMachine(t, failingSubmitter{})
	_, err = m.StartTest("gad7", qs)
	require.NoError(t, err)
	tm := New(context.Background(), m)

	_, cmd := tm.Update(ctrlKey('s'))
	require.NotNil(t, cmd)
	tm.Update(cmd())

	res, finished, err := tm.Outcome()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.True(t, res.Placeholder)
}

func TestModel_SubmitWithoutSessionReportsError(t *testing.T) {
	tm, m := newModel(t, "gad7")
	m.ResetTest()

	_, cmd := tm.Update(ctrlKey('s'))
	require.NotNil(t, cmd)
	_, cmd = tm.Update(cmd())
	assert.Nil(t, cmd)
	assert.Contains(t, tm.errMsg, "Submission failed")

	_, finished, _ := tm.Outcome()
	assert.False(t, finished)
}

func TestModel_ViewShowsProgress(t *testing.T) {
	tm, _ := newModel(t, "gad7")
	answerWith(tm, "0")

	view := tm.render(100, 30)
	assert.Contains(t, view, "Question 2/7")
	assert.Contains(t, view, "answered 1/7")
	assert.True(t, strings.Contains(view, "Enter a number from 0 to 3"))
}

func TestParseAnswer(t *testing.T) {
	scale := catalog.Question{ID: "s", Format: catalog.FormatScale, Min: 0, Max: 3}
	text := catalog.Question{ID: "t", Format: catalog.FormatText}

	v, err := parseAnswer(scale, " 2 ")
	require.NoError(t, err)
	assert.Equal(t, answer.Number(2), v)

	v, err = parseAnswer(text, "fine, thanks")
	require.NoError(t, err)
	assert.Equal(t, answer.String("fine, thanks"), v)

	_, err = parseAnswer(scale, "lots")
	assert.Error(t, err)
	_, err = parseAnswer(text, "   ")
	assert.Error(t, err)
}
