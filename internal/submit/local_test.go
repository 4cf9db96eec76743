package submit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/testtype"
)

func TestLocal_EndTestStoresResult(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.svc.log = slog.New(slog.NewTextHandler(&logs, nil))
	ctx := context.Background()
	reg, cat, err := testtype.Builtin()
	require.NoError(t, err)

	m := session.NewMachine(session.Options{
		Descriptors: reg,
		Submitter:   Local{Service: f.svc},
		Clock:       f.clock,
	})
	qs, err := cat.Questions("gad7", catalog.DefaultLanguage)
	require.NoError(t, err)
	sess, err := m.StartTest("gad7", qs)
	require.NoError(t, err)
	for _, q := range qs {
		require.NoError(t, m.SubmitAnswer(q.ID, answer.Number(2)))
	}

	res, err := m.EndTest(ctx)
	require.NoError(t, err)
	assert.False(t, res.Placeholder)
	assert.Equal(t, 14.0, res.TotalScore)

	stored, err := f.store.Sessions().Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.Equal(t, "moderate", stored.Result.Severity)
	assert.Empty(t, stored.IPHash)
	assert.NotContains(t, logs.String(), "client tally differs")
}

func TestLocal_TallyDriftIsLogged(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.svc.log = slog.New(slog.NewTextHandler(&logs, nil))

	answers := make([]answer.TestAnswer, 0, 7)
	for i := 1; i <= 7; i++ {
		answers = append(answers, answer.TestAnswer{QuestionID: fmt.Sprintf("gad7_%d", i), Value: answer.Number(1)})
	}
	stale := dimension.Tally{
		TestType: "gad7",
		Version:  "v0.0.1",
		Values:   map[string]float64{"anxiety": 7},
		Counts:   map[string]int{"anxiety": 7},
	}

	res, err := Local{Service: f.svc}.Submit(context.Background(), session.Submission{
		SessionID: "00000000-0000-4000-8000-000000000777",
		TestType:  "gad7",
		Answers:   answers,
		Tally:     stale,
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.TotalScore)
	assert.Contains(t, logs.String(), "client tally differs")
	assert.Contains(t, logs.String(), "client_table=v0.0.1")
}
