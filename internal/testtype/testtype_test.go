package testtype

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/scoring"
)

func TestBuiltin_RegistersCatalog(t *testing.T) {
	r, c, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, []string{"bigfive", "gad7", "holland", "mbti", "phq9"}, r.Names())
	assert.Len(t, c.TestTypes(), 5)

	_, err = r.Get("astrology")
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestNewRegistry_MissingStrategy(t *testing.T) {
	c, err := catalog.Builtin()
	require.NoError(t, err)
	tables, err := dimension.BuiltinTables()
	require.NoError(t, err)

	_, err = NewRegistry(c, tables, map[string]scoring.Strategy{"phq9": scoring.PHQ9()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scoring strategy")
}

func TestEvaluate_PHQ9(t *testing.T) {
	r, _, err := Builtin()
	require.NoError(t, err)
	d, err := r.Get("phq9")
	require.NoError(t, err)

	var answers []answer.TestAnswer
	for i, v := range []float64{3, 3, 3, 2, 2, 2, 2, 2, 1} {
		answers = append(answers, answer.TestAnswer{
			QuestionID: "phq9_" + string(rune('1'+i)),
			Value:      answer.Number(v),
		})
	}
	ev, err := d.Evaluate(answers)
	require.NoError(t, err)
	assert.Equal(t, 20.0, ev.Result.TotalScore)
	assert.Equal(t, "severe", ev.Result.Severity)
	assert.Equal(t, 20.0, ev.Tally.Value("depression"))
}
