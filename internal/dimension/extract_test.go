package dimension

import (
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
)

func builtin(t *testing.T) *Registry {
	t.Helper()
	r, err := BuiltinTables()
	require.NoError(t, err)
	return r
}

func table(t *testing.T, testType string) *Table {
	t.Helper()
	tb, ok := builtin(t).Table(testType)
	require.True(t, ok, "missing table for %s", testType)
	return tb
}

func num(id string, v float64) answer.TestAnswer {
	return answer.TestAnswer{QuestionID: id, Value: answer.Number(v)}
}

func TestBuiltinTables_CoverBuiltinCatalog(t *testing.T) {
	c, err := catalog.Builtin()
	require.NoError(t, err)
	assert.NoError(t, builtin(t).Verify(c))
}

func TestRegistry_HighestVersionWins(t *testing.T) {
	tb := table(t, "holland")
	assert.Equal(t, "v1.1.0", tb.Version)
}

func TestExtract_PHQ9SumsIntoOneLabel(t *testing.T) {
	tb := table(t, "phq9")
	answers := []answer.TestAnswer{num("phq9_1", 3), num("phq9_2", 2), num("phq9_9", 1)}

	tally := Extract(tb, answers)
	assert.Equal(t, 6.0, tally.Value("depression"))
	assert.Equal(t, 3, tally.Counts["depression"])
	assert.Empty(t, tally.Unmapped)
	assert.Equal(t, "v1.0.0", tally.Version)
}

func TestExtract_PrefixAndOptions(t *testing.T) {
	tb := table(t, "holland")
	answers := []answer.TestAnswer{
		num("R1", 4),
		num("R2", 2),
		num("I1", 5),
		{QuestionID: "holland_pick", Value: answer.List("paint", "museum")},
		{QuestionID: "holland_dream_job", Value: answer.String("marine biologist")},
	}

	tally := Extract(tb, answers)
	assert.Equal(t, 6.0, tally.Value("realistic"))
	assert.Equal(t, 6.0, tally.Value("investigative"))
	assert.Equal(t, 1.0, tally.Value("artistic"))
	_, hasNotes := tally.Values["notes"]
	assert.False(t, hasNotes, "free text must not contribute")
}

func TestExtract_SingleChoiceOptionsRouteToPoles(t *testing.T) {
	tb := table(t, "mbti")
	answers := []answer.TestAnswer{
		{QuestionID: "mbti_ei_1", Value: answer.String("a")},
		{QuestionID: "mbti_ei_2", Value: answer.String("b")},
		{QuestionID: "mbti_sn_1", Value: answer.String("b")},
	}
	tally := Extract(tb, answers)
	assert.Equal(t, 1.0, tally.Value("E"))
	assert.Equal(t, 1.0, tally.Value("I"))
	assert.Equal(t, 1.0, tally.Value("N"))
	assert.Equal(t, 0.0, tally.Value("S"))
}

func TestExtract_ReverseKeyed(t *testing.T) {
	tb := table(t, "bigfive")
	// bf_e1 is reverse keyed: 1 -> 5. bf_e2 is not.
	tally := Extract(tb, []answer.TestAnswer{num("bf_e1", 1), num("bf_e2", 4)})
	assert.Equal(t, 9.0, tally.Value("extraversion"))
	assert.Equal(t, 4.5, tally.Mean("extraversion"))
}

func TestExtract_UnknownQuestionFallsBack(t *testing.T) {
	tb := table(t, "phq9")
	tally := Extract(tb, []answer.TestAnswer{num("phq9_1", 1), num("bogus", 2)})

	assert.Equal(t, 2.0, tally.Value(FallbackLabel))
	assert.Equal(t, []string{"bogus"}, tally.Unmapped)
}

func TestExtract_Deterministic(t *testing.T) {
	tb := table(t, "bigfive")
	var answers []answer.TestAnswer
	for i, id := range []string{"bf_e1", "bf_a1", "bf_c1", "bf_n1", "bf_o1", "bf_e2", "bf_a2", "bf_c2", "bf_n2", "bf_o2"} {
		answers = append(answers, num(id, float64(i%5+1)))
	}

	first := Extract(tb, answers)
	second := Extract(tb, answers)
	assert.True(t, reflect.DeepEqual(first, second), "repeat call differs")

	rng := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		shuffled := append([]answer.TestAnswer(nil), answers...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Extract(tb, shuffled)
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("order-sensitive tally:\nfirst=%+v\ngot=%+v", first, got)
		}
	}
}

func TestExtract_FractionalValuesBitIdenticalAcrossOrders(t *testing.T) {
	tb := &Table{TestType: "x", Version: "v1.0.0", Prefixes: []PrefixRule{{Prefix: "q", Label: "all"}}}
	tb.index()

	answers := []answer.TestAnswer{num("q1", 0.1), num("q2", 0.2), num("q3", 0.3)}
	reversed := []answer.TestAnswer{answers[2], answers[1], answers[0]}

	a := Extract(tb, answers)
	b := Extract(tb, reversed)
	if a.Values["all"] != b.Values["all"] {
		t.Errorf("float sum depends on order: %v vs %v", a.Values["all"], b.Values["all"])
	}
}

func TestExtract_DuplicateIDsKeepLast(t *testing.T) {
	tb := table(t, "phq9")
	tally := Extract(tb, []answer.TestAnswer{num("phq9_1", 3), num("phq9_1", 1)})
	assert.Equal(t, 1.0, tally.Value("depression"))
	assert.Equal(t, 1, tally.Counts["depression"])
}

func TestLoadTables_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad version", "testType: x\nversion: \"1.0\"\nprefixes: [{prefix: q, label: a}]\n", "not a valid semantic version"},
		{"empty", "testType: x\nversion: v1.0.0\n", "no entries or prefixes"},
		{"entry without label", "testType: x\nversion: v1.0.0\nentries: [{question: q1}]\n", "neither label nor options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTables(fstest.MapFS{"x.yaml": {Data: []byte(tt.yaml)}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckCoverage_ReportsGaps(t *testing.T) {
	tb := &Table{
		TestType: "x",
		Version:  "v1.0.0",
		Entries:  []Entry{{Question: "q1", Label: "a"}, {Question: "stale", Label: "a"}},
	}
	tb.index()
	qs := []catalog.Question{
		{ID: "q1", Format: catalog.FormatScale},
		{ID: "q2", Format: catalog.FormatScale},
		{ID: "free", Format: catalog.FormatText},
	}

	err := CheckCoverage(tb, qs)
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, `"q2" has no lookup entry`), msg)
	assert.True(t, strings.Contains(msg, `"stale" does not match`), msg)
	assert.False(t, strings.Contains(msg, "free"), msg)
}
