package catalog

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestBuiltin_LoadsAllTestTypes(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}

	want := map[string]int{
		"bigfive": 10,
		"gad7":    7,
		"holland": 14,
		"mbti":    8,
		"phq9":    9,
	}
	infos := c.TestTypes()
	if len(infos) != len(want) {
		t.Fatalf("got %d test types, want %d", len(infos), len(want))
	}
	for _, info := range infos {
		n, ok := want[info.TestType]
		if !ok {
			t.Errorf("unexpected test type %q", info.TestType)
			continue
		}
		if info.QuestionCount != n {
			t.Errorf("%s: %d questions, want %d", info.TestType, info.QuestionCount, n)
		}
		if info.Title == "" {
			t.Errorf("%s: empty title", info.TestType)
		}
	}
}

func TestQuestions_StableOrder(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	a, _ := c.Questions("phq9", "en")
	b, _ := c.Questions("phq9", "en")
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("order differs at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
	if a[0].ID != "phq9_1" || a[8].ID != "phq9_9" {
		t.Errorf("unexpected order: first=%s last=%s", a[0].ID, a[8].ID)
	}
	if a[0].Format != FormatScale || a[0].Min != 0 || a[0].Max != 3 {
		t.Errorf("phq9_1 = %+v, want scale 0..3", a[0])
	}
}

func TestQuestions_LanguageFallback(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	qs, err := c.Questions("gad7", "xx")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if qs[0].Text == "" {
		t.Error("expected fallback to default language text")
	}
}

func TestQuestions_UnknownTestType(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	_, err = c.Questions("astrology", "en")
	if !errors.Is(err, ErrUnknownTestType) {
		t.Errorf("err = %v, want ErrUnknownTestType", err)
	}
}

func TestLoad_RejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no questions",
			yaml:    "testType: x\nquestions: []\n",
			wantErr: "no questions",
		},
		{
			name: "duplicate ids",
			yaml: `testType: x
questions:
  - {id: q1, text: {en: a}, format: text}
  - {id: q1, text: {en: b}, format: text}
`,
			wantErr: "duplicate question id",
		},
		{
			name: "scale without range",
			yaml: `testType: x
questions:
  - {id: q1, text: {en: a}, format: scale}
`,
			wantErr: "scale needs min < max",
		},
		{
			name: "single option",
			yaml: `testType: x
questions:
  - id: q1
    text: {en: a}
    format: single_choice
    options: [{value: a, label: A}]
`,
			wantErr: "at least 2 options",
		},
		{
			name: "unknown format",
			yaml: `testType: x
questions:
  - {id: q1, text: {en: a}, format: slider}
`,
			wantErr: "unknown format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{"x.yaml": {Data: []byte(tt.yaml)}}
			_, err := Load(fsys)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSelectionBounds_Defaults(t *testing.T) {
	q := Question{Format: FormatMultipleChoice, Options: []Option{{Value: "a"}, {Value: "b"}, {Value: "c"}}}
	lo, hi := q.SelectionBounds()
	if lo != 1 || hi != 3 {
		t.Errorf("bounds = [%d,%d], want [1,3]", lo, hi)
	}
}
