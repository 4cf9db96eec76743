package answer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/psytest/internal/catalog"
)

func choiceQuestion(format catalog.Format) *catalog.Question {
	return &catalog.Question{
		ID:     "q",
		Format: format,
		Options: []catalog.Option{
			{Value: "a"}, {Value: "b"}, {Value: "c"}, {Value: "d"},
		},
		MinSelections: 1,
		MaxSelections: 2,
	}
}

func TestValidate(t *testing.T) {
	scale := &catalog.Question{ID: "s", Format: catalog.FormatScale, Min: 0, Max: 3, Step: 1}
	likert := &catalog.Question{ID: "l", Format: catalog.FormatLikert, Points: 5}
	text := &catalog.Question{ID: "t", Format: catalog.FormatText, MaxLength: 5}

	tests := []struct {
		name    string
		q       *catalog.Question
		v       Value
		wantErr string
	}{
		{"single ok", choiceQuestion(catalog.FormatSingleChoice), String("b"), ""},
		{"single not option", choiceQuestion(catalog.FormatSingleChoice), String("z"), "not one of the options"},
		{"single list rejected", choiceQuestion(catalog.FormatSingleChoice), List("a"), "expected a single option"},
		{"multi ok", choiceQuestion(catalog.FormatMultipleChoice), List("a", "c"), ""},
		{"multi too many", choiceQuestion(catalog.FormatMultipleChoice), List("a", "b", "c"), "select between 1 and 2"},
		{"multi empty", choiceQuestion(catalog.FormatMultipleChoice), List(), "select between 1 and 2"},
		{"multi duplicate", choiceQuestion(catalog.FormatMultipleChoice), List("a", "a"), "selected twice"},
		{"multi unknown", choiceQuestion(catalog.FormatMultipleChoice), List("x"), "not one of the options"},
		{"scale ok", scale, Number(2), ""},
		{"scale numeric string", scale, String("3"), ""},
		{"scale below", scale, Number(-1), "outside"},
		{"scale above", scale, Number(4), "outside"},
		{"scale off step", scale, Number(1.5), "not a multiple of step"},
		{"scale not number", scale, Bool(true), "expected a number"},
		{"likert ok", likert, Number(5), ""},
		{"likert zero", likert, Number(0), "whole number in [1, 5]"},
		{"likert fraction", likert, Number(2.5), "whole number"},
		{"text ok", text, String(" hey "), ""},
		{"text blank", text, String("   "), "text is empty"},
		{"text too long", text, String("toolong"), "limit is 5"},
		{"text wrong kind", text, Number(1), "expected text"},
		{"missing", scale, Value{}, "missing value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q, tt.v)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not *FormatError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValue_JSONShapes(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{`"x"`, String("x")},
		{`2.5`, Number(2.5)},
		{`["a","b"]`, List("a", "b")},
		{`true`, Bool(true)},
	}
	for _, tt := range tests {
		var v Value
		if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if !v.Equal(tt.want) {
			t.Errorf("unmarshal %s = %v, want %v", tt.raw, v, tt.want)
		}
		out, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != tt.raw {
			t.Errorf("marshal = %s, want %s", out, tt.raw)
		}
	}
}

func TestValue_RejectsObjects(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Error("expected error for object value")
	}
}

func TestUpsert_LastWriteWins(t *testing.T) {
	var answers []TestAnswer
	answers = Upsert(answers, TestAnswer{QuestionID: "q1", Value: Number(1)})
	answers = Upsert(answers, TestAnswer{QuestionID: "q2", Value: Number(2)})
	answers = Upsert(answers, TestAnswer{QuestionID: "q1", Value: Number(3)})
	answers = Upsert(answers, TestAnswer{QuestionID: "q1", Value: Number(0)})

	if len(answers) != 2 {
		t.Fatalf("len = %d, want 2", len(answers))
	}
	got := ByQuestion(answers)
	if !got["q1"].Value.Equal(Number(0)) {
		t.Errorf("q1 = %v, want 0", got["q1"].Value)
	}
	if !got["q2"].Value.Equal(Number(2)) {
		t.Errorf("q2 = %v, want 2", got["q2"].Value)
	}
}

func TestUpsert_DoesNotMutateInput(t *testing.T) {
	orig := []TestAnswer{{QuestionID: "q1", Value: Number(1)}}
	_ = Upsert(orig, TestAnswer{QuestionID: "q1", Value: Number(2)})
	if !orig[0].Value.Equal(Number(1)) {
		t.Error("input slice was modified")
	}
}
