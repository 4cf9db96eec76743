// Package answer holds the answer value model and the per-format
// answer validator.
package answer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Kind is the dynamic type carried by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindNumber
	KindList
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "string list"
	case KindBool:
		return "boolean"
	}
	return "none"
}

// Value is an answer payload: a string, number, string list or boolean.
// It marshals to and from the corresponding plain JSON value.
type Value struct {
	kind Kind
	str  string
	num  float64
	list []string
	b    bool
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func List(items ...string) Value { return Value{kind: KindList, list: append([]string{}, items...)} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) Str() string { return v.str }
func (v Value) Num() float64 { return v.num }
func (v Value) Items() []string { return slices.Clone(v.list) }
func (v Value) BoolValue() bool { return v.b }
func (v Value) IsZero() bool { return v.kind == KindNone }

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindList:
		return slices.Equal(v.list, o.list)
	case KindBool:
		return v.b == o.b
	}
	return true
}

// Scalar renders string, number and boolean values as the option-value
// string they would match. Lists return "".
func (v Value) Scalar() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

func (v Value) String() string {
	if v.kind == KindList {
		return fmt.Sprintf("%q", v.list)
	}
	return v.Scalar()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("answer list must contain only strings: %w", err)
		}
		*v = List(items...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported answer value %s", data)
		}
		*v = Number(n)
	}
	return nil
}

// TestAnswer is one recorded answer. A session holds at most one per QuestionID.
type TestAnswer struct {
	QuestionID  string    `json:"questionId"`
	Value       Value     `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
	TimeSpentMs int64     `json:"timeSpentMs,omitempty"`
}

// Upsert replaces any answer for a.QuestionID with a by filtering it out
// and appending. The input slice is not modified.
func Upsert(answers []TestAnswer, a TestAnswer) []TestAnswer {
	out := make([]TestAnswer, 0, len(answers)+1)
	for _, prev := range answers {
		if prev.QuestionID != a.QuestionID {
			out = append(out, prev)
		}
	}
	return append(out, a)
}

// ByQuestion indexes answers by question id; later entries win.
func ByQuestion(answers []TestAnswer) map[string]TestAnswer {
	m := make(map[string]TestAnswer, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = a
	}
	return m
}
