package answer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/psytest/internal/catalog"
)

// FormatError describes why a value does not satisfy a question's
// format contract.
type FormatError struct {
	QuestionID string
	Format     catalog.Format
	Message    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("answer to %q (%s): %s", e.QuestionID, e.Format, e.Message)
}

// Validate checks v against the format contract of q. It is pure and
// safe for concurrent use.
func Validate(q *catalog.Question, v Value) error {
	fail := func(format string, args ...any) error {
		return &FormatError{QuestionID: q.ID, Format: q.Format, Message: fmt.Sprintf(format, args...)}
	}

	if v.IsZero() {
		return fail("missing value")
	}

	switch q.Format {
	case catalog.FormatSingleChoice:
		if v.Kind() == KindList {
			return fail("expected a single option, got %s", v.Kind())
		}
		if !q.HasOption(v.Scalar()) {
			return fail("%q is not one of the options", v.Scalar())
		}

	case catalog.FormatMultipleChoice:
		var items []string
		switch v.Kind() {
		case KindList:
			items = v.Items()
		case KindString:
			items = []string{v.Str()}
		default:
			return fail("expected a list of options, got %s", v.Kind())
		}
		lo, hi := q.SelectionBounds()
		if len(items) < lo || len(items) > hi {
			return fail("select between %d and %d options, got %d", lo, hi, len(items))
		}
		seen := make(map[string]bool, len(items))
		for _, it := range items {
			if !q.HasOption(it) {
				return fail("%q is not one of the options", it)
			}
			if seen[it] {
				return fail("option %q selected twice", it)
			}
			seen[it] = true
		}

	case catalog.FormatScale:
		n, ok := numeric(v)
		if !ok {
			return fail("expected a number, got %s", v.Kind())
		}
		if n < q.Min || n > q.Max {
			return fail("%v is outside [%v, %v]", n, q.Min, q.Max)
		}
		if q.Step > 0 && !onStep(n-q.Min, q.Step) {
			return fail("%v is not a multiple of step %v from %v", n, q.Step, q.Min)
		}

	case catalog.FormatLikert:
		n, ok := numeric(v)
		if !ok {
			return fail("expected a number, got %s", v.Kind())
		}
		if n != math.Trunc(n) || n < 1 || n > float64(q.Points) {
			return fail("%v is not a whole number in [1, %d]", n, q.Points)
		}

	case catalog.FormatText:
		if v.Kind() != KindString {
			return fail("expected text, got %s", v.Kind())
		}
		s := strings.TrimSpace(v.Str())
		if s == "" {
			return fail("text is empty")
		}
		if n := utf8.RuneCountInString(s); n > q.TextLimit() {
			return fail("text is %d characters, limit is %d", n, q.TextLimit())
		}

	default:
		return fail("unsupported question format")
	}
	return nil
}

// numeric accepts numbers and numeric strings, as submitted by form inputs.
func numeric(v Value) (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		return v.Num(), !math.IsNaN(v.Num()) && !math.IsInf(v.Num(), 0)
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return 0, false
		}
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	}
	return 0, false
}

func onStep(offset, step float64) bool {
	r := math.Mod(offset, step)
	const eps = 1e-9
	return r < eps || step-r < eps
}

// Normalize converts numeric strings to numbers for scale and likert
// questions so downstream tallies see a single representation. Call it
// only after Validate succeeded.
func Normalize(q *catalog.Question, v Value) Value {
	if v.Kind() != KindString {
		return v
	}
	switch q.Format {
	case catalog.FormatScale, catalog.FormatLikert:
		if n, ok := numeric(v); ok {
			return Number(n)
		}
	}
	return v
}
