// Package dimension turns raw answers into per-label tallies using a
// versioned lookup table per test type. Extraction always runs before
// scoring.
package dimension

import (
	"sort"

	"github.com/abhisek/psytest/internal/answer"
)

// Tally is the accumulated signal per label.
type Tally struct {
	TestType string             `json:"testType"`
	Version  string             `json:"version"`
	Values   map[string]float64 `json:"values"`
	Counts   map[string]int     `json:"counts"`

	// Unmapped lists question ids that fell back to the default label,
	// sorted. Non-empty means the lookup table has a coverage gap.
	Unmapped []string `json:"unmapped,omitempty"`
}

// Value returns the accumulated value for label (0 if absent).
func (t Tally) Value(label string) float64 { return t.Values[label] }

// Mean returns the per-answer mean for label (0 if no answers).
func (t Tally) Mean(label string) float64 {
	if t.Counts[label] == 0 {
		return 0
	}
	return t.Values[label] / float64(t.Counts[label])
}

// Labels returns the tally's labels in sorted order.
func (t Tally) Labels() []string {
	out := make([]string, 0, len(t.Values))
	for l := range t.Values {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Total sums all label values in label order.
func (t Tally) Total() float64 {
	var sum float64
	for _, l := range t.Labels() {
		sum += t.Values[l]
	}
	return sum
}

// Extract computes the tally for answers under table. It is pure: the
// result depends only on the table and the set of answers, never on
// their order. Duplicate question ids keep the last occurrence.
func Extract(table *Table, answers []answer.TestAnswer) Tally {
	latest := answer.ByQuestion(answers)
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tally := Tally{
		TestType: table.TestType,
		Version:  table.Version,
		Values:   make(map[string]float64),
		Counts:   make(map[string]int),
	}

	add := func(label string, v float64) {
		tally.Values[label] += v
		tally.Counts[label]++
	}

	for _, id := range ids {
		a := latest[id]
		r := table.resolve(id)
		if r.fallback {
			tally.Unmapped = append(tally.Unmapped, id)
		}

		v := a.Value
		switch v.Kind() {
		case answer.KindNumber:
			n := v.Num()
			if r.entry != nil && r.entry.ReverseBase != 0 {
				n = r.entry.ReverseBase - n
			}
			add(r.label, n*r.weight)

		case answer.KindString:
			if r.entry != nil && r.entry.FreeText {
				continue
			}
			label, ok := optionLabel(r, v.Str())
			if !ok {
				label = r.label
			}
			add(label, r.weight)

		case answer.KindList:
			for _, item := range v.Items() {
				label, ok := optionLabel(r, item)
				if !ok {
					label = r.label
				}
				add(label, r.weight)
			}

		case answer.KindBool:
			if v.BoolValue() {
				add(r.label, r.weight)
			} else {
				add(r.label, 0)
			}
		}
	}
	return tally
}

// optionLabel resolves a choice value through the entry's option map.
func optionLabel(r resolved, value string) (string, bool) {
	if r.entry == nil || len(r.entry.Options) == 0 {
		return "", false
	}
	if label, ok := r.entry.Options[value]; ok {
		return label, true
	}
	if r.entry.Label != "" {
		return r.entry.Label, true
	}
	return "", false
}
