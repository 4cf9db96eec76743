package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/dimension"
)

var hollandLetters = map[string]string{
	"realistic":     "R",
	"investigative": "I",
	"artistic":      "A",
	"social":        "S",
	"enterprising":  "E",
	"conventional":  "C",
}

var hollandAdvice = map[string]string{
	"realistic":     "Hands-on roles such as engineering technician, electrician or park ranger.",
	"investigative": "Analytical roles such as researcher, data analyst or lab scientist.",
	"artistic":      "Creative roles such as designer, writer or musician.",
	"social":        "People-focused roles such as teacher, nurse or counsellor.",
	"enterprising":  "Leadership roles such as manager, sales lead or founder.",
	"conventional":  "Structured roles such as accountant, auditor or operations analyst.",
}

// Holland ranks RIASEC interests and reports the three-letter code.
func Holland() Strategy {
	return StrategyFunc(func(t dimension.Tally, _ []answer.TestAnswer) (Result, error) {
		type kv struct {
			label string
			v     float64
		}
		var ranked []kv
		for label := range hollandLetters {
			ranked = append(ranked, kv{label, t.Value(label)})
		}
		// Ties break alphabetically so the code is stable.
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].v != ranked[j].v {
				return ranked[i].v > ranked[j].v
			}
			return ranked[i].label < ranked[j].label
		})

		var code strings.Builder
		var recs []string
		scores := make(map[string]float64, len(ranked))
		for i, r := range ranked {
			scores[r.label] = r.v
			if i < 3 {
				code.WriteString(hollandLetters[r.label])
				recs = append(recs, hollandAdvice[r.label])
			}
		}

		return Result{
			TotalScore:      t.Total(),
			Scores:          scores,
			Categories:      copyValues(t.Values),
			Interpretation:  fmt.Sprintf("Your Holland code is %s, led by %s interests.", code.String(), ranked[0].label),
			Recommendations: recs,
			Data:            map[string]any{"code": code.String()},
		}, nil
	})
}

var mbtiPairs = [][2]string{{"E", "I"}, {"S", "N"}, {"T", "F"}, {"J", "P"}}

// MBTI resolves each dichotomy to its stronger pole. Ties go to the
// first pole of the pair.
func MBTI() Strategy {
	return StrategyFunc(func(t dimension.Tally, _ []answer.TestAnswer) (Result, error) {
		var typ strings.Builder
		dims := make(map[string]float64, len(mbtiPairs))
		for _, p := range mbtiPairs {
			a, b := t.Value(p[0]), t.Value(p[1])
			pole := p[0]
			if b > a {
				pole = p[1]
			}
			typ.WriteString(pole)
			// Preference clarity in [-100, 100]; positive leans to the first pole.
			clarity := 0.0
			if a+b > 0 {
				clarity = (a - b) / (a + b) * 100
			}
			dims[p[0]+p[1]] = clarity
		}
		code := typ.String()
		return Result{
			TotalScore:     t.Total(),
			Scores:         copyValues(t.Values),
			Dimensions:     dims,
			Interpretation: fmt.Sprintf("Your type is %s.", code),
			Recommendations: []string{
				"Type preferences describe tendencies, not abilities. Use them to reflect on how you work best.",
			},
			Data: map[string]any{"type": code},
		}, nil
	})
}

var bigFiveTraits = []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}

// BigFive reports each trait's mean on a 0-100 scale (1..5 likert).
func BigFive() Strategy {
	return StrategyFunc(func(t dimension.Tally, _ []answer.TestAnswer) (Result, error) {
		scores := make(map[string]float64, len(bigFiveTraits))
		var high, low []string
		for _, trait := range bigFiveTraits {
			if t.Counts[trait] == 0 {
				continue
			}
			pct := (t.Mean(trait) - 1) / 4 * 100
			scores[trait] = pct
			switch {
			case pct >= 70:
				high = append(high, trait)
			case pct <= 30:
				low = append(low, trait)
			}
		}
		if len(scores) == 0 {
			return Result{}, fmt.Errorf("no big five traits answered")
		}

		interp := "Your trait scores are in the typical range."
		if len(high) > 0 {
			interp = "You score high on " + strings.Join(high, ", ") + "."
		}
		var recs []string
		if len(low) > 0 {
			recs = append(recs, "Lower scores on "+strings.Join(low, ", ")+" are not deficits; they describe a different style.")
		}
		recs = append(recs, "Retake the inventory in a few months to see how stable your profile is.")

		return Result{
			TotalScore:      t.Total(),
			Scores:          scores,
			Dimensions:      copyValues(scores),
			Interpretation:  interp,
			Recommendations: recs,
		}, nil
	})
}
