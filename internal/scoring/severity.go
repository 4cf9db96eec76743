package scoring

import (
	"fmt"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/dimension"
)

// Band is one severity range; a total falls in the first band whose Max
// is >= total.
type Band struct {
	Max             float64
	Severity        string
	Interpretation  string
	Recommendations []string
}

// ItemAlert adds a recommendation when one item scores at least Threshold.
type ItemAlert struct {
	QuestionID     string
	Threshold      float64
	Recommendation string
}

// SeverityBands scores summed screening questionnaires (PHQ-9, GAD-7).
type SeverityBands struct {
	Label  string
	Bands  []Band
	Alerts []ItemAlert
}

func (s SeverityBands) Score(t dimension.Tally, answers []answer.TestAnswer) (Result, error) {
	if len(s.Bands) == 0 {
		return Result{}, fmt.Errorf("severity scoring for %q has no bands", s.Label)
	}
	total := t.Value(s.Label)

	band := s.Bands[len(s.Bands)-1]
	for _, b := range s.Bands {
		if total <= b.Max {
			band = b
			break
		}
	}

	recs := append([]string(nil), band.Recommendations...)
	byID := answer.ByQuestion(answers)
	flagged := []string{}
	for _, a := range s.Alerts {
		if ans, ok := byID[a.QuestionID]; ok && ans.Value.Num() >= a.Threshold {
			recs = append(recs, a.Recommendation)
			flagged = append(flagged, a.QuestionID)
		}
	}

	return Result{
		TotalScore:      total,
		Scores:          map[string]float64{s.Label: total},
		Categories:      copyValues(t.Values),
		Severity:        band.Severity,
		Interpretation:  band.Interpretation,
		Recommendations: recs,
		Data: map[string]any{
			"answered":     t.Counts[s.Label],
			"flaggedItems": flagged,
		},
	}, nil
}

// PHQ9 scores the nine-item depression screen (0-27).
func PHQ9() SeverityBands {
	return SeverityBands{
		Label: "depression",
		Bands: []Band{
			{Max: 4, Severity: "minimal", Interpretation: "Minimal depressive symptoms.",
				Recommendations: []string{"No action needed; repeat the screen if your mood changes."}},
			{Max: 9, Severity: "mild", Interpretation: "Mild depressive symptoms.",
				Recommendations: []string{"Watch your symptoms and repeat the screen in two weeks."}},
			{Max: 14, Severity: "moderate", Interpretation: "Moderate depressive symptoms.",
				Recommendations: []string{"Consider talking to a doctor or counsellor about a treatment plan."}},
			{Max: 19, Severity: "moderately_severe", Interpretation: "Moderately severe depressive symptoms.",
				Recommendations: []string{"Please speak with a health professional soon about treatment options."}},
			{Max: 27, Severity: "severe", Interpretation: "Severe depressive symptoms.",
				Recommendations: []string{"Please contact a health professional promptly."}},
		},
		Alerts: []ItemAlert{{
			QuestionID:     "phq9_9",
			Threshold:      1,
			Recommendation: "You reported thoughts of self-harm. If you are in danger, contact local emergency services or a crisis line now.",
		}},
	}
}

// GAD7 scores the seven-item anxiety screen (0-21).
func GAD7() SeverityBands {
	return SeverityBands{
		Label: "anxiety",
		Bands: []Band{
			{Max: 4, Severity: "minimal", Interpretation: "Minimal anxiety.",
				Recommendations: []string{"No action needed."}},
			{Max: 9, Severity: "mild", Interpretation: "Mild anxiety.",
				Recommendations: []string{"Monitor your symptoms; relaxation techniques may help."}},
			{Max: 14, Severity: "moderate", Interpretation: "Moderate anxiety.",
				Recommendations: []string{"Consider a follow-up with a health professional."}},
			{Max: 21, Severity: "severe", Interpretation: "Severe anxiety.",
				Recommendations: []string{"Please speak with a health professional about treatment."}},
		},
	}
}
