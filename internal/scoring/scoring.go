// Package scoring turns a dimension tally into a scored, interpreted
// result. Strategies are deterministic and side-effect free.
package scoring

import (
	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/dimension"
)

// Result is the output of a scoring strategy.
type Result struct {
	TotalScore      float64            `json:"totalScore"`
	Scores          map[string]float64 `json:"scores"`
	Categories      map[string]float64 `json:"categories,omitempty"`
	Dimensions      map[string]float64 `json:"dimensions,omitempty"`
	Severity        string             `json:"severity,omitempty"`
	Interpretation  string             `json:"interpretation"`
	Recommendations []string           `json:"recommendations"`
	Data            map[string]any     `json:"data,omitempty"`
}

// Strategy scores one test type. The tally is always produced by
// dimension.Extract; answers are passed for item-level rules.
type Strategy interface {
	Score(tally dimension.Tally, answers []answer.TestAnswer) (Result, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(dimension.Tally, []answer.TestAnswer) (Result, error)

func (f StrategyFunc) Score(t dimension.Tally, a []answer.TestAnswer) (Result, error) {
	return f(t, a)
}

func copyValues(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
