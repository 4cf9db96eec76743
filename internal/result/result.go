// Package result defines the public projection of a scored session.
package result

import (
	"time"

	"github.com/abhisek/psytest/internal/scoring"
)

// TestResult is produced once per completed session and is immutable
// after creation.
type TestResult struct {
	TestType        string             `json:"testType"`
	SessionID       string             `json:"sessionId"`
	TotalScore      float64            `json:"totalScore"`
	Scores          map[string]float64 `json:"scores"`
	Categories      map[string]float64 `json:"categories,omitempty"`
	Dimensions      map[string]float64 `json:"dimensions,omitempty"`
	Severity        string             `json:"severity,omitempty"`
	Analysis        string             `json:"analysis"`
	Recommendations []string           `json:"recommendations"`
	Timestamp       time.Time          `json:"timestamp"`
	Data            map[string]any     `json:"data,omitempty"`

	// Placeholder marks a stand-in result for a submission that failed.
	Placeholder bool `json:"placeholder,omitempty"`
}

// FromScore projects a scoring result.
func FromScore(testType, sessionID string, r scoring.Result, at time.Time) TestResult {
	return TestResult{
		TestType:        testType,
		SessionID:       sessionID,
		TotalScore:      r.TotalScore,
		Scores:          r.Scores,
		Categories:      r.Categories,
		Dimensions:      r.Dimensions,
		Severity:        r.Severity,
		Analysis:        r.Interpretation,
		Recommendations: r.Recommendations,
		Timestamp:       at,
		Data:            r.Data,
	}
}

// Placeholder is shown when a completed session could not be scored.
// The answers are kept so the user is never asked to answer again.
func Placeholder(testType, sessionID string, at time.Time) TestResult {
	return TestResult{
		TestType:        testType,
		SessionID:       sessionID,
		Scores:          map[string]float64{},
		Analysis:        "Your answers were saved but the result is not available yet.",
		Recommendations: []string{"Try loading your result again later."},
		Timestamp:       at,
		Placeholder:     true,
	}
}
