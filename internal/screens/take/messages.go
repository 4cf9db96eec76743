package take

import "github.com/abhisek/psytest/internal/result"

// submittedMsg carries the outcome of EndTest back to the screen.
type submittedMsg struct {
	result result.TestResult
	err    error
}
