package session

import (
	"time"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/result"
)

// Status is the lifecycle status of one session.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Active reports whether the session can still take answers or be ended.
func (s Status) Active() bool {
	return s == StatusInProgress || s == StatusPaused
}

// Terminal reports whether the session id is finished for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Session is one attempt at a test type. Values are never mutated after
// they are published; every change produces a new Session.
type Session struct {
	ID                   string
	TestType             string
	Status               Status
	StartTime            time.Time
	EndTime              time.Time // zero until completed
	CurrentQuestionIndex int
	Answers              []answer.TestAnswer
	TotalQuestions       int
	TimeSpentMs          int64

	// activeSince is when the session last entered in_progress; used to
	// accumulate TimeSpentMs across pauses.
	activeSince time.Time
}

// TypeState is the isolated record kept per test type.
type TypeState struct {
	SessionID            string
	Session              *Session
	ShowResults          bool
	CurrentResult        *result.TestResult
	IsTestStarted        bool
	IsTestCompleted      bool
	Questions            []catalog.Question
	Answers              []answer.TestAnswer
	CurrentQuestionIndex int
	Progress             float64

	// questionShownAt is when the current question was navigated to.
	questionShownAt time.Time
}

// CurrentQuestion returns the question at the current index.
func (ts *TypeState) CurrentQuestion() (catalog.Question, bool) {
	if ts.CurrentQuestionIndex < 0 || ts.CurrentQuestionIndex >= len(ts.Questions) {
		return catalog.Question{}, false
	}
	return ts.Questions[ts.CurrentQuestionIndex], true
}

func (ts *TypeState) question(id string) (*catalog.Question, bool) {
	for i := range ts.Questions {
		if ts.Questions[i].ID == id {
			return &ts.Questions[i], true
		}
	}
	return nil, false
}

// State is an immutable snapshot of the whole machine. The top-level
// fields mirror the entry of CurrentTestType. There is no global results
// flag; each type carries its own ShowResults.
//
// Callers must treat a State and everything reachable from it as
// read-only.
type State struct {
	CurrentTestType      string
	Session              *Session
	Questions            []catalog.Question
	Answers              []answer.TestAnswer
	CurrentQuestionIndex int
	Progress             float64
	IsTestStarted        bool
	IsTestCompleted      bool

	Types map[string]TypeState
}

// Type returns the isolated entry for testType.
func (s *State) Type(testType string) (TypeState, bool) {
	ts, ok := s.Types[testType]
	return ts, ok
}

// clone copies the top level and the type map. Entries are values and
// their slices are replaced, never appended to in place.
func (s *State) clone() *State {
	next := *s
	next.Types = make(map[string]TypeState, len(s.Types))
	for k, v := range s.Types {
		next.Types[k] = v
	}
	return &next
}

// mirror copies the current type's entry into the shared fields, or
// clears them when nothing is selected.
func (s *State) mirror() {
	ts, ok := s.Types[s.CurrentTestType]
	if !ok {
		s.CurrentTestType = ""
		s.Session = nil
		s.Questions = nil
		s.Answers = nil
		s.CurrentQuestionIndex = 0
		s.Progress = 0
		s.IsTestStarted = false
		s.IsTestCompleted = false
		return
	}
	s.Session = ts.Session
	s.Questions = ts.Questions
	s.Answers = ts.Answers
	s.CurrentQuestionIndex = ts.CurrentQuestionIndex
	s.Progress = ts.Progress
	s.IsTestStarted = ts.IsTestStarted
	s.IsTestCompleted = ts.IsTestCompleted
}

func progress(index, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(index+1) / float64(total) * 100
}
