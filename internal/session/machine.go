// Package session is the client-side assessment state machine. One
// Machine serves every test type; state is kept per test type so that
// driving one test never changes another's record.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/dimension"
	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/testtype"
)

var (
	ErrNoQuestionsAvailable = errors.New("no questions available")
	ErrNoActiveSession      = errors.New("no active session")
	ErrNotInProgress        = errors.New("session is not in progress")
	ErrUnknownQuestion      = errors.New("question is not part of this test")
	ErrNotStarted           = errors.New("test type has not been started")
	ErrSessionSuperseded    = errors.New("session was reset or restarted before its result arrived")
)

// DefaultSnapshotDelay is the debounce applied to progress snapshots.
const DefaultSnapshotDelay = 500 * time.Millisecond

// Submission is what EndTest hands to the submission pipeline.
type Submission struct {
	SessionID   string
	TestType    string
	Answers     []answer.TestAnswer
	Tally       dimension.Tally
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Submitter sends a completed session for scoring and storage.
type Submitter interface {
	Submit(ctx context.Context, s Submission) (result.TestResult, error)
}

// Descriptors resolves test-type descriptors.
type Descriptors interface {
	Get(testType string) (*testtype.Descriptor, error)
}

// Options configures a Machine.
type Options struct {
	// Descriptors provides lookup tables and local scoring.
	Descriptors Descriptors

	// Submitter is called by EndTest. When nil the result is computed
	// locally from the descriptor.
	Submitter Submitter

	// Store receives progress snapshots. Nil disables them.
	Store kv.Store

	// SnapshotDelay debounces snapshot writes after answers.
	SnapshotDelay time.Duration

	// SnapshotTTL bounds how long snapshots are kept; zero keeps them.
	SnapshotTTL time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
}

// Machine is the per-test-type isolated session state machine.
//
// Writers are serialised by mu and every change is published as a fresh
// *State, so State() never observes a half-applied update.
type Machine struct {
	opts  Options
	clock clock.Clock
	log   *slog.Logger

	mu        sync.Mutex
	state     atomic.Pointer[State]
	timers    map[string]*time.Timer
	abandoned map[string]bool

	// saveMu orders snapshot writes; it is never acquired while mu is held.
	saveMu sync.Mutex
}

// NewMachine creates a Machine in the not_started state.
func NewMachine(opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SnapshotDelay <= 0 {
		opts.SnapshotDelay = DefaultSnapshotDelay
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	m := &Machine{
		opts:      opts,
		clock:     opts.Clock,
		log:       opts.Logger.With("component", "session"),
		timers:    make(map[string]*time.Timer),
		abandoned: make(map[string]bool),
	}
	m.state.Store(&State{Types: map[string]TypeState{}})
	return m
}

// State returns the current immutable snapshot.
func (m *Machine) State() *State {
	return m.state.Load()
}

// update applies fn to a copy of the state and publishes it. fn must not
// modify slices it did not allocate.
func (m *Machine) update(fn func(s *State) error) error {
	next := m.state.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	next.mirror()
	m.state.Store(next)
	return nil
}

// StartTest begins a new session for testType and makes it current. Any
// in-memory session for the same type is discarded; other test types
// keep their entries untouched.
func (m *Machine) StartTest(testType string, questions []catalog.Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("start %s: %w", testType, ErrNoQuestionsAvailable)
	}
	now := m.clock.Now()
	sess := &Session{
		ID:             m.opts.NewID(),
		TestType:       testType,
		Status:         StatusInProgress,
		StartTime:      now,
		TotalQuestions: len(questions),
		activeSince:    now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.State().Type(testType); ok {
		m.stopTimerLocked(prev.SessionID)
	}
	_ = m.update(func(s *State) error {
		s.Types[testType] = TypeState{
			SessionID:       sess.ID,
			Session:         sess,
			IsTestStarted:   true,
			Questions:       append([]catalog.Question(nil), questions...),
			questionShownAt: now,
		}
		s.CurrentTestType = testType
		return nil
	})
	m.log.Debug("test started", "test_type", testType, "session_id", sess.ID, "questions", len(questions))
	return sess, nil
}

// SubmitAnswer validates value against the question's format and stores
// it, replacing any earlier answer for the same question. A progress
// snapshot is scheduled.
func (m *Machine) SubmitAnswer(questionID string, value answer.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sessionID string
	err := m.update(func(s *State) error {
		ts, ok := s.Types[s.CurrentTestType]
		if !ok || ts.Session == nil {
			return ErrNoActiveSession
		}
		if ts.Session.Status != StatusInProgress {
			return fmt.Errorf("%w: status is %s", ErrNotInProgress, ts.Session.Status)
		}
		q, ok := ts.question(questionID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
		}
		if err := answer.Validate(q, value); err != nil {
			return err
		}

		now := m.clock.Now()
		a := answer.TestAnswer{
			QuestionID:  questionID,
			Value:       answer.Normalize(q, value),
			Timestamp:   now,
			TimeSpentMs: now.Sub(ts.questionShownAt).Milliseconds(),
		}
		ts.Answers = answer.Upsert(ts.Answers, a)
		ts.Progress = progress(ts.CurrentQuestionIndex, len(ts.Questions))

		sess := *ts.Session
		sess.Answers = ts.Answers
		ts.Session = &sess

		s.Types[s.CurrentTestType] = ts
		sessionID = ts.SessionID
		return nil
	})
	if err != nil {
		return err
	}
	m.scheduleSnapshotLocked(sessionID)
	return nil
}

// GoToNextQuestion moves forward; a no-op on the last question.
func (m *Machine) GoToNextQuestion() {
	m.navigate(func(i int) int { return i + 1 })
}

// GoToPreviousQuestion moves back; a no-op on the first question.
func (m *Machine) GoToPreviousQuestion() {
	m.navigate(func(i int) int { return i - 1 })
}

// GoToQuestion jumps to index i; a no-op outside [0, total-1].
func (m *Machine) GoToQuestion(i int) {
	m.navigate(func(int) int { return i })
}

func (m *Machine) navigate(next func(int) int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = m.update(func(s *State) error {
		ts, ok := s.Types[s.CurrentTestType]
		if !ok || ts.Session == nil || !ts.Session.Status.Active() {
			return nil
		}
		i := next(ts.CurrentQuestionIndex)
		if i < 0 || i >= len(ts.Questions) || i == ts.CurrentQuestionIndex {
			return nil
		}
		ts.CurrentQuestionIndex = i
		ts.questionShownAt = m.clock.Now()
		sess := *ts.Session
		sess.CurrentQuestionIndex = i
		ts.Session = &sess
		s.Types[s.CurrentTestType] = ts
		return nil
	})
}

// Pause moves the current session from in_progress to paused.
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(func(s *State) error {
		ts, ok := s.Types[s.CurrentTestType]
		if !ok || ts.Session == nil {
			return ErrNoActiveSession
		}
		if ts.Session.Status != StatusInProgress {
			return fmt.Errorf("pause: %w: status is %s", ErrNotInProgress, ts.Session.Status)
		}
		sess := *ts.Session
		sess.TimeSpentMs += m.clock.Now().Sub(sess.activeSince).Milliseconds()
		sess.Status = StatusPaused
		ts.Session = &sess
		s.Types[s.CurrentTestType] = ts
		return nil
	})
}

// Resume moves the current session from paused back to in_progress.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(func(s *State) error {
		ts, ok := s.Types[s.CurrentTestType]
		if !ok || ts.Session == nil {
			return ErrNoActiveSession
		}
		if ts.Session.Status != StatusPaused {
			return fmt.Errorf("resume: session is %s, not paused", ts.Session.Status)
		}
		now := m.clock.Now()
		sess := *ts.Session
		sess.Status = StatusInProgress
		sess.activeSince = now
		ts.Session = &sess
		ts.questionShownAt = now
		s.Types[s.CurrentTestType] = ts
		return nil
	})
}

// SelectTest makes a previously started test type current again.
func (m *Machine) SelectTest(testType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(func(s *State) error {
		if _, ok := s.Types[testType]; !ok {
			return fmt.Errorf("select %s: %w", testType, ErrNotStarted)
		}
		s.CurrentTestType = testType
		return nil
	})
}

// EndTest completes the current session, extracts dimensions and hands
// the answers to the Submitter. The result is shown only for the ended
// test type. If submission fails the session stays completed with a
// placeholder result and the error is returned alongside it.
//
// When the test type was reset or restarted while the submission was in
// flight, the result is returned with ErrSessionSuperseded and is not
// attached to the newer session.
func (m *Machine) EndTest(ctx context.Context) (result.TestResult, error) {
	m.mu.Lock()
	var sub Submission
	err := m.update(func(s *State) error {
		ts, ok := s.Types[s.CurrentTestType]
		if !ok || ts.Session == nil || !ts.Session.Status.Active() {
			return ErrNoActiveSession
		}
		now := m.clock.Now()
		sess := *ts.Session
		if sess.Status == StatusInProgress {
			sess.TimeSpentMs += now.Sub(sess.activeSince).Milliseconds()
		}
		sess.Status = StatusCompleted
		sess.EndTime = now
		ts.Session = &sess
		ts.IsTestCompleted = true
		s.Types[s.CurrentTestType] = ts

		sub = Submission{
			SessionID:   sess.ID,
			TestType:    sess.TestType,
			Answers:     ts.Answers,
			StartedAt:   sess.StartTime,
			CompletedAt: now,
			Duration:    time.Duration(sess.TimeSpentMs) * time.Millisecond,
		}
		return nil
	})
	if err == nil {
		m.stopTimerLocked(sub.SessionID)
	}
	m.mu.Unlock()
	if err != nil {
		return result.TestResult{}, err
	}

	res, submitErr := m.submit(ctx, sub)
	if submitErr != nil {
		m.log.Warn("submission failed, keeping placeholder result",
			"test_type", sub.TestType, "session_id", sub.SessionID, "error", submitErr)
		res = result.Placeholder(sub.TestType, sub.SessionID, sub.CompletedAt)
	}

	m.mu.Lock()
	attachErr := m.update(func(s *State) error {
		ts, ok := s.Types[sub.TestType]
		if !ok || ts.SessionID != sub.SessionID {
			return ErrSessionSuperseded
		}
		r := res
		ts.CurrentResult = &r
		ts.ShowResults = true
		s.Types[sub.TestType] = ts
		return nil
	})
	m.mu.Unlock()

	if attachErr != nil {
		m.log.Info("dropping result for superseded session", "test_type", sub.TestType, "session_id", sub.SessionID)
		return res, attachErr
	}
	if err := m.saveSession(ctx, sub.SessionID); err != nil {
		m.log.Warn("final snapshot failed", "session_id", sub.SessionID, "error", err)
	}
	if submitErr != nil {
		return res, fmt.Errorf("submit %s: %w", sub.TestType, submitErr)
	}
	return res, nil
}

func (m *Machine) submit(ctx context.Context, sub Submission) (result.TestResult, error) {
	var desc *testtype.Descriptor
	if m.opts.Descriptors != nil {
		d, err := m.opts.Descriptors.Get(sub.TestType)
		if err != nil && m.opts.Submitter == nil {
			return result.TestResult{}, err
		}
		desc = d
	}
	if desc != nil {
		sub.Tally = dimension.Extract(desc.Table, sub.Answers)
	}
	if m.opts.Submitter != nil {
		return m.opts.Submitter.Submit(ctx, sub)
	}
	if desc == nil {
		return result.TestResult{}, errors.New("no submitter and no descriptors configured")
	}
	res, err := desc.Strategy.Score(sub.Tally, sub.Answers)
	if err != nil {
		return result.TestResult{}, fmt.Errorf("score %s: %w", sub.TestType, err)
	}
	return result.FromScore(sub.TestType, sub.SessionID, res, sub.CompletedAt), nil
}

// ResetTest abandons the current test type. Its isolated entry is
// removed first, then the shared fields are cleared. An active session is
// marked abandoned and a final snapshot records it, so its id can be
// loaded but never resumed.
func (m *Machine) ResetTest() {
	m.mu.Lock()
	cur := m.State()
	ts, ok := cur.Type(cur.CurrentTestType)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked(ts.SessionID)
	abandon := ts.Session != nil && ts.Session.Status.Active()
	var final Snapshot
	if abandon {
		final, _ = m.snapshotFor(ts.SessionID)
		m.abandoned[ts.SessionID] = true
	}
	_ = m.update(func(s *State) error {
		delete(s.Types, s.CurrentTestType)
		s.CurrentTestType = ""
		return nil
	})
	m.mu.Unlock()

	if !abandon {
		return
	}
	m.log.Debug("test abandoned", "test_type", ts.Session.TestType, "session_id", ts.SessionID)
	if err := m.saveAbandoned(context.Background(), final); err != nil {
		m.log.Warn("abandon snapshot failed", "session_id", ts.SessionID, "error", err)
	}
}
