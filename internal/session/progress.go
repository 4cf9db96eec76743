package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/kv"
)

// ProgressKeyPrefix prefixes snapshot keys in the kv store.
const ProgressKeyPrefix = "test_progress_"

// ErrNoSnapshot is returned when no snapshot exists for a session id.
var ErrNoSnapshot = errors.New("no saved progress for session")

// TerminalSessionError is returned when resuming a session id that was
// completed or abandoned.
type TerminalSessionError struct {
	SessionID string
	Status    Status
}

func (e *TerminalSessionError) Error() string {
	return fmt.Sprintf("session %s is %s and cannot be resumed", e.SessionID, e.Status)
}

// Snapshot is the serialisable projection of a session.
type Snapshot struct {
	TestType             string              `json:"testType"`
	SessionID            string              `json:"sessionId"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	Answers              []answer.TestAnswer `json:"answers"`
	StartTime            time.Time           `json:"startTime"`
	LastUpdateTime       time.Time           `json:"lastUpdateTime"`
	IsCompleted          bool                `json:"isCompleted"`
	IsAbandoned          bool                `json:"isAbandoned,omitempty"`
	TimeSpentMs          int64               `json:"timeSpentMs"`
}

// ProgressKey returns the kv key for a session's snapshot.
func ProgressKey(sessionID string) string {
	return ProgressKeyPrefix + sessionID
}

// SaveProgress writes a snapshot of the current session immediately and
// cancels any pending debounced write for it.
func (m *Machine) SaveProgress(ctx context.Context) error {
	cur := m.State()
	if cur.Session == nil {
		return ErrNoActiveSession
	}
	m.mu.Lock()
	m.stopTimerLocked(cur.Session.ID)
	m.mu.Unlock()
	return m.saveSession(ctx, cur.Session.ID)
}

// LoadProgress reads a snapshot and rebuilds its session. The status is
// completed or abandoned if the snapshot says so and in_progress
// otherwise.
func (m *Machine) LoadProgress(ctx context.Context, sessionID string) (*Session, error) {
	snap, err := m.readSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.session(m.clock.Now()), nil
}

// ResumeProgress loads a snapshot and installs it as the current session
// of its test type, against the supplied questions. Completed and
// abandoned sessions are refused with a *TerminalSessionError.
func (m *Machine) ResumeProgress(ctx context.Context, sessionID string, questions []catalog.Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	snap, err := m.readSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	sess := snap.session(now)
	if sess.Status.Terminal() {
		return nil, &TerminalSessionError{SessionID: sess.ID, Status: sess.Status}
	}
	sess.TotalQuestions = len(questions)
	if sess.CurrentQuestionIndex >= len(questions) {
		sess.CurrentQuestionIndex = len(questions) - 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.State().Type(sess.TestType); ok {
		m.stopTimerLocked(prev.SessionID)
	}
	_ = m.update(func(s *State) error {
		s.Types[sess.TestType] = TypeState{
			SessionID:            sess.ID,
			Session:              sess,
			IsTestStarted:        true,
			IsTestCompleted:      sess.Status == StatusCompleted,
			Questions:            append([]catalog.Question(nil), questions...),
			Answers:              sess.Answers,
			CurrentQuestionIndex: sess.CurrentQuestionIndex,
			Progress:             progress(sess.CurrentQuestionIndex, len(questions)),
			questionShownAt:      now,
		}
		s.CurrentTestType = sess.TestType
		return nil
	})
	m.log.Debug("progress resumed", "test_type", sess.TestType, "session_id", sess.ID, "answers", len(sess.Answers))
	return sess, nil
}

// Flush writes every pending debounced snapshot now.
func (m *Machine) Flush(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.timers))
	for id, t := range m.timers {
		t.Stop()
		ids = append(ids, id)
	}
	clear(m.timers)
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.saveSession(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Snapshot) session(now time.Time) *Session {
	status := StatusInProgress
	switch {
	case s.IsCompleted:
		status = StatusCompleted
	case s.IsAbandoned:
		status = StatusAbandoned
	}
	sess := &Session{
		ID:                   s.SessionID,
		TestType:             s.TestType,
		Status:               status,
		StartTime:            s.StartTime,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		Answers:              s.Answers,
		TimeSpentMs:          s.TimeSpentMs,
		activeSince:          now,
	}
	if status.Terminal() {
		sess.EndTime = s.LastUpdateTime
	}
	return sess
}

// snapshotFor builds the snapshot for sessionID from whichever type
// entry currently holds it.
func (m *Machine) snapshotFor(sessionID string) (Snapshot, bool) {
	for _, ts := range m.State().Types {
		if ts.SessionID != sessionID || ts.Session == nil {
			continue
		}
		sess := ts.Session
		spent := sess.TimeSpentMs
		if sess.Status == StatusInProgress {
			spent += m.clock.Now().Sub(sess.activeSince).Milliseconds()
		}
		return Snapshot{
			TestType:             sess.TestType,
			SessionID:            sess.ID,
			CurrentQuestionIndex: ts.CurrentQuestionIndex,
			Answers:              ts.Answers,
			StartTime:            sess.StartTime,
			LastUpdateTime:       m.clock.Now(),
			IsCompleted:          sess.Status == StatusCompleted,
			TimeSpentMs:          spent,
		}, true
	}
	return Snapshot{}, false
}

// saveSession writes the snapshot of a live session. Writes are
// serialised with the abandon marker so a late debounced write cannot
// overwrite it.
func (m *Machine) saveSession(ctx context.Context, sessionID string) error {
	if m.opts.Store == nil {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	abandoned := m.abandoned[sessionID]
	m.mu.Unlock()
	if abandoned {
		return nil
	}
	snap, ok := m.snapshotFor(sessionID)
	if !ok {
		return nil
	}
	return m.writeSnapshot(ctx, snap)
}

// saveAbandoned writes the final snapshot of a reset session.
func (m *Machine) saveAbandoned(ctx context.Context, snap Snapshot) error {
	if m.opts.Store == nil {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	snap.IsAbandoned = true
	return m.writeSnapshot(ctx, snap)
}

func (m *Machine) writeSnapshot(ctx context.Context, snap Snapshot) error {
	sessionID := snap.SessionID
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.opts.Store.Set(ctx, ProgressKey(sessionID), data, m.opts.SnapshotTTL); err != nil {
		return fmt.Errorf("save snapshot %s: %w", sessionID, err)
	}
	return nil
}

func (m *Machine) readSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	if m.opts.Store == nil {
		return nil, fmt.Errorf("load %s: %w", sessionID, ErrNoSnapshot)
	}
	data, err := m.opts.Store.Get(ctx, ProgressKey(sessionID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("load %s: %w", sessionID, ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

// scheduleSnapshotLocked (re)arms the debounce timer for sessionID.
func (m *Machine) scheduleSnapshotLocked(sessionID string) {
	if m.opts.Store == nil {
		return
	}
	m.stopTimerLocked(sessionID)
	var t *time.Timer
	t = time.AfterFunc(m.opts.SnapshotDelay, func() {
		m.mu.Lock()
		if m.timers[sessionID] != t {
			m.mu.Unlock()
			return
		}
		delete(m.timers, sessionID)
		m.mu.Unlock()

		if err := m.saveSession(context.Background(), sessionID); err != nil {
			m.log.Warn("progress snapshot failed", "session_id", sessionID, "error", err)
		}
	})
	m.timers[sessionID] = t
}

func (m *Machine) stopTimerLocked(sessionID string) {
	if t, ok := m.timers[sessionID]; ok {
		t.Stop()
		delete(m.timers, sessionID)
	}
}
