package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/psytest/internal/answer"
	"github.com/abhisek/psytest/internal/result"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionRecord is a persisted submission.
type SessionRecord struct {
	ID          string
	TestType    string
	Answers     []answer.TestAnswer
	Result      *result.TestResult // nil until scored
	DurationMs  int64
	IPHash      string
	UserInfo    map[string]any
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// SessionRepo manages submitted sessions.
type SessionRepo interface {
	// Create inserts a new session with an empty result.
	Create(ctx context.Context, rec *SessionRecord) error

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// SetResult stores the scored result and completion time.
	SetResult(ctx context.Context, id string, res result.TestResult, completedAt time.Time) error

	// DeleteOlderThan removes sessions created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// FeedbackRecord is a persisted, already filtered feedback entry.
type FeedbackRecord struct {
	ID         string
	SessionID  string
	Rating     int
	Comment    string
	Severity   string
	Categories []string
	CreatedAt  time.Time
}

// FeedbackRepo stores feedback.
type FeedbackRepo interface {
	Create(ctx context.Context, rec *FeedbackRecord) error
	Get(ctx context.Context, id string) (*FeedbackRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
