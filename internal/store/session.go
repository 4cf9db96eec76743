package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/psytest/internal/result"
)

// sessionRepo implements SessionRepo with the ent SQL builder.
type sessionRepo struct {
	s *Store
}

var sessionColumns = []string{
	"id", "test_type", "answers", "result", "duration_ms", "ip_hash", "user_info", "created_at", "completed_at",
}

func (r *sessionRepo) Create(ctx context.Context, rec *SessionRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	userInfo, err := marshalOptional(rec.UserInfo)
	if err != nil {
		return fmt.Errorf("marshal user info: %w", err)
	}
	var res any
	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		res = string(b)
	}
	var completed any
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.UTC()
	}

	q, args := r.s.builder().Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(rec.ID, rec.TestType, string(answers), res, rec.DurationMs, nullString(rec.IPHash), userInfo,
			rec.CreatedAt.UTC(), completed).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*SessionRecord, error) {
	b := r.s.builder()
	q, args := b.Select(sessionColumns...).
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	var (
		rec                   SessionRecord
		answers               []byte
		res, ipHash, userInfo sql.NullString
		completed             sql.NullTime
	)
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(
		&rec.ID, &rec.TestType, &answers, &res, &rec.DurationMs, &ipHash, &userInfo, &rec.CreatedAt, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}

	if err := json.Unmarshal(answers, &rec.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", id, err)
	}
	if res.Valid && res.String != "" {
		var tr result.TestResult
		if err := json.Unmarshal([]byte(res.String), &tr); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", id, err)
		}
		rec.Result = &tr
	}
	if userInfo.Valid && userInfo.String != "" {
		if err := json.Unmarshal([]byte(userInfo.String), &rec.UserInfo); err != nil {
			return nil, fmt.Errorf("decode user info of %s: %w", id, err)
		}
	}
	rec.IPHash = ipHash.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func (r *sessionRepo) SetResult(ctx context.Context, id string, res result.TestResult, completedAt time.Time) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	q, args := r.s.builder().Update(sessionsTable).
		Set("result", string(b)).
		Set("completed_at", completedAt.UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	out, err := r.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.s.deleteOlderThan(ctx, sessionsTable, cutoff)
}

func (s *Store) deleteOlderThan(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	q, args := s.builder().Delete(table).
		Where(entsql.LT("created_at", cutoff.UTC())).
		Query()
	out, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old %s: %w", table, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func marshalOptional(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
