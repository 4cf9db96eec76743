package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type feedbackRepo struct {
	s *Store
}

var feedbackColumns = []string{"id", "session_id", "rating", "comment", "severity", "categories", "created_at"}

func (r *feedbackRepo) Create(ctx context.Context, rec *FeedbackRecord) error {
	var cats any
	if len(rec.Categories) > 0 {
		b, err := json.Marshal(rec.Categories)
		if err != nil {
			return fmt.Errorf("marshal categories: %w", err)
		}
		cats = string(b)
	}
	q, args := r.s.builder().Insert(feedbackTable).
		Columns(feedbackColumns...).
		Values(rec.ID, nullString(rec.SessionID), rec.Rating, nullString(rec.Comment), rec.Severity, cats, rec.CreatedAt.UTC()).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (r *feedbackRepo) Get(ctx context.Context, id string) (*FeedbackRecord, error) {
	b := r.s.builder()
	q, args := b.Select(feedbackColumns...).
		From(b.Table(feedbackTable)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	var (
		rec              FeedbackRecord
		session, comment sql.NullString
		cats             sql.NullString
	)
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(
		&rec.ID, &session, &rec.Rating, &comment, &rec.Severity, &cats, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query feedback %s: %w", id, err)
	}
	rec.SessionID = session.String
	rec.Comment = comment.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	if cats.Valid && cats.String != "" {
		if err := json.Unmarshal([]byte(cats.String), &rec.Categories); err != nil {
			return nil, fmt.Errorf("decode categories of %s: %w", id, err)
		}
	}
	return &rec, nil
}

func (r *feedbackRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.s.deleteOlderThan(ctx, feedbackTable, cutoff)
}
