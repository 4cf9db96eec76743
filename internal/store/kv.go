package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
)

// KV is a kv.Store persisted in the kv_entries table, so rate-limit
// windows and cached results are shared by every server process using
// the same database.
type KV struct {
	s     *Store
	clock clock.Clock
}

// KV returns the table-backed key-value store. A nil clock uses the
// system clock.
func (s *Store) KV(c clock.Clock) *KV {
	if c == nil {
		c = clock.System{}
	}
	return &KV{s: s, clock: c}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	b := k.s.builder()
	q, args := b.Select("value", "expires_at").
		From(b.Table(kvTable)).
		Where(entsql.EQ("id", key)).
		Limit(1).
		Query()

	var (
		value   []byte
		expires sql.NullTime
	)
	err := k.s.db.QueryRowContext(ctx, q, args...).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	if expires.Valid && !k.clock.Now().Before(expires.Time) {
		return nil, kv.ErrNotFound
	}
	return value, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = k.clock.Now().Add(ttl).UTC()
	}
	q, args := k.s.builder().Insert(kvTable).
		Columns("id", "value", "expires_at").
		Values(key, value, expires).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := k.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	q, args := k.s.builder().Delete(kvTable).
		Where(entsql.EQ("id", key)).
		Query()
	if _, err := k.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes every expired entry.
func (k *KV) PurgeExpired(ctx context.Context) (int, error) {
	q, args := k.s.builder().Delete(kvTable).
		Where(entsql.And(
			entsql.NotNull("expires_at"),
			entsql.LTE("expires_at", k.clock.Now().UTC()),
		)).
		Query()
	out, err := k.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("kv purge: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

var (
	_ kv.Store  = (*KV)(nil)
	_ kv.Purger = (*KV)(nil)
)
