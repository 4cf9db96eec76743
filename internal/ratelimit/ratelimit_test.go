package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newLimiter(rules map[string]Rule, store kv.Store, fc *clock.Fake) *Limiter {
	return New(store, rules, fc, nil)
}

func TestAllow_SixthRequestRejectedThenWindowResets(t *testing.T) {
	fc := clock.NewFake(start)
	l := newLimiter(map[string]Rule{"api": {Limit: 5, Window: 60 * time.Second}}, kv.NewMemory(fc), fc)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "api", "1.2.3.4")
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
		fc.Advance(time.Second)
	}

	_, err := l.Allow(ctx, "api", "1.2.3.4")
	var rle *apperr.RateLimitedError
	require.True(t, errors.As(err, &rle), "6th request: %v", err)
	assert.Equal(t, 5, rle.Limit)
	assert.Equal(t, 55*time.Second, rle.RetryAfter)

	// Window opened at start; it ends at start+60s.
	fc.Set(start.Add(60 * time.Second))
	d, err := l.Allow(ctx, "api", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, start.Add(120*time.Second), d.ResetAt)
}

func TestAllow_WindowIsFixedNotSliding(t *testing.T) {
	fc := clock.NewFake(start)
	l := newLimiter(map[string]Rule{"api": {Limit: 2, Window: time.Minute}}, kv.NewMemory(fc), fc)
	ctx := context.Background()

	_, err := l.Allow(ctx, "api", "k")
	require.NoError(t, err)
	fc.Advance(50 * time.Second)
	_, err = l.Allow(ctx, "api", "k")
	require.NoError(t, err)

	// The second hit must not push the window end out.
	fc.Advance(10 * time.Second)
	_, err = l.Allow(ctx, "api", "k")
	assert.NoError(t, err)
}

func TestAllow_KeysAndClassesIndependent(t *testing.T) {
	fc := clock.NewFake(start)
	rules := map[string]Rule{
		ClassSubmit: {Limit: 1, Window: time.Minute},
		ClassRead:   {Limit: 1, Window: time.Minute},
	}
	l := newLimiter(rules, kv.NewMemory(fc), fc)
	ctx := context.Background()

	_, err := l.Allow(ctx, ClassSubmit, "a")
	require.NoError(t, err)
	_, err = l.Allow(ctx, ClassSubmit, "b")
	assert.NoError(t, err, "other client key")
	_, err = l.Allow(ctx, ClassRead, "a")
	assert.NoError(t, err, "other class")
	_, err = l.Allow(ctx, ClassSubmit, "a")
	assert.Error(t, err)
}

func TestAllow_UnknownClassUnlimited(t *testing.T) {
	fc := clock.NewFake(start)
	l := newLimiter(map[string]Rule{}, kv.NewMemory(fc), fc)
	for i := 0; i < 100; i++ {
		_, err := l.Allow(context.Background(), "other", "k")
		require.NoError(t, err)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection reset")
}

func (brokenStore) Delete(context.Context, string) error { return nil }

func TestAllow_FailOpen(t *testing.T) {
	fc := clock.NewFake(start)
	l := newLimiter(map[string]Rule{"api": {Limit: 1, Window: time.Minute, FailOpen: true}}, brokenStore{}, fc)

	for i := 0; i < 3; i++ {
		d, err := l.Allow(context.Background(), "api", "k")
		require.NoError(t, err)
		assert.True(t, d.Degraded)
	}
}

func TestAllow_FailClosed(t *testing.T) {
	fc := clock.NewFake(start)
	l := newLimiter(map[string]Rule{"api": {Limit: 1, Window: time.Minute}}, brokenStore{}, fc)

	_, err := l.Allow(context.Background(), "api", "k")
	var pe *apperr.PersistenceError
	assert.True(t, errors.As(err, &pe))
}
