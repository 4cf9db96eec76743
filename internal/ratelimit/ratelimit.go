// Package ratelimit implements a fixed-window request counter per
// (route class, client key) over a shared kv.Store.
//
// The read-compare-increment sequence is not atomic. Under concurrency a
// few more requests than the limit may get through; that imprecision is
// accepted in exchange for needing nothing beyond Get/Set from the store.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
)

// Route classes.
const (
	ClassSubmit   = "submit"
	ClassRead     = "read"
	ClassFeedback = "feedback"
)

// Rule is the limit for one route class.
type Rule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`

	// FailOpen admits requests when the counter store is unavailable.
	FailOpen bool `yaml:"fail_open"`
}

// DefaultRules returns the stock per-class limits.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ClassSubmit:   {Limit: 10, Window: time.Minute, FailOpen: true},
		ClassRead:     {Limit: 120, Window: time.Minute, FailOpen: true},
		ClassFeedback: {Limit: 5, Window: time.Minute, FailOpen: true},
	}
}

// Decision describes an admitted request.
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time

	// Degraded is set when the store failed and the rule failed open.
	Degraded bool
}

// record is the persisted window state.
type record struct {
	Count        int       `json:"count"`
	WindowExpiry time.Time `json:"windowExpiry"`
}

// Limiter enforces Rules against a kv.Store.
type Limiter struct {
	store kv.Store
	rules map[string]Rule
	clock clock.Clock
	log   *slog.Logger
}

// New creates a Limiter. Nil clock and logger fall back to defaults.
func New(store kv.Store, rules map[string]Rule, c clock.Clock, log *slog.Logger) *Limiter {
	if c == nil {
		c = clock.System{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{store: store, rules: rules, clock: c, log: log.With("component", "ratelimit")}
}

// Allow counts one request for key in class. It returns a
// *apperr.RateLimitedError when the window's quota is used up. Store
// failures are swallowed with a warning when the class fails open.
func (l *Limiter) Allow(ctx context.Context, class, key string) (Decision, error) {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 {
		return Decision{}, nil
	}
	now := l.clock.Now()
	storeKey := "ratelimit:" + class + ":" + key

	rec, err := l.load(ctx, storeKey)
	if err != nil {
		return l.storeFailure(class, key, rule, now, err)
	}
	if rec == nil || !now.Before(rec.WindowExpiry) {
		rec = &record{WindowExpiry: now.Add(rule.Window)}
	}

	if rec.Count >= rule.Limit {
		return Decision{}, &apperr.RateLimitedError{
			Class:      class,
			Limit:      rule.Limit,
			RetryAfter: rec.WindowExpiry.Sub(now),
		}
	}

	rec.Count++
	data, err := json.Marshal(rec)
	if err != nil {
		return Decision{}, fmt.Errorf("encode window: %w", err)
	}
	if err := l.store.Set(ctx, storeKey, data, rec.WindowExpiry.Sub(now)); err != nil {
		return l.storeFailure(class, key, rule, now, err)
	}
	return Decision{
		Limit:     rule.Limit,
		Remaining: rule.Limit - rec.Count,
		ResetAt:   rec.WindowExpiry,
	}, nil
}

func (l *Limiter) load(ctx context.Context, key string) (*record, error) {
	data, err := l.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt window is treated as absent.
		return nil, nil
	}
	return &rec, nil
}

func (l *Limiter) storeFailure(class, key string, rule Rule, now time.Time, err error) (Decision, error) {
	if rule.FailOpen {
		l.log.Warn("rate limit store unavailable, allowing request",
			"class", class, "client_key", key, "error", err)
		return Decision{Limit: rule.Limit, Remaining: rule.Limit, ResetAt: now.Add(rule.Window), Degraded: true}, nil
	}
	return Decision{}, &apperr.PersistenceError{Op: "rate limit " + class, Err: err}
}
