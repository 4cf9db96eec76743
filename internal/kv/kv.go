// Package kv defines the key-value store used for rate-limit counters,
// the result cache and client progress snapshots.
package kv

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abhisek/psytest/internal/clock"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("kv: key not found")

// Store is a TTL-aware key-value store. A zero ttl means no expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Purger is implemented by stores that can drop expired entries in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

// NewMemory creates an empty in-memory store. A nil clock uses the system clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.System{}
	}
	return &Memory{clock: c, entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(e) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// PurgeExpired removes all expired entries and returns how many were dropped.
func (m *Memory) PurgeExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt)
}
