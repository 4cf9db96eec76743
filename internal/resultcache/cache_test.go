package resultcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/result"
)

type countingLoader struct {
	calls   atomic.Int32
	results map[string]result.TestResult
}

func (l *countingLoader) LoadResult(_ context.Context, id string) (result.TestResult, error) {
	l.calls.Add(1)
	r, ok := l.results[id]
	if !ok {
		return result.TestResult{}, ErrNotFound
	}
	return r, nil
}

var at = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func sample(id string) result.TestResult {
	return result.TestResult{TestType: "phq9", SessionID: id, TotalScore: 7, Severity: "mild", Timestamp: at}
}

func TestGet_HitAfterPutSkipsStorage(t *testing.T) {
	loader := &countingLoader{results: map[string]result.TestResult{"X": sample("X")}}
	c := New(kv.NewMemory(nil), loader, 0, nil)
	ctx := context.Background()

	c.Put(ctx, sample("X"))
	got, err := c.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.TotalScore)
	assert.Equal(t, int32(0), loader.calls.Load())
}

func TestGet_MissPopulates(t *testing.T) {
	loader := &countingLoader{results: map[string]result.TestResult{"X": sample("X")}}
	c := New(kv.NewMemory(nil), loader, 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, "mild", got.Severity)
	}
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestGet_NotFound(t *testing.T) {
	loader := &countingLoader{results: map[string]result.TestResult{}}
	c := New(kv.NewMemory(nil), loader, 0, nil)
	_, err := c.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	fc := clock.NewFake(at)
	loader := &countingLoader{results: map[string]result.TestResult{"X": sample("X")}}
	c := New(kv.NewMemory(fc), loader, time.Hour, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "X")
	require.NoError(t, err)
	fc.Advance(time.Hour)
	_, err = c.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestGet_ConcurrentMissesAreConsistent(t *testing.T) {
	loader := &countingLoader{results: map[string]result.TestResult{"X": sample("X")}}
	c := New(kv.NewMemory(nil), loader, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(context.Background(), "X")
			assert.NoError(t, err)
			assert.Equal(t, 7.0, got.TotalScore)
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, loader.calls.Load(), int32(1))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("down") }

func TestGet_CacheFailureFallsThrough(t *testing.T) {
	loader := &countingLoader{results: map[string]result.TestResult{"X": sample("X")}}
	c := New(failingStore{}, loader, 0, nil)
	got, err := c.Get(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "X", got.SessionID)
}
