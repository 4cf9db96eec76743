package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// scriptedSubmitter returns errs in order, then succeeds.
type scriptedSubmitter struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedSubmitter) Submit(_ context.Context, sub session.Submission) (result.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return result.TestResult{}, err
	}
	return result.TestResult{SessionID: sub.SessionID, TotalScore: 5}, nil
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	inner := &scriptedSubmitter{}
	res, err := WithRetry(inner, retryConfig()).Submit(context.Background(), session.Submission{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID != "s1" {
		t.Fatalf("unexpected session id: %s", res.SessionID)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	inner := &scriptedSubmitter{errs: []error{
		&APIError{Status: http.StatusServiceUnavailable},
		errors.New("connection reset"),
	}}
	_, err := WithRetry(inner, retryConfig()).Submit(context.Background(), session.Submission{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	inner := &scriptedSubmitter{errs: []error{
		&APIError{Status: 500}, &APIError{Status: 500}, &APIError{Status: 500},
	}}
	_, err := WithRetry(inner, retryConfig()).Submit(context.Background(), session.Submission{})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetry_ClientErrorsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity} {
		inner := &scriptedSubmitter{errs: []error{&APIError{Status: status}}}
		_, err := WithRetry(inner, retryConfig()).Submit(context.Background(), session.Submission{})
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if inner.calls != 1 {
			t.Fatalf("status %d: expected 1 call, got %d", status, inner.calls)
		}
	}
}

func TestRetry_RespectsRetryAfter(t *testing.T) {
	r := &RetrySubmitter{config: retryConfig()}
	got := r.backoff(0, &APIError{Status: http.StatusTooManyRequests, RetryAfter: 7 * time.Second})
	if got != 7*time.Second {
		t.Fatalf("backoff = %v, want 7s", got)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	inner := &scriptedSubmitter{errs: []error{context.Canceled}}
	_, err := WithRetry(inner, retryConfig()).Submit(context.Background(), session.Submission{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 call, got %d", inner.calls)
	}
}
