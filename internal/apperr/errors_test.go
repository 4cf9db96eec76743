package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Invalid("answers", "is required"), http.StatusBadRequest, "validation_error"},
		{"not found", &NotFoundError{Kind: "session", ID: "x"}, http.StatusNotFound, "not_found"},
		{"too large", &PayloadTooLargeError{Limit: 10}, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"media type", &UnsupportedMediaTypeError{ContentType: "text/plain"}, http.StatusUnsupportedMediaType, "unsupported_media_type"},
		{"content policy", &ContentPolicyError{Categories: []string{"adult"}}, http.StatusUnprocessableEntity, "content_policy"},
		{"rate limited", &RateLimitedError{Class: "submit", Limit: 10, RetryAfter: time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{"persistence", &PersistenceError{Op: "create session", Err: errors.New("disk full")}, http.StatusInternalServerError, "internal_error"},
		{"wrapped", fmt.Errorf("handler: %w", &NotFoundError{Kind: "result", ID: "y"}), http.StatusNotFound, "not_found"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := &PersistenceError{Op: "store result", Err: inner}
	assert.ErrorIs(t, err, inner)
}

var at = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestEnvelopeGolden(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"ok", OK(map[string]string{"status": "ok"}, "req-1", at)},
		{"validation", Failure(&ValidationError{Violations: []Violation{
			{Field: "answers[0].value", Message: "missing value"},
		}}, "req-2", at)},
		{"internal", Failure(&PersistenceError{Op: "create session", Err: errors.New("dsn=secret")}, "req-3", at)},
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.MarshalIndent(tt.env, "", "  ")
			require.NoError(t, err)
			g.Assert(t, "envelope_"+tt.name, data)
		})
	}
}
