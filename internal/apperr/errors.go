package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Violation is a single field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError indicates malformed, missing or out-of-range input.
// Always recoverable by correcting the request.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid is shorthand for a ValidationError with one violation.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Violations: []Violation{{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}}}
}

// RateLimitedError indicates the client exhausted its window quota.
type RateLimitedError struct {
	Class      string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s (limit %d, retry after %s)", e.Class, e.Limit, e.RetryAfter)
}

// NotFoundError indicates an unknown test type or session.
type NotFoundError struct {
	Kind string // "test type", "session", "result"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// PersistenceError wraps a durable-storage failure. These always
// propagate to the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ContentPolicyError indicates text rejected by a strict-tier category.
type ContentPolicyError struct {
	Categories []string
}

func (e *ContentPolicyError) Error() string {
	return "content rejected by policy: " + strings.Join(e.Categories, ", ")
}

// PayloadTooLargeError indicates the request body exceeds the ceiling.
type PayloadTooLargeError struct {
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.Limit)
}

// UnsupportedMediaTypeError indicates a content type outside the whitelist.
type UnsupportedMediaTypeError struct {
	ContentType string
}

func (e *UnsupportedMediaTypeError) Error() string {
	if e.ContentType == "" {
		return "missing content type"
	}
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// Status maps an error to its HTTP status code. Unknown errors are 500.
func Status(err error) int {
	var (
		ve  *ValidationError
		rle *RateLimitedError
		nfe *NotFoundError
		cpe *ContentPolicyError
		ple *PayloadTooLargeError
		ume *UnsupportedMediaTypeError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &ple):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ume):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &cpe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rle):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for an error.
func Code(err error) string {
	switch Status(err) {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "content_policy"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal_error"
	}
}
