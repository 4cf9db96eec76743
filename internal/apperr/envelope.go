package apperr

import (
	"errors"
	"net/http"
	"time"
)

// Envelope is the consistent wire shape for every API response.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      any         `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Details   []Violation `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId"`
}

// OK wraps data in a success envelope.
func OK(data any, requestID string, now time.Time) Envelope {
	return Envelope{
		Success:   true,
		Data:      data,
		Timestamp: now,
		RequestID: requestID,
	}
}

// Failure builds an error envelope. Internal errors are reported with a
// generic message; their text never reaches the client.
func Failure(err error, requestID string, now time.Time) Envelope {
	env := Envelope{
		Success:   false,
		Code:      Code(err),
		Timestamp: now,
		RequestID: requestID,
	}
	if Status(err) == http.StatusInternalServerError {
		env.Error = "internal server error"
		return env
	}
	env.Error = err.Error()

	var ve *ValidationError
	if errors.As(err, &ve) {
		env.Error = "validation failed"
		env.Details = ve.Violations
	}
	return env
}
