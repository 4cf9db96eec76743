// Package client talks to a psytest server. Client implements
// session.Submitter so a local session machine can submit remotely.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
	"github.com/abhisek/psytest/internal/submit"
)

// UserAgent is sent with every request.
const UserAgent = "psytest-cli"

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Details   []apperr.Violation
	RequestID string

	// RetryAfter is parsed from the Retry-After header of 429 responses.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf("; %s: %s", d.Field, d.Message)
	}
	return msg
}

// Client is an HTTP client for the psytest API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for baseURL. A nil httpClient uses a client with a
// 30s timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: httpClient}, nil
}

var _ session.Submitter = (*Client)(nil)

// Submit posts a completed session and returns the scored result. The
// machine's session id is sent so retries are idempotent.
func (c *Client) Submit(ctx context.Context, sub session.Submission) (result.TestResult, error) {
	body := submit.Request{
		SessionID:  sub.SessionID,
		Answers:    sub.Answers,
		DurationMs: sub.Duration.Milliseconds(),
	}
	var resp submit.Response
	path := "/api/tests/" + url.PathEscape(sub.TestType) + "/submit"
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return result.TestResult{}, err
	}
	// The submit response is a projection; fetch the full result.
	return c.Result(ctx, resp.SessionID)
}

// Result fetches the stored result for a session.
func (c *Client) Result(ctx context.Context, sessionID string) (result.TestResult, error) {
	var res result.TestResult
	err := c.do(ctx, http.MethodGet, "/api/results/"+url.PathEscape(sessionID), nil, &res)
	return res, err
}

// Tests lists the server's test types.
func (c *Client) Tests(ctx context.Context) ([]catalog.TestInfo, error) {
	var tests []catalog.TestInfo
	err := c.do(ctx, http.MethodGet, "/api/tests", nil, &tests)
	return tests, err
}

// Feedback submits a rating and comment.
func (c *Client) Feedback(ctx context.Context, req submit.FeedbackRequest) (submit.FeedbackResponse, error) {
	var resp submit.FeedbackResponse
	err := c.do(ctx, http.MethodPost, "/api/feedback", req, &resp)
	return resp, err
}

type envelope struct {
	Success   bool               `json:"success"`
	Data      json.RawMessage    `json:"data"`
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	Details   []apperr.Violation `json:"details"`
	RequestID string             `json:"requestId"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Status:    resp.StatusCode,
			Code:      env.Code,
			Message:   env.Error,
			Details:   env.Details,
			RequestID: env.RequestID,
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
