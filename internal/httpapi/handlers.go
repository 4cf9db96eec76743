package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhisek/psytest/internal/apperr"
	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/submit"
)

// ListingKey is the kv key of the cached test listing.
const ListingKey = "catalog:tests"

func (s *server) submit(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := submit.DecodeSubmission(raw, chi.URLParam(r, "testType"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.opts.Service.Submit(r.Context(), req, s.clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, submit.NewResponse(res))
}

func (s *server) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Service.Result(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusOK, res)
}

func (s *server) feedback(w http.ResponseWriter, r *http.Request) {
	raw, err := s.readBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := submit.DecodeFeedback(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp, err := s.opts.Service.SubmitFeedback(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, r, http.StatusCreated, resp)
}

// listTests serves the catalog listing through the kv cache.
func (s *server) listTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.opts.Cache != nil {
		if data, err := s.opts.Cache.Get(ctx, ListingKey); err == nil {
			var tests []catalog.TestInfo
			if json.Unmarshal(data, &tests) == nil {
				s.ok(w, r, http.StatusOK, tests)
				return
			}
		}
	}

	tests := s.opts.Catalog.TestTypes()
	if s.opts.Cache != nil {
		if data, err := json.Marshal(tests); err == nil {
			if err := s.opts.Cache.Set(ctx, ListingKey, data, s.opts.ListingTTL); err != nil {
				s.log.Warn("listing cache write failed", "error", err)
			}
		}
	}
	s.ok(w, r, http.StatusOK, tests)
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health.Ping(r.Context()); err != nil {
			s.log.Error("health check failed", "error", err)
			s.fail(w, r, err)
			return
		}
	}
	s.ok(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// readBody reads the request body, mapping the MaxBytesReader error to a
// 413.
func (s *server) readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &apperr.PayloadTooLargeError{Limit: mbe.Limit}
		}
		return nil, apperr.Invalid("", "read request body: %v", err)
	}
	return raw, nil
}

// clientIP is the address hashed into the session record.
func (s *server) clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get(s.opts.ClientIPHeader)); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *server) ok(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, apperr.OK(data, middleware.GetReqID(r.Context()), s.clock.Now().UTC()))
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, apperr.Failure(err, middleware.GetReqID(r.Context()), s.clock.Now().UTC()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFoundRoute(r *http.Request) error {
	return &apperr.NotFoundError{Kind: "route", ID: r.URL.Path}
}
