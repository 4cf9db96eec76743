package httpapi

import (
	"errors"
	"fmt"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhisek/psytest/internal/apperr"
)

// allowedContentTypes is the whitelist for mutating methods.
var allowedContentTypes = map[string]bool{
	"application/json": true,
}

// structural enforces required headers, the body ceiling and the
// content-type whitelist before any other processing.
func (s *server) structural(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var missing []apperr.Violation
		for _, h := range s.opts.RequiredHeaders {
			if strings.TrimSpace(r.Header.Get(h)) == "" {
				missing = append(missing, apperr.Violation{Field: "header." + h, Message: "is required"})
			}
		}
		if len(missing) > 0 {
			s.fail(w, r, &apperr.ValidationError{Violations: missing})
			return
		}

		if r.ContentLength > s.opts.BodyLimit {
			s.fail(w, r, &apperr.PayloadTooLargeError{Limit: s.opts.BodyLimit})
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.opts.BodyLimit)
		}

		if mutating(r.Method) {
			ct := r.Header.Get("Content-Type")
			mt, _, err := mime.ParseMediaType(ct)
			if ct == "" || err != nil || !allowedContentTypes[strings.ToLower(mt)] {
				s.fail(w, r, &apperr.UnsupportedMediaTypeError{ContentType: ct})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// rateLimit counts the request against class for the client key and sets
// the X-RateLimit-* headers.
func (s *server) rateLimit(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.opts.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			d, err := s.opts.Limiter.Allow(r.Context(), class, s.clientKey(r))
			if err != nil {
				var rle *apperr.RateLimitedError
				if errors.As(err, &rle) {
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rle.Limit))
					w.Header().Set("X-RateLimit-Remaining", "0")
					w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(rle.RetryAfter)))
				}
				s.fail(w, r, err)
				return
			}
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// clientKey identifies the caller for rate limiting.
func (s *server) clientKey(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get(s.opts.ClientIPHeader)); ip != "" {
		return ip
	}
	if s.opts.FallbackToRemoteAddr {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
	}
	return UnknownClient
}

// logRequests emits one structured line per request.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// recoverPanics turns handler panics into a 500 envelope.
func (s *server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.log.Error("handler panic", "panic", fmt.Sprint(v), "path", r.URL.Path,
					"request_id", middleware.GetReqID(r.Context()))
				s.fail(w, r, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
