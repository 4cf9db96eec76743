// Package httpapi exposes the submission pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
	"github.com/abhisek/psytest/internal/ratelimit"
	"github.com/abhisek/psytest/internal/submit"
)

// Defaults for Options.
const (
	DefaultBodyLimit   int64 = 64 << 10
	DefaultListingTTL        = 900 * time.Second
	DefaultClientIPHdr       = "CF-Connecting-IP"

	// UnknownClient keys every request without a usable client address.
	UnknownClient = "unknown"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the router.
type Options struct {
	Service *submit.Service
	Catalog catalog.Catalog
	Limiter *ratelimit.Limiter

	// Cache holds the test listing. Nil disables listing caching.
	Cache      kv.Store
	ListingTTL time.Duration

	Health Pinger
	Clock  clock.Clock
	Logger *slog.Logger

	// BodyLimit caps request bodies in bytes.
	BodyLimit int64

	// RequiredHeaders must be present on every /api request.
	RequiredHeaders []string

	// ClientIPHeader names the header carrying the connecting client
	// address. FallbackToRemoteAddr keys requests without it by the TCP
	// peer; otherwise they share the UnknownClient bucket.
	ClientIPHeader       string
	FallbackToRemoteAddr bool
}

type server struct {
	opts  Options
	clock clock.Clock
	log   *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Service == nil || opts.Catalog == nil {
		return nil, errors.New("httpapi: service and catalog are required")
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	if opts.ListingTTL <= 0 {
		opts.ListingTTL = DefaultListingTTL
	}
	if opts.ClientIPHeader == "" {
		opts.ClientIPHeader = DefaultClientIPHdr
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &server{opts: opts, clock: opts.Clock, log: opts.Logger.With("component", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, notFoundRoute(r))
	})

	r.Get("/healthz", s.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.structural)

		r.With(s.rateLimit(ratelimit.ClassRead)).Get("/tests", s.listTests)
		r.With(s.rateLimit(ratelimit.ClassRead)).Get("/results/{sessionId}", s.getResult)
		r.With(s.rateLimit(ratelimit.ClassSubmit)).Post("/tests/{testType}/submit", s.submit)
		r.With(s.rateLimit(ratelimit.ClassFeedback)).Post("/feedback", s.feedback)
	})
	return r, nil
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}
