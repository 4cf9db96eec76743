package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/httpapi"
	"github.com/abhisek/psytest/internal/ratelimit"
	"github.com/abhisek/psytest/internal/retention"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP submission API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	if cfg.Retention.Enabled {
		sw := &retention.Sweeper{
			Sessions: d.store.Sessions(),
			Feedback: d.store.Feedback(),
			KV:       d.kv,
			MaxAge:   cfg.Retention.MaxAge,
			Logger:   logger,
		}
		if err := sw.Start(cfg.Retention.Interval); err != nil {
			return err
		}
		defer sw.Stop()
	}

	handler, err := httpapi.NewRouter(httpapi.Options{
		Service:              d.service,
		Catalog:              d.catalog,
		Limiter:              ratelimit.New(d.kv, cfg.RateLimits, nil, logger),
		Cache:                d.kv,
		ListingTTL:           cfg.Cache.ListingTTL,
		Health:               d.store,
		Logger:               logger,
		BodyLimit:            cfg.Server.BodyLimit,
		RequiredHeaders:      cfg.Server.RequiredHeaders,
		ClientIPHeader:       cfg.Server.ClientIPHeader,
		FallbackToRemoteAddr: cfg.Server.FallbackToRemoteAddr,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	logger.Info("starting server", "addr", cfg.Server.Addr, "db_dialect", d.store.Dialect())
	return httpapi.Serve(ctx, cfg.Server.Addr, handler, logger)
}
