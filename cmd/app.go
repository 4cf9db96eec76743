package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/psytest/internal/catalog"
	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/resultcache"
	"github.com/abhisek/psytest/internal/store"
	"github.com/abhisek/psytest/internal/submit"
	"github.com/abhisek/psytest/internal/testtype"
)

// deps is everything a command needs to score and store sessions.
type deps struct {
	store   *store.Store
	kv      *store.KV
	catalog *catalog.Static
	types   *testtype.Registry
	cache   *resultcache.Cache
	service *submit.Service
}

// openDeps opens the store and builds the submission service.
func openDeps(cmd *cobra.Command) (*deps, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	types, cat, err := testtype.Builtin()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load test types: %w", err)
	}

	hasher, err := newHasher()
	if err != nil {
		st.Close()
		return nil, err
	}

	kvs := st.KV(clock.System{})
	cache := resultcache.New(kvs, submit.StoreLoader(st.Sessions()), cfg.Cache.ResultTTL, logger)
	svc, err := submit.New(submit.Options{
		Catalog:     cat,
		Descriptors: types,
		Sessions:    st.Sessions(),
		Feedback:    st.Feedback(),
		Cache:       cache,
		Hasher:      hasher,
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &deps{store: st, kv: kvs, catalog: cat, types: types, cache: cache, service: svc}, nil
}

func (d *deps) Close() error {
	return d.store.Close()
}

func newHasher() (*submit.IPHasher, error) {
	if cfg.Privacy.IPHashKey == "" {
		logger.Warn("privacy.ip_hash_key not set, using a per-process key; IP hashes will not be comparable across restarts")
		return submit.RandomIPHasher()
	}
	return submit.NewIPHasher([]byte(cfg.Privacy.IPHashKey))
}
