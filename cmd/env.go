package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/automation"
	"github.com/sells-group/leadscout/internal/contact"
	"github.com/sells-group/leadscout/internal/discovery"
	"github.com/sells-group/leadscout/internal/pipeline"
	"github.com/sells-group/leadscout/internal/store"
	"github.com/sells-group/leadscout/pkg/google"
	"github.com/sells-group/leadscout/pkg/hunter"
)

// memoryCacheTTL caps how long a scan result lives in process memory
// before the shared store is consulted again.
const memoryCacheTTL = time.Hour

// pipelineEnv holds the store, clients and orchestrator shared by the
// search and serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	MemCache     *automation.MemoryCache
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadscout.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFinder() *contact.Finder {
	hc := hunter.NewClient(cfg.Hunter.Key, hunter.WithBaseURL(cfg.Hunter.BaseURL))
	return contact.NewFinder(hc, contact.Config{
		MinConfidence: cfg.Contact.MinConfidence,
		Pause:         time.Duration(cfg.Contact.PauseMs) * time.Millisecond,
		Circuit:       cfg.Circuit.Policy(),
	})
}

// initPipeline validates config for mode, opens the store and wires the
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	googleOpts := []google.Option{google.WithBaseURL(cfg.Google.BaseURL)}
	if cfg.Google.GeocodeURL != "" {
		googleOpts = append(googleOpts, google.WithGeocodeURL(cfg.Google.GeocodeURL))
	}
	disc := discovery.NewClient(google.NewClient(cfg.Google.Key, googleOpts...), discovery.Config{
		RateLimit: cfg.Google.RateLimit,
		Retry:     cfg.Retry.Policy(),
	})

	sigs, err := automation.LoadSignatures(cfg.Automation.SignaturesPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load automation signatures")
	}
	zap.L().Debug("automation signatures loaded",
		zap.String("path", cfg.Automation.SignaturesPath),
		zap.Int("count", len(sigs)),
	)

	ttl := time.Duration(cfg.Automation.CacheTTLHours) * time.Hour
	memCache := automation.NewMemoryCache(min(memoryCacheTTL, max(ttl, time.Minute)))
	detector := automation.NewDetector(
		automation.NewHTTPFetcher(time.Duration(cfg.Automation.TimeoutSecs)*time.Second),
		automation.WithSignatures(sigs),
		automation.WithCache(automation.NewTieredCache(memCache, automation.NewStoreCache(st, ttl), ttl)),
	)

	orch := pipeline.New(pipeline.Config{EnrichConcurrency: cfg.Pipeline.EnrichConcurrency}, st, disc, newFinder(), detector)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		MemCache:     memCache,
	}, nil
}
