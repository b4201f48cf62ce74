package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/api"
	"github.com/sells-group/leadscout/internal/automation"
	"github.com/sells-group/leadscout/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background search runner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := pipeline.NewRunner(env.Orchestrator.Run, int64(cfg.Pipeline.MaxConcurrentRuns))

		sweeper, err := newSweeper(cfg.Cache.SweepSchedule, env.Store, env.MemCache)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer func() { <-sweeper.Stop().Done() }()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.New(env.Store, runner, cfg.Server.CORSOrigins).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("max_concurrent_runs", cfg.Pipeline.MaxConcurrentRuns),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := runner.Wait(waitCtx); err != nil {
			zap.L().Warn("searches still running at shutdown", zap.Int("active", runner.Active()), zap.Error(err))
		}
		return nil
	},
}

// detectionSweeper is the part of the store the cache sweep needs.
type detectionSweeper interface {
	DeleteExpiredDetections(ctx context.Context) (int, error)
}

// newSweeper schedules removal of expired scan results from the store
// and the in-process cache.
func newSweeper(schedule string, st detectionSweeper, mem *automation.MemoryCache) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { sweepCaches(context.Background(), st, mem) }); err != nil {
		return nil, eris.Wrapf(err, "schedule cache sweep %q", schedule)
	}
	return c, nil
}

func sweepCaches(ctx context.Context, st detectionSweeper, mem *automation.MemoryCache) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	rows, err := st.DeleteExpiredDetections(ctx)
	if err != nil {
		zap.L().Warn("cache sweep failed", zap.Error(err))
	}
	entries := 0
	if mem != nil {
		entries = mem.Sweep()
	}
	zap.L().Info("cache sweep complete",
		zap.Int("store_rows", rows),
		zap.Int("memory_entries", entries),
	)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
