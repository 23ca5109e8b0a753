package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/config"
	"github.com/gosuda/praxis/internal/entity"
	"github.com/gosuda/praxis/internal/server"
	"github.com/gosuda/praxis/internal/store/postgres"
	redisstore "github.com/gosuda/praxis/internal/store/redis"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the change-feed triggers and the retention job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	conns, err := maxConns(cfg)
	if err != nil {
		return err
	}

	// Connect to PostgreSQL and make sure the schema exists.
	store, err := postgres.New(ctx, cfg.Database.DSN(), conns)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := audit.NewMetrics(reg)

	feed := redisstore.NewChangeFeed(pubsub, cfg.Audit.ConsumerGroup, cfg.Audit.ConsumerName, cfg.Audit.StreamMaxLen)
	recorder := audit.NewRecorder(store.Audit(), pubsub, metrics)
	querier := audit.NewQueryService(store.Audit(), cfg.Audit.CleanupBatch, metrics)
	documents := entity.NewService(store.Documents(), feed, cfg.Audit.Collections)
	watcher := audit.NewWatcher(feed, audit.NewTriggers(cfg.Audit.Collections, recorder, metrics)...)

	var retention *audit.RetentionScheduler
	if cfg.Audit.SchedulerEnabled() {
		retention, err = audit.NewRetentionScheduler(querier, cfg.Audit.RetentionSchedule, cfg.Audit.RetentionDays, cfg.Audit.Location())
		if err != nil {
			return err
		}
		retention.Start()
		log.Info().
			Str("schedule", cfg.Audit.RetentionSchedule).
			Str("timezone", cfg.Audit.Timezone).
			Int("days_to_keep", cfg.Audit.RetentionDays).
			Msg("retention job scheduled")
	}

	srv := server.New(ctx, cfg, server.Deps{
		DB:        store,
		Redis:     pubsub,
		Live:      pubsub,
		Recorder:  recorder,
		Querier:   querier,
		Documents: documents,
		Metrics:   reg,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Strs("collections", cfg.Audit.Collections).Msg("starting change-feed triggers")
		if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		return srv.Start(gctx)
	})

	// Block until shutdown signal or a component failure.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if retention != nil {
			retention.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
