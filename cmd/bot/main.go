package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/classify"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/config"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/dispatch"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/enrich"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/followup"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/httpapi"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ingest"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/logging"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/marketplace"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/observability"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/publish"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/ratelimit"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/scheduler"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage"
	chstore "github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/clickhouse"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/memory"
	"github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/migrations"
	pgstore "github.com/ethereumidentitykit/ens-market-bot-sub000/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (env vars apply either way)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Error().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, *useMemory, logger)
	done <- err

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, useMemory bool, logger zerolog.Logger) error {
	metrics := observability.NewMetrics("")

	// Stores: memory by default for local runs, postgres in production.
	var (
		records  storage.RecordStore     = memory.NewRecordStore()
		cursors  storage.CursorStore     = memory.NewCursorStore()
		window   storage.RateWindowStore = memory.NewRateWindowStore()
		settings storage.SettingStore    = memory.NewSettingStore()
		outcomes storage.OutcomeLog      = memory.NewOutcomeLog()
	)

	if !useMemory {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}

		records = pgstore.NewRecordStore(pool)
		cursors = pgstore.NewCursorStore(pool)
		window = pgstore.NewRateWindowStore(pool)
		settings = pgstore.NewSettingStore(pool)
	}

	if cfg.Clickhouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		outcomes = chstore.NewOutcomeLog(conn)
	}

	// Ingestion pipeline shared by every adapter.
	enricher := enrich.NewEnricher(enrich.Options{
		Metadata: enrich.PassthroughResolver{},
		Oracle:   &enrich.StaticOracle{},
		Metrics:  metrics,
		Logger:   logger,
	})
	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		Dedup:    ingest.NewDeduplicator(records, logger),
		Filter:   ingest.NewFilter(cfg.Filter, classify.NewClubClassifier(), logger),
		Enricher: enricher,
		Records:  records,
		Outcomes: outcomes,
		Metrics:  metrics,
		Logger:   logger,
	})
	push := ingest.NewPushAdapter(pipeline, logger)

	// Dispatch side: limiter, publisher, notification bus, consumer.
	limiter := ratelimit.New(window, cfg.Limiter.DailyCap, cfg.Limiter.Window)
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NopLogger{})
	defer bus.Close()

	dispatcher := dispatch.New(dispatch.Options{
		Records:   records,
		Limiter:   limiter,
		Publisher: publish.NewLogPublisher(logger),
		Notifier:  bus,
		Metrics:   metrics,
		Logger:    logger,
	})

	consumer := followup.NewConsumer(bus, followup.ActionFunc(func(_ context.Context, recordID string) error {
		logger.Info().Str("record_id", recordID).Msg("record went live")
		return nil
	}), metrics, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("follow-up consumer stopped")
		}
	}()

	// Scheduler: one poll runner per category plus the dispatcher.
	sched := scheduler.New(scheduler.Options{
		Settings:     settings,
		ErrorCeiling: cfg.Scheduler.ErrorCeiling,
		Metrics:      metrics,
		Logger:       logger,
	})

	if cfg.Marketplace.BaseURL != "" {
		client := marketplace.NewClient(marketplace.ClientOptions{
			BaseURL:           cfg.Marketplace.BaseURL,
			RequestsPerSecond: cfg.Marketplace.RequestsPerSecond,
			Timeout:           cfg.Marketplace.Timeout,
			PageSize:          cfg.Marketplace.PageSize,
		})
		pollers := []struct {
			fetcher  ingest.Fetcher
			interval time.Duration
		}{
			{marketplace.NewSalesFetcher(client, logger), cfg.Scheduler.SalesInterval},
			{marketplace.NewRegistrationsFetcher(client, logger), cfg.Scheduler.RegistrationsInterval},
			{marketplace.NewBidsFetcher(client, logger), cfg.Scheduler.BidsInterval},
		}
		for _, p := range pollers {
			adapter := ingest.NewPollAdapter(ingest.PollAdapterOptions{
				Fetcher:     p.fetcher,
				Cursors:     cursors,
				Pipeline:    pipeline,
				MaxLookback: cfg.Scheduler.MaxLookback,
				PageCap:     cfg.Scheduler.PageCap,
				Metrics:     metrics,
				Logger:      logger,
			})
			if err := sched.Register(adapter, p.interval); err != nil {
				return err
			}
		}
	} else {
		logger.Warn().Msg("marketplace base url not set, poll adapters disabled")
	}

	if err := sched.Register(dispatcher, cfg.Scheduler.DispatchInterval); err != nil {
		return err
	}

	if err := sched.ResumeIfEnabled(ctx); err != nil {
		return err
	}
	defer sched.Shutdown()

	// Websocket push stream.
	if cfg.Marketplace.WSEndpoint != "" {
		stream, err := marketplace.NewStream(ctx, cfg.Marketplace.WSEndpoint, nil, logger)
		if err != nil {
			return fmt.Errorf("connect stream: %w", err)
		}
		defer stream.Close()
		go push.Consume(ctx, stream.Events())
	}

	server := httpapi.New(httpapi.Options{
		Addr:      cfg.HTTP.Addr,
		Scheduler: sched,
		Records:   records,
		Limiter:   limiter,
		Push:      push,
		Logger:    logger,
	})

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	return ctx.Err()
}
