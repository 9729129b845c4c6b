package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	clts "copybot/clients"
	"copybot/config"
	"copybot/internal/app"
	"copybot/storage"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	// storeConnectTimeout is the maximum time to wait for the database
	storeConnectTimeout = 30 * time.Second
)

func main() {
	// Local development reads settings from a .env file; missing file is fine.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	cfg := config.Load()
	logger.Info("starting copybot",
		zap.Bool("isProd", cfg.IsProd),
		zap.Strings("networks", cfg.Networks),
		zap.String("buildCommit", app.BuildCommit),
	)

	// Initialize clients
	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Notifier.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	// Postgres when configured, in-memory otherwise
	var store storage.Store
	if cfg.Postgres.DSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		pg, err := storage.NewPostgres(connectCtx, cfg.Postgres.DSN)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		store = pg
		logger.Info("using postgres store")
	} else {
		store = storage.NewMemory()
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
	}
	defer store.Close()

	runnerConfig := app.RunnerConfig{
		Networks: cfg.Networks,
		RateLimiter: app.RateLimiterConfig{
			MaxRequests: cfg.RateLimiter.MaxRequests,
			TimeWindow:  cfg.RateLimiter.TimeWindow,
			FixedMargin: cfg.RateLimiter.FixedMargin,
			MaxWait:     cfg.RateLimiter.MaxWait,
			MaxBackoff:  cfg.RateLimiter.MaxBackoff,
			BackoffStep: cfg.RateLimiter.BackoffStep,
			DecayStep:   cfg.RateLimiter.DecayStep,
		},
		Poller: app.PollerConfig{
			PollInterval: cfg.Poller.PollInterval,
			BatchSize:    cfg.Poller.BatchSize,
			BatchPause:   cfg.Poller.BatchPause,
			TxFetchLimit: cfg.Poller.TxFetchLimit,
		},
		Dedup: app.DedupConfig{
			TTL:           cfg.Dedup.TTL,
			SweepInterval: cfg.Dedup.SweepInterval,
		},
		Classifier: app.ClassifierConfig{
			MinNativeDelta: cfg.Classifier.MinNativeDelta,
		},
		Replicator: app.ReplicatorConfig{
			DustAmount:       cfg.Replicator.DustAmount,
			MaxMevRisk:       cfg.Replicator.MaxMevRisk,
			FrontrunNetworks: toNetworkSet(cfg.Replicator.FrontrunNetworks),
		},
		Confirmation: app.ConfirmationConfig{
			Timeout: cfg.Confirmation.Timeout,
		},
		TrailingStop: app.TrailingStopConfig{
			CheckInterval: cfg.TrailingStop.CheckInterval,
		},
	}

	runner := app.NewRunner(
		logger,
		runnerConfig,
		store,
		clients.ChainSources(),
		clients.TokenData,
		clients.Executor,
		clients.Prices,
		clients.Notifier,
	)

	// Streaming prices feed the trailing stop monitor; polling covers misses.
	go clients.PriceFeed.Run(ctx)

	if cfg.StatsServer.Enabled {
		statsServer := app.NewStatsServer(logger, runner, cfg.StatsServer.Port)
		go statsServer.Run(ctx)
	}

	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}

func toNetworkSet(networks []string) map[string]bool {
	set := make(map[string]bool, len(networks))
	for _, n := range networks {
		set[n] = true
	}
	return set
}
