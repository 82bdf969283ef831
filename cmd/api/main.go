package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/contact-distributor/internal/cache"
	"github.com/iago/contact-distributor/internal/config"
	"github.com/iago/contact-distributor/internal/events"
	"github.com/iago/contact-distributor/internal/gate"
	httpserver "github.com/iago/contact-distributor/internal/http"
	"github.com/iago/contact-distributor/internal/http/handlers"
	"github.com/iago/contact-distributor/internal/ingest"
	"github.com/iago/contact-distributor/internal/repository"
	"github.com/iago/contact-distributor/internal/roster"
	"github.com/iago/contact-distributor/internal/service"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		fmt.Fprintf(os.Stderr, "failed loading .env files: %v\n", err)
	}
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLogLevel(cfg.LogLevel))
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gatePolicy, err := service.ParseGatePolicy(cfg.UploadGatePolicy)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, storeCloser := setupStore(ctx, cfg, logger)
	defer storeCloser()

	uploadGate, publisher, redisCloser := setupRedis(ctx, cfg, logger)
	defer redisCloser()

	agents, fileRoster, err := setupRoster(cfg, logger)
	if err != nil {
		return err
	}

	parser := ingest.NewParser(cfg.UploadMaxBytes)
	distributions := service.NewDistributionService(service.DistributionDependencies{
		Parser: parser,
		Roster: agents,
		Store: cache.NewDistributionCache(store, cache.Config{
			TTL:        cfg.DistributionCacheTTL(),
			MaxEntries: cfg.DistributionCacheMaxEntries,
		}),
		Gate:         uploadGate,
		Publisher:    publisher,
		Logger:       logger,
		ParseTimeout: cfg.UploadParseTimeout(),
		GatePolicy:   gatePolicy,
		GateWait:     cfg.UploadGateWait(),
	})

	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            handlers.NewAPI(distributions, parser.MaxBytes(), logger),
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// uploads may parse, queue at the gate and commit in one request
		WriteTimeout: cfg.UploadParseTimeout() + cfg.UploadGateWait() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("api listening", "addr", server.Addr, "gate_policy", gatePolicy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if fileRoster != nil && cfg.RosterWatch {
		group.Go(func() error {
			if err := fileRoster.Watch(groupCtx); err != nil {
				logger.Warn("roster watch disabled", "path", cfg.RosterFile, "error", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func setupStore(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
) (repository.DistributionStore, func()) {
	if cfg.DatabaseURL != "" {
		pgStore, err := repository.NewPostgresDistributionStore(ctx, cfg.DatabaseURL)
		if err == nil {
			logger.Info("postgres distribution store initialized")
			return pgStore, pgStore.Close
		}
		logger.Warn("failed to initialize postgres store, trying fallbacks", "error", err)
	}

	if cfg.SQLitePath != "" {
		sqliteStore, err := repository.NewSQLiteDistributionStore(cfg.SQLitePath)
		if err == nil {
			logger.Info("sqlite distribution store initialized", "path", cfg.SQLitePath)
			return sqliteStore, func() { _ = sqliteStore.Close() }
		}
		logger.Warn("failed to initialize sqlite store, fallback to memory", "error", err)
	}

	logger.Warn("no durable store configured, distributions are kept in memory")
	return repository.NewMemoryDistributionStore(), func() {}
}

func setupRedis(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
) (gate.Gate, events.Publisher, func()) {
	local := func() (gate.Gate, events.Publisher, func()) {
		return gate.NewLocalGate(), events.NewLogPublisher(logger), func() {}
	}

	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not configured, using in-process upload gate")
		return local()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, fallback to in-process upload gate", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return local()
	}

	publisher, err := events.NewStreamsPublisher(client, events.StreamsConfig{
		Stream: cfg.RedisEventsStream,
		MaxLen: cfg.RedisEventsMaxLen,
	})
	if err != nil {
		_ = client.Close()
		logger.Warn("failed to initialize event stream, fallback to in-process upload gate", "error", err)
		return local()
	}

	logger.Info("redis upload gate initialized", "key", cfg.UploadLockKey, "stream", cfg.RedisEventsStream)
	redisGate := gate.NewRedisGate(client, gate.RedisConfig{
		Key: cfg.UploadLockKey,
		TTL: cfg.UploadLockTTL(),
	})
	// stopped by the closer after server.Shutdown, not by the signal context
	batching := events.NewBatchingPublisher(publisher, events.BatchingConfig{
		MaxBatchSize:  cfg.EventsBatchSize,
		FlushInterval: cfg.EventsBatchFlush(),
	})
	return redisGate, batching, func() {
		batching.Close()
		_ = client.Close()
	}
}

func setupRoster(cfg config.Config, logger *slog.Logger) (roster.Roster, *roster.FileRoster, error) {
	if cfg.RosterFile != "" {
		fileRoster, err := roster.NewFileRoster(cfg.RosterFile, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load roster file: %w", err)
		}
		return fileRoster, fileRoster, nil
	}

	agents, err := roster.ParseAgentList(cfg.RosterAgents)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ROSTER_AGENTS: %w", err)
	}
	if len(agents) == 0 {
		logger.Warn("roster is empty, uploads will be rejected until agents are configured")
	}
	static, err := roster.NewStaticRoster(agents)
	if err != nil {
		return nil, nil, fmt.Errorf("load roster: %w", err)
	}
	return static, nil, nil
}
