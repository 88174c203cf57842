// Command api serves the authenticated shot prediction API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/auth"
	"github.com/hoopsml/shotpredict/internal/config"
	"github.com/hoopsml/shotpredict/internal/handlers"
	"github.com/hoopsml/shotpredict/internal/logging"
	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/pipeline"
	"github.com/hoopsml/shotpredict/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("API exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sugar := logger.Sugar()

	// =========================================================================
	// STORAGE
	// =========================================================================

	pg, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.Ping(initCtx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if err := logic.EnsureSchema(initCtx, pg); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	var ch driver.Conn
	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			return fmt.Errorf("clickhouse dsn: %w", err)
		}
		if ch, err = clickhouse.Open(opts); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer ch.Close()
		if err := worker.EnsureAuditTable(initCtx, ch); err != nil {
			return err
		}
	}

	// =========================================================================
	// SERVICES
	// =========================================================================

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	store := logic.NewPostgresStore(pg)
	authSvc := logic.NewAuthService(store, tokens)

	if created, err := logic.EnsureUser(initCtx, authSvc, cfg.DefaultUser, cfg.DefaultPass); err != nil {
		return fmt.Errorf("default user: %w", err)
	} else if created {
		sugar.Infow("Created default user", "username", cfg.DefaultUser)
	}

	var predictor logic.Predictor
	if cfg.PredictionServiceURL != "" {
		predictor = logic.NewRemotePredictor(logic.RemoteConfig{
			BaseURL:     cfg.PredictionServiceURL,
			Timeout:     cfg.PredictionTimeout,
			MaxFailures: cfg.BreakerFailures,
			OpenTimeout: cfg.BreakerTimeout,
		}, logger)
		sugar.Infow("Using remote prediction service", "url", cfg.PredictionServiceURL)
	} else {
		local := logic.NewLocalPredictor(pipeline.RegistryConfig(cfg.Pipeline), logger)
		watcher := worker.NewModelWatcher(worker.WatcherConfig{
			Reloader:     local,
			PollInterval: cfg.ModelPollInterval,
			Redis:        subscriber(rdb),
			Channel:      pipeline.ModelChannel,
			Logger:       logger,
		})
		go watcher.Run(ctx)
		predictor = local
	}

	hcfg := handlers.Config{
		Postgres:          pg,
		Logger:            logger,
		Auth:              authSvc,
		Predictions:       store,
		Predictor:         predictor,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AuthRateLimit:     cfg.AuthRateLimit,
	}
	if rdb != nil {
		hcfg.Redis = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var pool *worker.Pool
	if ch != nil {
		pool = worker.NewPool(worker.PoolConfig{
			WorkerCount:   cfg.WorkerCount,
			QueueSize:     cfg.QueueSize,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			ClickHouse:    ch,
			Logger:        logger,
		})
		pool.Start(ctx)
		hcfg.AuditQueue = pool
		hcfg.ClickHouse = ch
	}

	// =========================================================================
	// HTTP
	// =========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.New(hcfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("API listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	sugar.Info("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("HTTP shutdown incomplete", "error", err)
	}
	if pool != nil {
		pool.Stop()
	}
	return nil
}

// subscriber keeps a nil client from becoming a non-nil interface.
func subscriber(rdb *redis.Client) worker.Subscriber {
	if rdb == nil {
		return nil
	}
	return rdb
}
