// Command predictor serves the latest promoted model over HTTP.
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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/config"
	"github.com/hoopsml/shotpredict/internal/handlers"
	"github.com/hoopsml/shotpredict/internal/logging"
	"github.com/hoopsml/shotpredict/internal/logic"
	"github.com/hoopsml/shotpredict/internal/pipeline"
	"github.com/hoopsml/shotpredict/internal/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.LoadPredictorService()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Predictor exited", zap.Error(err))
	}
}

func run(cfg config.PredictorService, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sugar := logger.Sugar()

	wcfg := worker.WatcherConfig{
		PollInterval: cfg.PollInterval,
		Channel:      pipeline.ModelChannel,
		Logger:       logger,
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		wcfg.Redis = rdb
	}

	model := logic.NewLocalPredictor(pipeline.RegistryConfig(cfg.Pipeline), logger)
	wcfg.Reloader = model
	watcher := worker.NewModelWatcher(wcfg)
	go watcher.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handlers.NewServing(model, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Predictor listening", "addr", srv.Addr, "model_dir", cfg.Pipeline.ModelDir)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("HTTP shutdown incomplete", "error", err)
	}
	<-watcher.Done()
	return nil
}
