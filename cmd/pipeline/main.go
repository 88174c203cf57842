// Command pipeline runs the batch training pipeline.
//
// Usage:
//
//	shotpredict-pipeline run
//	shotpredict-pipeline train
//	shotpredict-pipeline schedule
//	shotpredict-pipeline sample --ratio 0.05
//	shotpredict-pipeline status
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/config"
	"github.com/hoopsml/shotpredict/internal/logging"
	"github.com/hoopsml/shotpredict/internal/pipeline"
)

var stageHelp = map[pipeline.Stage]string{
	pipeline.StageIngest:   "Append the new-data batch to the raw dataset",
	pipeline.StageProcess:  "Clean and encode the raw dataset",
	pipeline.StageFeatures: "Derive date features and split train/test",
	pipeline.StageTrain:    "Train a model and promote it if it beats the best",
	pipeline.StageInfer:    "Score the test partition with the promoted model",
}

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "shotpredict-pipeline",
		Short:         "Shot prediction training pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	for _, stage := range pipeline.Stages {
		root.AddCommand(stageCmd(stage))
	}
	root.AddCommand(runCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(sampleCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

// withRunner builds the runner and its collaborators, then calls fn with a
// context that ends on SIGINT or SIGTERM.
func withRunner(mutate func(*config.Pipeline), fn func(ctx context.Context, r *pipeline.Runner, cfg config.Pipeline, logger *zap.Logger) error) error {
	cfg := config.LoadPipeline()
	if mutate != nil {
		mutate(&cfg)
	}

	logger, err := logging.New(os.Getenv("ENV"), getLogLevel())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	deps := pipeline.Deps{Logger: logger}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		deps.Locker = pipeline.NewRedisLocker(rdb, 2*cfg.StageTimeout)
		deps.Notifier = pipeline.NewRedisNotifier(rdb)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, pipeline.NewRunner(cfg, deps), cfg, logger)
}

func getLogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// --------------------------------------------------------------------------
// stage commands
// --------------------------------------------------------------------------

func stageCmd(stage pipeline.Stage) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   string(stage),
		Short: stageHelp[stage],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(nil, func(ctx context.Context, r *pipeline.Runner, _ config.Pipeline, _ *zap.Logger) error {
				if !force {
					if err := r.CheckTrigger(stage); err != nil {
						return fmt.Errorf("%w (use --force to run anyway)", err)
					}
				}
				return r.Run(ctx, stage)
			})
		},
	}
	if stage == pipeline.StageProcess || stage == pipeline.StageFeatures {
		cmd.Flags().BoolVar(&force, "force", false, "Run even if the upstream stage has not signalled new output")
	}
	return cmd
}

func runCmd() *cobra.Command {
	var search bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mutate := func(c *config.Pipeline) {
				if cmd.Flags().Changed("search") {
					c.Search = search
				}
			}
			return withRunner(mutate, func(ctx context.Context, r *pipeline.Runner, _ config.Pipeline, _ *zap.Logger) error {
				return r.RunAll(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&search, "search", false, "Grid-search hyperparameters instead of using the configured ones")
	return cmd
}

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd() *cobra.Command {
	var immediate bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the full pipeline on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(nil, func(ctx context.Context, r *pipeline.Runner, cfg config.Pipeline, logger *zap.Logger) error {
				return schedule(ctx, r, cfg, logger, immediate)
			})
		},
	}
	cmd.Flags().BoolVar(&immediate, "now", false, "Also run once at startup")
	return cmd
}

func schedule(ctx context.Context, r *pipeline.Runner, cfg config.Pipeline, logger *zap.Logger, immediate bool) error {
	sugar := logger.Sugar()

	runOnce := func() {
		if err := r.RunAll(ctx); err != nil && ctx.Err() == nil {
			sugar.Errorw("Scheduled run failed", "error", err)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule, runOnce); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	metrics := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Warnw("Metrics server stopped", "error", err)
		}
	}()

	if immediate {
		go runOnce()
	}

	c.Start()
	sugar.Infow("Pipeline scheduler started", "schedule", cfg.Schedule, "metrics_addr", metrics.Addr)

	<-ctx.Done()
	sugar.Info("Shutting down...")

	// Wait for an in-flight run to observe cancellation.
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metrics.Shutdown(shutdownCtx)
}

// --------------------------------------------------------------------------
// sample and status commands
// --------------------------------------------------------------------------

func sampleCmd() *cobra.Command {
	var ratio float64
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw a random sample of the historical data as a new-data batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mutate := func(c *config.Pipeline) {
				if cmd.Flags().Changed("ratio") {
					c.SampleRatio = ratio
				}
			}
			return withRunner(mutate, func(ctx context.Context, r *pipeline.Runner, _ config.Pipeline, _ *zap.Logger) error {
				_, err := r.Sample(ctx)
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&ratio, "ratio", 0.1, "Fraction of historical rows to sample")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show raised signals and the promoted model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(nil, func(ctx context.Context, r *pipeline.Runner, _ config.Pipeline, _ *zap.Logger) error {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Signals:")
				for _, sig := range pipeline.AllSignals {
					mark := " "
					if r.Signals().Present(sig) {
						mark = "x"
					}
					fmt.Fprintf(out, "  [%s] %s\n", mark, sig)
				}

				best, err := r.Registry().ReadBest()
				if err != nil {
					return err
				}
				if best.Model == "" {
					fmt.Fprintln(out, "Promoted model: none")
					return nil
				}
				fmt.Fprintf(out, "Promoted model: %s (v%d, accuracy %.4f, promoted %s)\n",
					best.Model, best.Version, best.Accuracy, best.PromotedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}
