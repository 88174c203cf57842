// Package pipeline runs the batch stages that turn new shot data into a
// served model: ingest, process, engineer features, train and infer.
//
// Stages share nothing in memory. Each reads its inputs from files, writes
// its outputs atomically and raises a signal file for the next stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hoopsml/shotpredict/internal/config"
	"github.com/hoopsml/shotpredict/internal/model"
	"github.com/hoopsml/shotpredict/internal/registry"
)

// Stage names a pipeline step.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageProcess  Stage = "process"
	StageFeatures Stage = "features"
	StageTrain    Stage = "train"
	StageInfer    Stage = "infer"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageIngest, StageProcess, StageFeatures, StageTrain, StageInfer}

// ErrStageTimeout is returned when a stage runs past its deadline.
var ErrStageTimeout = errors.New("stage exceeded its timeout")

// ErrNotTriggered is returned by CheckTrigger when the signal a stage
// consumes has not been raised.
var ErrNotTriggered = errors.New("trigger signal not raised")

// triggers maps the stages that run standalone on their upstream output to
// the signal announcing that output. Train and infer gate themselves.
var triggers = map[Stage]Signal{
	StageProcess:  IngestionDone,
	StageFeatures: ProcessingDone,
}

// Deps are the optional collaborators of a Runner.
type Deps struct {
	Logger   *zap.Logger
	Locker   Locker
	Notifier Notifier
	Now      func() time.Time
}

// Runner executes stages against one pipeline configuration.
type Runner struct {
	cfg      config.Pipeline
	logger   *zap.SugaredLogger
	locker   Locker
	notifier Notifier
	signals  *Signals
	registry *registry.Registry
	now      func() time.Time
}

// NewRunner builds a runner. Without a Locker, locks are flocks on files
// under LockDir and a held lock fails the stage at once.
func NewRunner(cfg config.Pipeline, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = NewFileLocker(cfg.LockDir, 0)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Runner{
		cfg:      cfg,
		logger:   deps.Logger.Sugar(),
		locker:   deps.Locker,
		notifier: deps.Notifier,
		signals:  NewSignals(cfg.SignalDir),
		registry: registry.New(RegistryConfig(cfg)),
		now:      deps.Now,
	}
}

// RegistryConfig locates the model registry for a pipeline configuration.
func RegistryConfig(cfg config.Pipeline) registry.Config {
	return registry.Config{
		ModelDir:        cfg.ModelDir,
		StagingDir:      cfg.StagingDir,
		DiscardedDir:    cfg.DiscardedDir,
		BestMetricsFile: cfg.BestMetricsFile,
		Base:            cfg.ModelBaseName,
		Ext:             cfg.ModelExt,
	}
}

// Params returns the fixed hyperparameters from the configuration.
func Params(cfg config.Pipeline) model.Params {
	return model.Params{
		Solver:       cfg.Solver,
		C:            cfg.C,
		MaxIter:      cfg.MaxIter,
		LearningRate: cfg.LearningRate,
	}
}

func (r *Runner) Signals() *Signals { return r.signals }

func (r *Runner) Registry() *registry.Registry { return r.registry }

// Run executes one stage under the configured timeout.
func (r *Runner) Run(ctx context.Context, stage Stage) error {
	if r.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Infow("Stage started", "stage", stage)

	err := r.dispatch(ctx, stage)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w (%s): %w", ErrStageTimeout, r.cfg.StageTimeout, err)
	}

	elapsed := time.Since(start)
	stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		stageRuns.WithLabelValues(string(stage), "failure").Inc()
		r.logger.Errorw("Stage failed", "stage", stage, "duration", elapsed, "error", err)
		return fmt.Errorf("%s: %w", stage, err)
	}
	stageRuns.WithLabelValues(string(stage), "success").Inc()
	r.logger.Infow("Stage finished", "stage", stage, "duration", elapsed)
	return nil
}

// CheckTrigger reports ErrNotTriggered when stage would run on upstream
// output that no finished stage has announced. RunAll does not call it: a
// full run always reprocesses the raw dataset.
func (r *Runner) CheckTrigger(stage Stage) error {
	sig, ok := triggers[stage]
	if !ok || r.signals.Present(sig) {
		return nil
	}
	return fmt.Errorf("%w: %s needs %s", ErrNotTriggered, stage, sig)
}

// RunAll executes every stage in order and stops at the first failure.
func (r *Runner) RunAll(ctx context.Context) error {
	for _, s := range Stages {
		if err := r.Run(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, stage Stage) error {
	var err error
	switch stage {
	case StageIngest:
		_, err = r.Ingest(ctx)
	case StageProcess:
		_, err = r.Process(ctx)
	case StageFeatures:
		_, err = r.Engineer(ctx)
	case StageTrain:
		_, err = r.Train(ctx)
	case StageInfer:
		_, err = r.Infer(ctx)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	return err
}

// ParseStage resolves a stage name.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// withLock runs fn while holding the named lock.
func (r *Runner) withLock(ctx context.Context, name string, fn func() error) error {
	release, err := r.locker.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warnw("Failed to release lock", "lock", name, "error", err)
		}
	}()
	return fn()
}

// consume clears the signal that triggered a stage once its output is
// written. A failed run leaves it in place for the next attempt.
func (r *Runner) consume(sig Signal) {
	consumed, err := r.signals.Consume(sig)
	if err != nil {
		r.logger.Warnw("Failed to consume signal", "signal", sig, "error", err)
		return
	}
	if consumed {
		r.logger.Debugw("Signal consumed", "signal", sig)
	}
}
