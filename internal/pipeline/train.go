package pipeline

import (
	"context"
	"fmt"

	"github.com/hoopsml/shotpredict/internal/features"
	"github.com/hoopsml/shotpredict/internal/model"
)

// TrainResult records one training run and its promotion decision.
type TrainResult struct {
	Model     string
	Version   int
	Params    model.Params
	Accuracy  float64
	PriorBest float64
	Promoted  bool
	Path      string
}

// Train fits a model on the bundle, versions it and promotes it only if its
// accuracy strictly beats the recorded best. A losing model is kept in the
// discarded area. training_done is raised once a decision is made either way.
func (r *Runner) Train(ctx context.Context) (TrainResult, error) {
	var res TrainResult
	err := r.withLock(ctx, LockModelRegistry, func() error {
		var err error
		res, err = r.train(ctx)
		return err
	})
	if err != nil {
		return res, err
	}

	if err := r.signals.Raise(TrainingDone); err != nil {
		return res, err
	}
	r.consume(FeatureEngineeringDone)
	return res, nil
}

func (r *Runner) train(ctx context.Context) (TrainResult, error) {
	report, err := r.registry.Recover()
	if err != nil {
		return TrainResult{}, fmt.Errorf("recover registry: %w", err)
	}
	if !report.Empty() {
		r.logger.Warnw("Recovered interrupted promotion",
			"published", report.Published,
			"discarded", report.Discarded,
		)
	}

	b, err := features.LoadBundle(r.cfg.BundleFile)
	if err != nil {
		return TrainResult{}, err
	}

	var cand model.Candidate
	if r.cfg.Search {
		cand, err = model.Search(ctx, b, model.DefaultGrid(Params(r.cfg)))
	} else {
		cand, err = model.Evaluate(ctx, b, Params(r.cfg))
	}
	if err != nil {
		return TrainResult{}, err
	}

	art := model.NewArtifact(cand, b.Columns, b.Scaler)
	r.registry.Assign(art, r.now())

	prior, err := r.registry.ReadBest()
	if err != nil {
		return TrainResult{}, err
	}

	res := TrainResult{
		Model:     art.Name,
		Version:   art.Version,
		Params:    art.Params,
		Accuracy:  art.Accuracy,
		PriorBest: prior.Accuracy,
	}
	log := r.logger.With(
		"model", res.Model,
		"version", res.Version,
		"params", res.Params.String(),
		"accuracy", res.Accuracy,
		"prior_best", res.PriorBest,
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if !prior.ImprovedBy(art.Accuracy) {
		path, err := r.registry.Discard(art)
		if err != nil {
			return res, err
		}
		res.Path = path
		trainingDecisions.WithLabelValues("discarded").Inc()
		log.Infow("Model did not beat the best accuracy, discarded", "path", path)
		return res, nil
	}

	path, err := r.registry.Promote(art)
	if err != nil {
		log.Errorw("Model promotion failed, reconcile registry manually", "error", err)
		return res, err
	}
	res.Path, res.Promoted = path, true
	trainingDecisions.WithLabelValues("promoted").Inc()
	bestAccuracy.Set(art.Accuracy)
	log.Infow("Promoted new model", "path", path)

	if err := r.signals.Raise(NewModelAvailable); err != nil {
		// The promotion stands; inference just won't be triggered this run.
		log.Errorw("Failed to raise new model signal", "signal", NewModelAvailable, "error", err)
	}

	ev := ModelEvent{
		Model:      art.Name,
		Version:    art.Version,
		Accuracy:   art.Accuracy,
		Path:       path,
		PromotedAt: r.now().UTC(),
	}
	if err := r.notifier.ModelPromoted(ctx, ev); err != nil {
		log.Warnw("Failed to announce promoted model", "error", err)
	}
	return res, nil
}
