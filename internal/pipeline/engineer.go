package pipeline

import (
	"context"
	"fmt"

	"github.com/hoopsml/shotpredict/internal/dataset"
	"github.com/hoopsml/shotpredict/internal/features"
)

// ErrBundleMissing is returned when training or inference finds no bundle.
var ErrBundleMissing = features.ErrBundleMissing

// EngineerResult describes the bundle a feature engineering run wrote.
type EngineerResult struct {
	Train   int
	Test    int
	Columns int
	Scaled  []string
}

// Engineer derives calendar features, splits train/test with the fixed seed,
// optionally standardizes the numeric columns and replaces the bundle.
// A malformed game date fails the run before anything is written.
func (r *Runner) Engineer(ctx context.Context) (EngineerResult, error) {
	processed, err := dataset.Read(r.cfg.ProcessedFile)
	if err != nil {
		return EngineerResult{}, fmt.Errorf("read processed dataset: %w", err)
	}

	f, err := features.TransformDate(processed)
	if err != nil {
		return EngineerResult{}, err
	}

	b, err := features.Split(f, features.LabelColumn, r.cfg.TestFraction, r.cfg.Seed)
	if err != nil {
		return EngineerResult{}, fmt.Errorf("split: %w", err)
	}
	if r.cfg.ScaleNumeric {
		features.Scale(b, features.NumericColumns)
	}

	if err := ctx.Err(); err != nil {
		return EngineerResult{}, err
	}
	if err := features.SaveBundle(r.cfg.BundleFile, b); err != nil {
		return EngineerResult{}, fmt.Errorf("save bundle: %w", err)
	}

	res := EngineerResult{Train: len(b.XTrain), Test: len(b.XTest), Columns: len(b.Columns), Scaled: b.Scaled}
	r.logger.Infow("Wrote train/test bundle",
		"train_rows", res.Train,
		"test_rows", res.Test,
		"features", res.Columns,
		"scaled", res.Scaled,
		"seed", b.Seed,
		"path", r.cfg.BundleFile,
	)

	if err := r.signals.Raise(FeatureEngineeringDone); err != nil {
		return res, err
	}
	r.consume(ProcessingDone)
	return res, nil
}
