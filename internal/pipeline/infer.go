package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hoopsml/shotpredict/internal/dataset"
	"github.com/hoopsml/shotpredict/internal/features"
	"github.com/hoopsml/shotpredict/internal/model"
)

// PredictionColumn holds the model output in the predictions file.
const PredictionColumn = "Prediction"

// InferResult describes one inference run.
type InferResult struct {
	Skipped  bool
	Model    string
	Rows     int
	Accuracy float64
	Path     string
}

// Infer scores the bundle's test partition with the latest promoted model.
// Without a new_model_available signal it does nothing. With one, the signal
// is consumed whether or not scoring succeeds, so a bad model is reported
// once instead of being retried forever.
func (r *Runner) Infer(ctx context.Context) (InferResult, error) {
	if !r.signals.Present(NewModelAvailable) {
		r.logger.Infow("No new model available, skipping inference")
		return InferResult{Skipped: true}, nil
	}
	defer r.consume(NewModelAvailable)

	res, err := r.infer(ctx)
	if err != nil {
		r.logger.Errorw("Inference failed, signal consumed without retry",
			"model", res.Model,
			"error", err,
		)
		return res, err
	}
	return res, nil
}

func (r *Runner) infer(ctx context.Context) (InferResult, error) {
	var res InferResult

	path, err := r.registry.Latest()
	if err != nil {
		return res, err
	}
	res.Model = path

	art, err := model.Load(path)
	if err != nil {
		return res, err
	}
	b, err := features.LoadBundle(r.cfg.BundleFile)
	if err != nil {
		return res, err
	}

	preds, err := PredictRows(art, b.Columns, b.XTest)
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	out, err := predictionFrame(b, preds)
	if err != nil {
		return res, err
	}
	if err := dataset.Write(r.cfg.PredictionsFile, out); err != nil {
		return res, fmt.Errorf("write predictions: %w", err)
	}

	res.Rows = len(preds)
	res.Accuracy = model.Accuracy(b.YTest, preds)
	res.Path = r.cfg.PredictionsFile
	batchPredictions.Add(float64(res.Rows))
	r.logger.Infow("Scored test partition",
		"model", art.Name,
		"rows", res.Rows,
		"accuracy", res.Accuracy,
		"path", res.Path,
	)

	return res, r.signals.Raise(InferenceDone)
}

// PredictRows aligns rows laid out as columns to the artifact and predicts
// each one.
func PredictRows(art *model.Artifact, columns []string, rows [][]float64) ([]int, error) {
	clf := art.Classifier()
	preds := make([]int, len(rows))
	values := make(map[string]float64, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			values[col] = row[j]
		}
		aligned, err := art.Align(values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		preds[i] = clf.PredictOne(aligned)
	}
	return preds, nil
}

func predictionFrame(b *features.Bundle, preds []int) (dataset.Frame, error) {
	label := b.Label
	if label == "" {
		label = features.LabelColumn
	}
	header := append(append([]string(nil), b.Columns...), label, PredictionColumn)
	records := make([][]string, 0, len(preds)+1)
	records = append(records, header)
	for i, row := range b.XTest {
		rec := make([]string, 0, len(header))
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rec = append(rec, strconv.Itoa(b.YTest[i]), strconv.Itoa(preds[i]))
		records = append(records, rec)
	}
	return dataset.FromRecords(records)
}
