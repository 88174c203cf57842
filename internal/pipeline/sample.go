package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/hoopsml/shotpredict/internal/dataset"
)

// Sample draws a random fraction of the historical dataset into the new-data
// file, standing in for a feed of fresh shots.
func (r *Runner) Sample(ctx context.Context) (int, error) {
	hist, err := dataset.Read(r.cfg.HistoricalFile)
	if err != nil {
		return 0, fmt.Errorf("read historical dataset: %w", err)
	}

	rng := rand.New(rand.NewPCG(uint64(r.now().UnixNano()), r.cfg.Seed))
	sample, err := dataset.Sample(hist, r.cfg.SampleRatio, rng)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := dataset.Write(r.cfg.NewDataFile, sample); err != nil {
		return 0, fmt.Errorf("write new data: %w", err)
	}

	r.logger.Infow("Sampled new data",
		"historical_rows", hist.Len(),
		"sampled_rows", sample.Len(),
		"ratio", r.cfg.SampleRatio,
		"path", r.cfg.NewDataFile,
	)
	return sample.Len(), nil
}
