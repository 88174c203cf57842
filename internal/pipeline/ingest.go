package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoopsml/shotpredict/internal/dataset"
)

// IngestResult counts rows before and after an ingestion run.
type IngestResult struct {
	Existing int
	New      int
	Total    int
}

// Ingest appends the new-data batch to the accumulated raw dataset. A missing
// or unreadable batch appends nothing. Re-ingesting the same batch duplicates
// its rows; processing removes them.
func (r *Runner) Ingest(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	err := r.withLock(ctx, LockRawDataset, func() error {
		batch, err := dataset.Read(r.cfg.NewDataFile)
		if err != nil {
			r.logger.Warnw("New data unavailable, nothing to append",
				"path", r.cfg.NewDataFile,
				"error", err,
			)
			batch = dataset.Frame{}
		}
		if batch.Empty() {
			r.logger.Warnw("New data batch is empty", "path", r.cfg.NewDataFile)
		}

		existing, err := dataset.Read(r.cfg.RawFile)
		if err != nil && !errors.Is(err, dataset.ErrNotFound) {
			return fmt.Errorf("read raw dataset: %w", err)
		}

		combined, err := dataset.Append(existing, batch)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := dataset.Write(r.cfg.RawFile, combined); err != nil {
			return fmt.Errorf("write raw dataset: %w", err)
		}

		res = IngestResult{Existing: existing.Len(), New: batch.Len(), Total: combined.Len()}
		return nil
	})
	if err != nil {
		return res, err
	}

	rowsIngested.Add(float64(res.New))
	r.logger.Infow("Ingested new data",
		"existing_rows", res.Existing,
		"new_rows", res.New,
		"total_rows", res.Total,
		"path", r.cfg.RawFile,
	)
	return res, r.signals.Raise(IngestionDone)
}
