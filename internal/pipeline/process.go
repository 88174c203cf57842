package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoopsml/shotpredict/internal/dataset"
	"github.com/hoopsml/shotpredict/internal/features"
)

// ProcessResult describes the processed dataset.
type ProcessResult struct {
	RawRows int
	Rows    int
	Columns int
}

// Process cleans and encodes the raw dataset into the processed CSV.
// Frequencies are computed over this run's rows only, so the same raw value
// can encode differently after more data is ingested.
func (r *Runner) Process(ctx context.Context) (ProcessResult, error) {
	if !r.signals.Present(IngestionDone) {
		r.logger.Infow("Processing without a fresh ingestion signal", "signal", IngestionDone)
	}

	raw, err := dataset.Read(r.cfg.RawFile)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("read raw dataset: %w", err)
	}

	processed, err := ProcessFrame(raw)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ProcessResult{}, err
	}
	if err := dataset.Write(r.cfg.ProcessedFile, processed); err != nil {
		return ProcessResult{}, fmt.Errorf("write processed dataset: %w", err)
	}

	res := ProcessResult{RawRows: raw.Len(), Rows: processed.Len(), Columns: len(processed.Names())}
	r.logger.Infow("Processed raw dataset",
		"raw_rows", res.RawRows,
		"rows", res.Rows,
		"columns", res.Columns,
		"path", r.cfg.ProcessedFile,
	)

	if err := r.signals.Raise(ProcessingDone); err != nil {
		return res, err
	}
	r.consume(IngestionDone)
	return res, nil
}

// ProcessFrame cleans the raw rows, frequency-encodes names and identifiers,
// one-hot encodes the shot categories and drops every source column.
func ProcessFrame(raw dataset.Frame) (dataset.Frame, error) {
	f, err := dataset.Clean(raw)
	if err != nil {
		return dataset.Frame{}, err
	}
	if f.Empty() {
		return dataset.Frame{}, errors.New("no complete rows left after cleaning")
	}

	if f, err = frequencyEncode(f, features.CategoricalFrequencyColumns); err != nil {
		return dataset.Frame{}, err
	}
	for _, oh := range features.OneHotColumns {
		if f, err = dataset.OneHotEncode(f, oh.Column, oh.Prefix); err != nil {
			return dataset.Frame{}, err
		}
		if f, err = f.DropColumns(oh.Column); err != nil {
			return dataset.Frame{}, err
		}
	}
	if f, err = frequencyEncode(f, features.IdentifierFrequencyColumns); err != nil {
		return dataset.Frame{}, err
	}
	return f.DropColumns(features.DroppedColumns...)
}

func frequencyEncode(f dataset.Frame, columns []string) (dataset.Frame, error) {
	var err error
	for _, col := range columns {
		if f, err = dataset.FrequencyEncode(f, col); err != nil {
			return dataset.Frame{}, err
		}
	}
	return f.DropColumns(columns...)
}
