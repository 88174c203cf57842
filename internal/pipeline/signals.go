package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Signal is the name of a zero-byte marker file raised when a stage finishes.
type Signal string

const (
	IngestionDone          Signal = "ingestion_done"
	ProcessingDone         Signal = "processing_done"
	FeatureEngineeringDone Signal = "feature_engineering_done"
	TrainingDone           Signal = "training_done"
	NewModelAvailable      Signal = "new_model_available"
	InferenceDone          Signal = "inference_done"
)

// AllSignals lists the markers in the order stages raise them.
var AllSignals = []Signal{IngestionDone, ProcessingDone, FeatureEngineeringDone, TrainingDone, NewModelAvailable, InferenceDone}

// Signals raises and consumes markers in one directory.
type Signals struct {
	dir string
}

func NewSignals(dir string) *Signals {
	return &Signals{dir: dir}
}

func (s *Signals) path(sig Signal) string {
	return filepath.Join(s.dir, string(sig))
}

// Raise creates the marker. Raising an already present marker is a no-op.
func (s *Signals) Raise(sig Signal) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create signal dir: %w", err)
	}
	f, err := os.OpenFile(s.path(sig), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("raise %s: %w", sig, err)
	}
	return f.Close()
}

// Present reports whether the marker exists.
func (s *Signals) Present(sig Signal) bool {
	_, err := os.Stat(s.path(sig))
	return err == nil
}

// Consume deletes the marker and reports whether it was there. Only one of
// several concurrent consumers observes true.
func (s *Signals) Consume(sig Signal) (bool, error) {
	err := os.Remove(s.path(sig))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("consume %s: %w", sig, err)
	}
}
