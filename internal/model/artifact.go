package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/hoopsml/shotpredict/internal/features"
)

// Artifact is the persisted form of a trained model: the fitted coefficients
// plus everything needed to reproduce and serve it.
type Artifact struct {
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	Date      string          `json:"date"`
	Params    Params          `json:"params"`
	Columns   []string        `json:"columns"`
	Weights   []float64       `json:"weights"`
	Intercept float64         `json:"intercept"`
	Accuracy  float64         `json:"accuracy"`
	Scaled    []string        `json:"scaled,omitempty"`
	// Scaler standardizes raw inputs before scoring. Set when the model was
	// trained on scaled columns.
	Scaler    features.Scaler `json:"scaler,omitempty"`
	TrainedAt time.Time       `json:"trained_at"`
}

// NewArtifact captures a fitted candidate trained on the given columns.
// scaler holds the train-split statistics of any standardized columns.
func NewArtifact(c Candidate, columns []string, scaler features.Scaler) *Artifact {
	a := &Artifact{
		Params:    c.Params,
		Columns:   append([]string(nil), columns...),
		Weights:   append([]float64(nil), c.Classifier.Weights...),
		Intercept: c.Classifier.Intercept,
		Accuracy:  c.Accuracy,
		TrainedAt: time.Now().UTC(),
	}
	if len(scaler) > 0 {
		a.Scaler = make(features.Scaler, len(scaler))
		for _, col := range a.Columns {
			if st, ok := scaler[col]; ok {
				a.Scaler[col] = st
				a.Scaled = append(a.Scaled, col)
			}
		}
	}
	return a
}

func (a *Artifact) Validate() error {
	if len(a.Columns) == 0 {
		return errors.New("artifact has no columns")
	}
	if len(a.Columns) != len(a.Weights) {
		return fmt.Errorf("artifact has %d columns but %d weights", len(a.Columns), len(a.Weights))
	}
	for _, col := range a.Scaled {
		st, ok := a.Scaler[col]
		if !ok {
			return fmt.Errorf("artifact scales %q but has no statistics for it", col)
		}
		if st.Std == 0 {
			return fmt.Errorf("artifact has zero deviation for %q", col)
		}
	}
	return nil
}

// Classifier returns the fitted model the artifact describes.
func (a *Artifact) Classifier() *Classifier {
	return &Classifier{Weights: a.Weights, Intercept: a.Intercept}
}

func (a *Artifact) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

func Decode(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Load reads an artifact file.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Align orders a named feature vector the way the model expects. Absent
// one-hot indicators are 0; any other absent column is an error, as is a
// non-zero value for a column the model was not trained on.
func (a *Artifact) Align(values map[string]float64) ([]float64, error) {
	row := make([]float64, len(a.Columns))
	var missing []string
	known := make(map[string]struct{}, len(a.Columns))
	for i, col := range a.Columns {
		known[col] = struct{}{}
		v, ok := values[col]
		if !ok {
			if !features.IsIndicator(col) {
				missing = append(missing, col)
			}
			continue
		}
		row[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("feature vector missing columns %v", missing)
	}

	var unknown []string
	for col, v := range values {
		if _, ok := known[col]; !ok && v != 0 {
			unknown = append(unknown, col)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("model was not trained on columns %v", unknown)
	}
	return row, nil
}

// Predict aligns and classifies one named feature vector given in raw units.
// Scaled columns are standardized with the training statistics first.
func (a *Artifact) Predict(values map[string]float64) (int, float64, error) {
	row, err := a.Align(values)
	if err != nil {
		return 0, 0, err
	}
	a.Scaler.Transform(a.Columns, row)
	clf := a.Classifier()
	return clf.PredictOne(row), clf.Probability(row), nil
}
