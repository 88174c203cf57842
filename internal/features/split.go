package features

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hoopsml/shotpredict/internal/dataset"
)

// NumericColumns are the quantitative columns Scale standardizes.
var NumericColumns = []string{
	"Period",
	"Minutes Remaining",
	"Seconds Remaining",
	"Shot Distance",
	"X Location",
	"Y Location",
}

// Bundle holds the four train/test partitions produced by one feature
// engineering run. Feature rows follow Columns.
type Bundle struct {
	Columns      []string    `json:"columns"`
	Label        string      `json:"label"`
	XTrain       [][]float64 `json:"x_train"`
	XTest        [][]float64 `json:"x_test"`
	YTrain       []int       `json:"y_train"`
	YTest        []int       `json:"y_test"`
	Seed         uint64      `json:"seed"`
	TestFraction float64     `json:"test_fraction"`
	Scaled       []string    `json:"scaled,omitempty"`
	Scaler       Scaler      `json:"scaler,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Validate checks that partitions agree with each other and with Columns.
func (b *Bundle) Validate() error {
	if len(b.Columns) == 0 {
		return errors.New("bundle has no feature columns")
	}
	if len(b.XTrain) != len(b.YTrain) {
		return fmt.Errorf("train partition has %d rows and %d labels", len(b.XTrain), len(b.YTrain))
	}
	if len(b.XTest) != len(b.YTest) {
		return fmt.Errorf("test partition has %d rows and %d labels", len(b.XTest), len(b.YTest))
	}
	if len(b.XTrain) == 0 {
		return errors.New("bundle has an empty train partition")
	}
	for _, part := range [][][]float64{b.XTrain, b.XTest} {
		for i, row := range part {
			if len(row) != len(b.Columns) {
				return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(b.Columns))
			}
		}
	}
	return nil
}

// Split separates the label from the features and shuffles rows into train
// and test partitions. The permutation depends only on seed and row count,
// so the same frame always splits the same way.
func Split(f dataset.Frame, label string, testFraction float64, seed uint64) (*Bundle, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	n := f.Len()
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 rows to split, have %d", n)
	}

	labels, err := f.Floats(label)
	if err != nil {
		return nil, fmt.Errorf("label: %w", err)
	}
	y := make([]int, n)
	for i, v := range labels {
		switch v {
		case 0, 1:
			y[i] = int(v)
		default:
			return nil, fmt.Errorf("label row %d: value %v is not 0 or 1", i, v)
		}
	}

	var columns []string
	for _, name := range f.Names() {
		if name != label {
			columns = append(columns, name)
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("no feature columns besides the label")
	}

	cols := make([][]float64, len(columns))
	for j, name := range columns {
		if cols[j], err = f.Floats(name); err != nil {
			return nil, err
		}
	}
	row := func(i int) []float64 {
		r := make([]float64, len(columns))
		for j := range columns {
			r[j] = cols[j][i]
		}
		return r
	}

	nTest := int(math.Ceil(float64(n)*testFraction - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)

	b := &Bundle{
		Columns:      columns,
		Label:        label,
		XTrain:       make([][]float64, 0, n-nTest),
		XTest:        make([][]float64, 0, nTest),
		YTrain:       make([]int, 0, n-nTest),
		YTest:        make([]int, 0, nTest),
		Seed:         seed,
		TestFraction: testFraction,
		CreatedAt:    time.Now().UTC(),
	}
	for k, i := range perm {
		if k < nTest {
			b.XTest = append(b.XTest, row(i))
			b.YTest = append(b.YTest, y[i])
		} else {
			b.XTrain = append(b.XTrain, row(i))
			b.YTrain = append(b.YTrain, y[i])
		}
	}
	return b, nil
}

// Standardization is the train-split mean and deviation of one column.
type Standardization struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func (s Standardization) Apply(x float64) float64 {
	return (x - s.Mean) / s.Std
}

// Scaler maps a column name to the standardization fitted for it.
type Scaler map[string]Standardization

// Transform standardizes, in place, the values of row that belong to a
// scaled column. row follows columns.
func (s Scaler) Transform(columns []string, row []float64) {
	if len(s) == 0 {
		return
	}
	for j, name := range columns {
		if st, ok := s[name]; ok {
			row[j] = st.Apply(row[j])
		}
	}
}

// Scale standardizes the named columns to zero mean and unit variance using
// statistics from the train partition only. Columns the bundle lacks are
// skipped; a constant column is only centered. The fitted statistics are
// kept in b.Scaler so raw inputs can be scaled the same way at serving time.
func Scale(b *Bundle, columns []string) {
	for _, name := range columns {
		j := slices.Index(b.Columns, name)
		if j < 0 || slices.Contains(b.Scaled, name) {
			continue
		}

		x := make([]float64, len(b.XTrain))
		for i, r := range b.XTrain {
			x[i] = r[j]
		}
		mean, std := stat.PopMeanStdDev(x, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}

		st := Standardization{Mean: mean, Std: std}
		for _, part := range [][][]float64{b.XTrain, b.XTest} {
			for _, r := range part {
				r[j] = st.Apply(r[j])
			}
		}
		if b.Scaler == nil {
			b.Scaler = make(Scaler)
		}
		b.Scaler[name] = st
		b.Scaled = append(b.Scaled, name)
	}
}
