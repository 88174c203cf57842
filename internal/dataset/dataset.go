// Package dataset provides the tabular operations the pipeline runs over CSV
// shot data. Every column is kept as strings so rows survive append and
// rewrite cycles unchanged; numeric parsing happens at feature time.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/hoopsml/shotpredict/internal/fsutil"
)

// ErrNotFound is returned by Read when the file does not exist.
var ErrNotFound = errors.New("dataset not found")

// Values read as missing.
var missingValues = []string{"", "NA", "NaN", "nan", "<nil>"}

// Frame is a table of string cells. The zero value is the empty dataset.
type Frame struct {
	df dataframe.DataFrame
}

// FromRecords builds a frame from a header row followed by data rows.
// A header without rows yields the empty frame.
func FromRecords(records [][]string) (Frame, error) {
	if len(records) <= 1 {
		return Frame{}, nil
	}
	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(missingValues),
	)
	if err := df.Error(); err != nil {
		return Frame{}, fmt.Errorf("load records: %w", err)
	}
	return Frame{df: df}, nil
}

// Read loads a CSV file with a header row.
func Read(path string) (Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Frame{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV loads CSV content with a header row from r.
func ReadCSV(r io.Reader) (Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("parse csv: %w", err)
	}
	return FromRecords(records)
}

// Write stores the frame as CSV at path, atomically.
func Write(path string, f Frame) error {
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		if f.Empty() {
			return nil
		}
		return f.df.WriteCSV(w)
	})
}

// Empty reports whether the frame has no rows.
func (f Frame) Empty() bool {
	return f.df.Ncol() == 0 || f.df.Nrow() == 0
}

// Len returns the number of rows.
func (f Frame) Len() int {
	if f.df.Ncol() == 0 {
		return 0
	}
	return f.df.Nrow()
}

// Names returns the column names in order.
func (f Frame) Names() []string {
	if f.df.Ncol() == 0 {
		return nil
	}
	return f.df.Names()
}

// Has reports whether the frame has a column with the given name.
func (f Frame) Has(name string) bool {
	for _, n := range f.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Column returns the raw cell values of a column. Missing cells are "NaN".
func (f Frame) Column(name string) ([]string, error) {
	if !f.Has(name) {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	return f.df.Col(name).Records(), nil
}

// Floats parses a column as float64 values.
func (f Frame) Floats(name string) ([]float64, error) {
	raw, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		out[i] = x
	}
	return out, nil
}

// Records returns the header followed by every row.
func (f Frame) Records() [][]string {
	if f.df.Ncol() == 0 {
		return nil
	}
	return f.df.Records()
}

// Append returns existing followed by batch. Columns are matched by name;
// a column only one side has is filled with missing values for the other.
func Append(existing, batch Frame) (Frame, error) {
	switch {
	case existing.Empty():
		return batch, nil
	case batch.Empty():
		return existing, nil
	}
	out := existing.df.Concat(batch.df)
	if err := out.Error(); err != nil {
		return Frame{}, fmt.Errorf("append: %w", err)
	}
	// Concat writes the gaps as "NaN" text; reload so they count as missing.
	return FromRecords(out.Records())
}

// WithColumn adds or replaces a string column.
func (f Frame) WithColumn(name string, values []string) (Frame, error) {
	if len(values) != f.Len() {
		return Frame{}, fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.Len())
	}
	out := f.df.Mutate(series.New(values, series.String, name))
	if err := out.Error(); err != nil {
		return Frame{}, fmt.Errorf("add column %q: %w", name, err)
	}
	return Frame{df: out}, nil
}

// DropColumns removes the named columns. Names the frame lacks are ignored.
func (f Frame) DropColumns(names ...string) (Frame, error) {
	var present []string
	for _, n := range names {
		if f.Has(n) {
			present = append(present, n)
		}
	}
	if len(present) == 0 {
		return f, nil
	}
	if len(present) == len(f.Names()) {
		return Frame{}, nil
	}
	out := f.df.Drop(present)
	if err := out.Error(); err != nil {
		return Frame{}, fmt.Errorf("drop columns: %w", err)
	}
	return Frame{df: out}, nil
}

// Rows returns the frame restricted to the given row indexes, in that order.
func (f Frame) Rows(idx []int) (Frame, error) {
	if len(idx) == 0 || f.Empty() {
		return Frame{}, nil
	}
	out := f.df.Subset(idx)
	if err := out.Error(); err != nil {
		return Frame{}, fmt.Errorf("subset rows: %w", err)
	}
	return Frame{df: out}, nil
}

// missingMask reports, per row, whether any cell is missing.
func (f Frame) missingMask() []bool {
	mask := make([]bool, f.Len())
	for _, name := range f.Names() {
		for i, nan := range f.df.Col(name).IsNaN() {
			if nan {
				mask[i] = true
			}
		}
	}
	return mask
}
