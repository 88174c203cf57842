// Package features turns a processed shot dataset into the train/test bundle
// the model is fitted on.
package features

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hoopsml/shotpredict/internal/dataset"
)

const (
	DateColumn  = "Game Date"
	LabelColumn = "Shot Made Flag"

	dateLayout = "20060102"
)

// ErrDateFormat is returned when a game date is not a YYYYMMDD value.
var ErrDateFormat = errors.New("malformed game date")

// Calendar columns added by TransformDate, in order.
var DateParts = []string{"Year", "Month", "Day", "Day_of_Week"}

// ParseGameDate parses a YYYYMMDD value. A trailing ".0" left by spreadsheet
// tools is accepted.
func ParseGameDate(v string) (time.Time, error) {
	s := strings.TrimSpace(v)
	if whole, frac, ok := strings.Cut(s, "."); ok {
		if strings.Trim(frac, "0") != "" {
			return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormat, v)
		}
		s = whole
	}
	if len(s) != len(dateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormat, v)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateFormat, v)
	}
	return t, nil
}

// Weekday numbers days Monday=0 through Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// TransformDate replaces the game date column with Year, Month, Day and
// Day_of_Week. One malformed value fails the whole frame.
func TransformDate(f dataset.Frame) (dataset.Frame, error) {
	raw, err := f.Column(DateColumn)
	if err != nil {
		return dataset.Frame{}, err
	}

	parts := make([][]string, len(DateParts))
	for i := range parts {
		parts[i] = make([]string, len(raw))
	}
	for row, v := range raw {
		t, err := ParseGameDate(v)
		if err != nil {
			return dataset.Frame{}, fmt.Errorf("row %d: %w", row, err)
		}
		parts[0][row] = strconv.Itoa(t.Year())
		parts[1][row] = strconv.Itoa(int(t.Month()))
		parts[2][row] = strconv.Itoa(t.Day())
		parts[3][row] = strconv.Itoa(Weekday(t))
	}

	out := f
	for i, name := range DateParts {
		if out, err = out.WithColumn(name, parts[i]); err != nil {
			return dataset.Frame{}, err
		}
	}
	return out.DropColumns(DateColumn)
}
