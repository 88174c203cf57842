package dataset

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
)

// FrequencySuffix names the column FrequencyEncode adds.
const FrequencySuffix = "_Frequency"

// Clean drops every row with a missing cell, then every row that repeats an
// earlier row exactly. The first occurrence is kept, so Clean is idempotent.
func Clean(f Frame) (Frame, error) {
	if f.Empty() {
		return f, nil
	}

	missing := f.missingMask()
	rows := f.Records()[1:]
	seen := make(map[string]struct{}, len(rows))
	keep := make([]int, 0, len(rows))
	for i, row := range rows {
		if missing[i] {
			continue
		}
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	if len(keep) == len(rows) {
		return f, nil
	}
	return f.Rows(keep)
}

// FrequencyEncode adds "<col>_Frequency" holding, for each row, the share of
// rows in the frame with the same value in col. The source column is kept.
func FrequencyEncode(f Frame, col string) (Frame, error) {
	values, err := f.Column(col)
	if err != nil {
		return Frame{}, err
	}

	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	n := float64(len(values))
	freq := make([]string, len(values))
	for i, v := range values {
		freq[i] = strconv.FormatFloat(float64(counts[v])/n, 'g', -1, 64)
	}
	return f.WithColumn(col+FrequencySuffix, freq)
}

// OneHotEncode adds one "<prefix>_<value>" indicator column per distinct
// value of col, in sorted value order. Exactly one indicator is "1" per row.
func OneHotEncode(f Frame, col, prefix string) (Frame, error) {
	values, err := f.Column(col)
	if err != nil {
		return Frame{}, err
	}

	var categories []string
	seen := make(map[string]struct{})
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			categories = append(categories, v)
		}
	}
	sort.Strings(categories)

	out := f
	for _, c := range categories {
		ind := make([]string, len(values))
		for i, v := range values {
			if v == c {
				ind[i] = "1"
			} else {
				ind[i] = "0"
			}
		}
		out, err = out.WithColumn(prefix+"_"+c, ind)
		if err != nil {
			return Frame{}, fmt.Errorf("one-hot %q: %w", col, err)
		}
	}
	return out, nil
}

// Sample returns round(ratio*n) rows picked without replacement, keeping
// their original order.
func Sample(f Frame, ratio float64, rng *rand.Rand) (Frame, error) {
	if ratio <= 0 || ratio > 1 {
		return Frame{}, fmt.Errorf("sample ratio %v outside (0, 1]", ratio)
	}
	n := f.Len()
	k := int(float64(n)*ratio + 0.5)
	if k == 0 {
		return Frame{}, nil
	}

	idx := rng.Perm(n)[:k]
	sort.Ints(idx)
	return f.Rows(idx)
}
