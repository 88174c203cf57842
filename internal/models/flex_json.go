package models

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

type scoringField struct {
	index  int
	column string
}

// scoringFieldMap caches JSON tag -> struct field mappings
var (
	scoringFieldMap     map[string]scoringField
	scoringFieldMapOnce sync.Once
)

func getScoringFieldMap() map[string]scoringField {
	scoringFieldMapOnce.Do(func() {
		t := reflect.TypeOf(ScoringItem{})
		scoringFieldMap = make(map[string]scoringField, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := strings.Split(f.Tag.Get("json"), ",")[0]
			if name == "" || name == "-" {
				continue
			}
			scoringFieldMap[name] = scoringField{index: i, column: f.Tag.Get("col")}
		}
	})
	return scoringFieldMap
}

// ScoringFields lists the wire names of every ScoringItem field, sorted.
func ScoringFields() []string {
	m := getScoringFieldMap()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON accepts numbers either natively or as quoted strings, which
// is what HTML forms tend to submit. Every field must be present.
func (s *ScoringItem) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}

	fieldMap := getScoringFieldMap()
	v := reflect.ValueOf(s).Elem()

	var missing []string
	for name, field := range fieldMap {
		rawVal, ok := raw[name]
		if !ok || string(rawVal) == "null" {
			missing = append(missing, name)
			continue
		}
		if err := setNumeric(v.Field(field.index), rawVal); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setNumeric(fv reflect.Value, rawVal json.RawMessage) error {
	text := string(rawVal)
	if len(rawVal) > 1 && rawVal[0] == '"' {
		var s string
		if err := json.Unmarshal(rawVal, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%q is not a number", text)
	}

	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		fv.SetFloat(n)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n != math.Trunc(n) {
			return fmt.Errorf("%v is not an integer", n)
		}
		fv.SetInt(int64(n))
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
	return nil
}

func scoringFeatures(s *ScoringItem) map[string]float64 {
	fieldMap := getScoringFieldMap()
	v := reflect.ValueOf(s).Elem()
	out := make(map[string]float64, len(fieldMap))
	for _, field := range fieldMap {
		fv := v.Field(field.index)
		switch fv.Kind() {
		case reflect.Float32, reflect.Float64:
			out[field.column] = fv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[field.column] = float64(fv.Int())
		}
	}
	return out
}
