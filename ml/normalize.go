package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParsePayload decodes a request body into a batch. It accepts a single
// object, an array of objects, or a columnar object whose values are arrays.
func ParsePayload(data []byte) (Batch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &PayloadError{Reason: ReasonEmptyBody}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, &PayloadError{Reason: ReasonInvalidJSON, Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, payloadErrorf(ReasonInvalidJSON, "unexpected data after top-level value")
	}
	return BatchFromValue(value)
}

// BatchFromValue converts an already decoded JSON value into a batch.
func BatchFromValue(value any) (Batch, error) {
	switch v := value.(type) {
	case nil:
		return nil, &PayloadError{Reason: ReasonEmptyBody}
	case map[string]any:
		if hasArrayValue(v) {
			return columnarBatch(v)
		}
		return Batch{Record(v)}, nil
	case []any:
		batch := make(Batch, len(v))
		for i, el := range v {
			rec, ok := el.(map[string]any)
			if !ok {
				return nil, payloadErrorf(ReasonUnsupported, "element %d is %s, expected an object", i, jsonKind(el))
			}
			batch[i] = Record(rec)
		}
		return batch, nil
	default:
		return nil, payloadErrorf(ReasonUnsupported, "top-level value is %s, expected an object or an array of objects", jsonKind(v))
	}
}

func hasArrayValue(m map[string]any) bool {
	for _, v := range m {
		if _, ok := v.([]any); ok {
			return true
		}
	}
	return false
}

func columnarBatch(m map[string]any) (Batch, error) {
	n := -1
	for key, v := range m {
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		if n >= 0 && len(arr) != n {
			return nil, payloadErrorf(ReasonUnsupported, "column %q has %d values, other columns have %d: all arrays must be of the same length", key, len(arr), n)
		}
		n = len(arr)
	}

	batch := make(Batch, n)
	for i := range batch {
		rec := make(Record, len(m))
		for key, v := range m {
			if arr, ok := v.([]any); ok {
				rec[key] = arr[i]
				continue
			}
			rec[key] = v
		}
		batch[i] = rec
	}
	return batch, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number, float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

type NormalizeReport struct {
	Rows           int      `json:"rows"`
	DroppedColumns []string `json:"dropped_columns,omitempty"`
	FilledColumns  []string `json:"filled_columns,omitempty"`
	CoercedCells   int      `json:"coerced_cells"`
}

// Normalizer maps batches onto a fixed column order. With Strict set, a
// value that cannot be coerced to a number fails the whole batch instead of
// becoming the missing sentinel.
type Normalizer struct {
	Strict bool
}

// Normalize is the best-effort normalization used for serving.
func Normalize(batch Batch, columns []string) (*Frame, NormalizeReport) {
	frame, report, _ := Normalizer{}.Normalize(batch, columns)
	return frame, report
}

func (n Normalizer) Normalize(batch Batch, columns []string) (*Frame, NormalizeReport, error) {
	present := unionKeys(batch)
	if len(columns) == 0 {
		columns = present
	}
	report := NormalizeReport{Rows: len(batch)}

	expected := make(map[string]bool, len(columns))
	for _, col := range columns {
		expected[col] = true
	}
	seen := make(map[string]bool, len(present))
	for _, col := range present {
		seen[col] = true
		if !expected[col] {
			report.DroppedColumns = append(report.DroppedColumns, col)
		}
	}
	for _, col := range columns {
		if !seen[col] {
			report.FilledColumns = append(report.FilledColumns, col)
		}
	}

	rows := make([][]float64, len(batch))
	for i, rec := range batch {
		row := make([]float64, len(columns))
		for j, col := range columns {
			raw, ok := rec[col]
			if !ok {
				row[j] = Missing()
				continue
			}
			value, ok := coerce(raw)
			if !ok {
				report.CoercedCells++
				if n.Strict {
					return nil, report, payloadErrorf(ReasonUnsupported, "record %d: column %q: cannot convert %s to a number", i, col, jsonKind(raw))
				}
			}
			row[j] = value
		}
		rows[i] = row
	}

	return &Frame{Columns: append([]string(nil), columns...), Rows: rows}, report, nil
}

// unionKeys returns every key used by any record, sorted so that the result
// does not depend on map iteration order.
func unionKeys(batch Batch) []string {
	set := make(map[string]struct{})
	for _, rec := range batch {
		for key := range rec {
			set[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// coerce converts a decoded JSON scalar into a float. ok is false when a
// non-null value had to be replaced with the missing sentinel.
func coerce(raw any) (value float64, ok bool) {
	switch v := raw.(type) {
	case nil:
		return Missing(), true
	case json.Number:
		return parseFinite(v.String())
	case float64:
		if math.IsInf(v, 0) {
			return Missing(), false
		}
		return v, true
	case float32:
		if math.IsInf(float64(v), 0) {
			return Missing(), false
		}
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Missing(), true
		}
		return parseFinite(s)
	default:
		return Missing(), false
	}
}

// parseFinite rejects "inf", "NaN" and out-of-range literals as well as
// malformed numbers.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return Missing(), false
	}
	return f, true
}
