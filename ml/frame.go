package ml

import "math"

type Record map[string]any

type Batch []Record

// Missing returns the sentinel stored in a Frame for absent or uncoercible values.
func Missing() float64 { return math.NaN() }

func IsMissing(v float64) bool { return math.IsNaN(v) }

// Frame is a rectangular, fully numeric table. Rows[i][j] holds the value of
// Columns[j] for the i-th input record.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

func (f *Frame) NumRows() int { return len(f.Rows) }

func (f *Frame) NumCols() int { return len(f.Columns) }

func (f *Frame) Index(name string) int {
	for i, col := range f.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Records renders the frame back into a batch; missing cells become nil.
func (f *Frame) Records() Batch {
	batch := make(Batch, len(f.Rows))
	for i, row := range f.Rows {
		rec := make(Record, len(f.Columns))
		for j, col := range f.Columns {
			if IsMissing(row[j]) {
				rec[col] = nil
				continue
			}
			rec[col] = row[j]
		}
		batch[i] = rec
	}
	return batch
}

func (f *Frame) Reindex(columns []string) *Frame {
	positions := make([]int, len(columns))
	for i, col := range columns {
		positions[i] = f.Index(col)
	}
	rows := make([][]float64, len(f.Rows))
	for i, row := range f.Rows {
		out := make([]float64, len(columns))
		for j, pos := range positions {
			if pos < 0 {
				out[j] = Missing()
				continue
			}
			out[j] = row[pos]
		}
		rows[i] = out
	}
	return &Frame{Columns: append([]string(nil), columns...), Rows: rows}
}

// Subset returns a frame holding the given rows, sharing row storage with f.
func (f *Frame) Subset(rows []int) *Frame {
	out := &Frame{Columns: f.Columns, Rows: make([][]float64, len(rows))}
	for i, idx := range rows {
		out.Rows[i] = f.Rows[idx]
	}
	return out
}
