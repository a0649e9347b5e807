package ml

import (
	"errors"
	"math"
)

// DMatrix is the dense input representation consumed by a Booster. Values
// are stored row-major as float32; NaN marks a missing entry.
type DMatrix struct {
	rows         int
	cols         int
	data         []float32
	featureNames []string
}

func NewDMatrix(frame *Frame) (*DMatrix, error) {
	if frame == nil {
		return nil, errors.New("frame is nil")
	}
	cols := frame.NumCols()
	m := &DMatrix{
		rows:         frame.NumRows(),
		cols:         cols,
		data:         make([]float32, frame.NumRows()*cols),
		featureNames: append([]string(nil), frame.Columns...),
	}
	for i, row := range frame.Rows {
		if len(row) != cols {
			return nil, errors.New("frame is not rectangular")
		}
		offset := i * cols
		for j, v := range row {
			if IsMissing(v) {
				m.data[offset+j] = float32(math.NaN())
				continue
			}
			m.data[offset+j] = float32(v)
		}
	}
	return m, nil
}

func (m *DMatrix) NumRow() int { return m.rows }

func (m *DMatrix) NumCol() int { return m.cols }

func (m *DMatrix) FeatureNames() []string { return m.featureNames }

func (m *DMatrix) Row(i int) []float32 {
	return m.data[i*m.cols : (i+1)*m.cols]
}
