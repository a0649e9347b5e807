package ml

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// FramePredictor is the estimator contract: frame in, one value per row out.
type FramePredictor interface {
	PredictFrame(frame *Frame) ([]float64, error)
}

// MatrixPredictor is the native booster contract over a DMatrix.
type MatrixPredictor interface {
	Predict(m *DMatrix) ([]float64, error)
}

type featureNamer interface {
	FeatureNames() []string
}

// Optional descriptions a model may expose for ModelInfo.
type (
	objectiveNamer interface{ Objective() string }
	boosterNamer   interface{ GradientBooster() string }
	classNamer     interface{ Class() string }
)

type Variant string

const (
	EstimatorVariant Variant = "estimator"
	BoosterVariant   Variant = "booster"
)

// Handle wraps exactly one loaded model. It is immutable after construction
// and safe for concurrent use without locking.
type Handle struct {
	variant      Variant
	estimator    FramePredictor
	booster      MatrixPredictor
	featureNames []string
	source       string
	checksum     string
	loadedAt     time.Time

	objective       string
	gradientBooster string
	class           string
}

// NewHandle picks the variant by checking which prediction contract model
// implements. The estimator contract wins when both are present.
func NewHandle(model any, source string) (*Handle, error) {
	if model == nil {
		return nil, errors.New("model is nil")
	}
	h := &Handle{source: source, loadedAt: time.Now()}
	switch m := model.(type) {
	case FramePredictor:
		h.variant = EstimatorVariant
		h.estimator = m
	case MatrixPredictor:
		h.variant = BoosterVariant
		h.booster = m
	default:
		return nil, fmt.Errorf("%T exposes no prediction contract", model)
	}
	if namer, ok := model.(featureNamer); ok {
		if names := namer.FeatureNames(); len(names) > 0 {
			h.featureNames = append([]string(nil), names...)
		}
	}
	if m, ok := model.(objectiveNamer); ok {
		h.objective = m.Objective()
	}
	if m, ok := model.(boosterNamer); ok {
		h.gradientBooster = m.GradientBooster()
	}
	if m, ok := model.(classNamer); ok {
		h.class = m.Class()
	}
	return h, nil
}

func (h *Handle) Predict(frame *Frame) ([]float64, error) {
	if frame == nil {
		return nil, predictionErrorf("frame is nil")
	}
	if frame.NumRows() == 0 {
		return []float64{}, nil
	}

	var (
		preds []float64
		err   error
	)
	switch h.variant {
	case EstimatorVariant:
		preds, err = h.estimator.PredictFrame(frame)
	case BoosterVariant:
		var m *DMatrix
		m, err = NewDMatrix(frame)
		if err == nil {
			preds, err = h.booster.Predict(m)
		}
	default:
		err = fmt.Errorf("unknown model variant %q", h.variant)
	}
	if err != nil {
		var predErr *PredictionError
		if errors.As(err, &predErr) {
			return nil, err
		}
		return nil, &PredictionError{Err: err}
	}

	if len(preds) != frame.NumRows() {
		return nil, predictionErrorf("model returned %d predictions for %d rows", len(preds), frame.NumRows())
	}
	for i, p := range preds {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, predictionErrorf("non-finite prediction %v for row %d", p, i)
		}
	}
	return preds, nil
}

// FeatureNames returns the model's own expected column order, or nil when the
// model does not carry one.
func (h *Handle) FeatureNames() []string {
	if len(h.featureNames) == 0 {
		return nil
	}
	return append([]string(nil), h.featureNames...)
}

func (h *Handle) ExpectedColumns(defaults []string) []string {
	if names := h.FeatureNames(); names != nil {
		return names
	}
	return append([]string(nil), defaults...)
}

func (h *Handle) Variant() Variant { return h.variant }

func (h *Handle) Source() string { return h.source }

func (h *Handle) Checksum() string { return h.checksum }

func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

type ModelInfo struct {
	Variant      Variant   `json:"variant"`
	Source       string    `json:"source"`
	Checksum     string    `json:"checksum,omitempty"`
	LoadedAt     time.Time `json:"loaded_at"`
	FeatureNames []string  `json:"feature_names,omitempty"`
	// Objective, GradientBooster and Class are empty when the model does
	// not report them.
	Objective       string `json:"objective,omitempty"`
	GradientBooster string `json:"gradient_booster,omitempty"`
	Class           string `json:"class,omitempty"`
}

func (h *Handle) Describe() ModelInfo {
	return ModelInfo{
		Variant:         h.variant,
		Source:          h.source,
		Checksum:        h.checksum,
		LoadedAt:        h.loadedAt,
		FeatureNames:    h.FeatureNames(),
		Objective:       h.objective,
		GradientBooster: h.gradientBooster,
		Class:           h.class,
	}
}
