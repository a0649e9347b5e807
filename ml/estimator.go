package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Estimator is a scikit-learn style wrapper around a Booster. It takes a
// Frame directly and checks the frame's columns against the names it was
// fitted with before building its own DMatrix.
type Estimator struct {
	class        string
	featureNames []string
	nFeatures    int
	classes      []float64
	booster      *Booster
}

type estimatorDocument struct {
	Estimator *estimatorJSON `json:"estimator"`
}

type estimatorJSON struct {
	Class          string          `json:"class"`
	FeatureNamesIn []string        `json:"feature_names_in_"`
	NFeaturesIn    int             `json:"n_features_in_"`
	Classes        []float64       `json:"classes_"`
	Booster        json.RawMessage `json:"booster"`
}

func DecodeEstimator(data []byte) (*Estimator, error) {
	var doc estimatorDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode estimator: %w", err)
	}
	if doc.Estimator == nil {
		return nil, errors.New("document has no estimator")
	}
	src := doc.Estimator

	switch src.Class {
	case "XGBRegressor", "XGBRFRegressor", "XGBClassifier", "XGBRFClassifier":
	default:
		return nil, fmt.Errorf("unsupported estimator class %q", src.Class)
	}
	if len(src.Booster) == 0 {
		return nil, errors.New("estimator has no booster")
	}
	booster, err := DecodeBooster(src.Booster)
	if err != nil {
		return nil, fmt.Errorf("estimator booster: %w", err)
	}

	e := &Estimator{
		class:        src.Class,
		featureNames: src.FeatureNamesIn,
		nFeatures:    src.NFeaturesIn,
		classes:      src.Classes,
		booster:      booster,
	}
	if len(e.featureNames) == 0 {
		e.featureNames = booster.FeatureNames()
	}
	if e.nFeatures == 0 {
		e.nFeatures = booster.NumFeature()
	}
	if len(e.featureNames) > 0 && e.nFeatures != len(e.featureNames) {
		return nil, fmt.Errorf("estimator lists %d feature names for %d features", len(e.featureNames), e.nFeatures)
	}
	if e.classifier() {
		if len(e.classes) == 0 {
			e.classes = []float64{0, 1}
		}
		if len(e.classes) != 2 {
			return nil, fmt.Errorf("only binary classifiers are supported, got %d classes", len(e.classes))
		}
	}
	return e, nil
}

func (e *Estimator) classifier() bool {
	return e.class == "XGBClassifier" || e.class == "XGBRFClassifier"
}

func (e *Estimator) PredictFrame(frame *Frame) ([]float64, error) {
	if frame == nil {
		return nil, predictionErrorf("frame is nil")
	}
	if len(e.featureNames) > 0 && !equalStrings(frame.Columns, e.featureNames) {
		return nil, predictionErrorf("the feature names should match those that were passed during fit: expected %v, got %v", e.featureNames, frame.Columns)
	}
	if e.nFeatures > 0 && frame.NumCols() != e.nFeatures {
		return nil, predictionErrorf("X has %d features, but %s is expecting %d features as input", frame.NumCols(), e.class, e.nFeatures)
	}

	m, err := NewDMatrix(frame)
	if err != nil {
		return nil, predictionErrorf("%w", err)
	}
	preds, err := e.booster.Predict(m)
	if err != nil {
		return nil, err
	}
	if !e.classifier() {
		return preds, nil
	}

	threshold := 0.0
	if e.booster.objective.probability() {
		threshold = 0.5
	}
	for i, p := range preds {
		if p > threshold {
			preds[i] = e.classes[1]
		} else {
			preds[i] = e.classes[0]
		}
	}
	return preds, nil
}

func (e *Estimator) FeatureNames() []string {
	if len(e.featureNames) == 0 {
		return nil
	}
	return append([]string(nil), e.featureNames...)
}

func (e *Estimator) Class() string { return e.class }

func (e *Estimator) Objective() string { return e.booster.Objective() }

func (e *Estimator) GradientBooster() string { return e.booster.GradientBooster() }
