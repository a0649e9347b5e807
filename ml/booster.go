package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type gradientBooster interface {
	margin(row []float32) (float64, error)
}

// Booster is a raw XGBoost learner decoded from the JSON model format. It only
// accepts input wrapped in a DMatrix.
type Booster struct {
	name         string
	featureNames []string
	featureTypes []string
	numFeature   int
	baseMargin   float64
	objective    objective
	model        gradientBooster
}

func (b *Booster) Predict(m *DMatrix) ([]float64, error) {
	if m == nil {
		return nil, predictionErrorf("matrix is nil")
	}
	if b.numFeature > 0 && m.NumCol() != b.numFeature {
		return nil, predictionErrorf("feature shape mismatch, expected: %d, got %d", b.numFeature, m.NumCol())
	}
	if len(b.featureNames) > 0 && len(m.FeatureNames()) > 0 && !equalStrings(b.featureNames, m.FeatureNames()) {
		return nil, predictionErrorf("feature_names mismatch: expected %v, got %v", b.featureNames, m.FeatureNames())
	}

	preds := make([]float64, m.NumRow())
	for i := range preds {
		margin, err := b.model.margin(m.Row(i))
		if err != nil {
			return nil, predictionErrorf("row %d: %w", i, err)
		}
		preds[i] = b.objective.transform(b.baseMargin + margin)
	}
	return preds, nil
}

func (b *Booster) FeatureNames() []string {
	if len(b.featureNames) == 0 {
		return nil
	}
	return append([]string(nil), b.featureNames...)
}

func (b *Booster) Objective() string { return b.objective.name }

func (b *Booster) GradientBooster() string { return b.name }

func (b *Booster) NumFeature() int { return b.numFeature }

type learnerDocument struct {
	Learner *learnerJSON `json:"learner"`
	Version []int        `json:"version"`
}

type learnerJSON struct {
	FeatureNames      []string        `json:"feature_names"`
	FeatureTypes      []string        `json:"feature_types"`
	GradientBooster   json.RawMessage `json:"gradient_booster"`
	LearnerModelParam struct {
		BaseScore  string `json:"base_score"`
		NumClass   string `json:"num_class"`
		NumFeature string `json:"num_feature"`
		NumTarget  string `json:"num_target"`
	} `json:"learner_model_param"`
	Objective struct {
		Name string `json:"name"`
	} `json:"objective"`
}

type gbtreeModelJSON struct {
	Trees    []treeJSON `json:"trees"`
	TreeInfo []int      `json:"tree_info"`
}

type gradientBoosterJSON struct {
	Name string `json:"name"`
	// gbtree and gblinear
	Model json.RawMessage `json:"model"`
	// dart
	Gbtree *struct {
		Model gbtreeModelJSON `json:"model"`
	} `json:"gbtree"`
	WeightDrop []float64 `json:"weight_drop"`
}

func DecodeBooster(data []byte) (*Booster, error) {
	var doc learnerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode learner: %w", err)
	}
	if doc.Learner == nil {
		return nil, errors.New("document has no learner")
	}
	return newBooster(doc.Learner)
}

func newBooster(l *learnerJSON) (*Booster, error) {
	param := l.LearnerModelParam
	numClass, err := parseIntParam("num_class", param.NumClass, 0)
	if err != nil {
		return nil, err
	}
	if numClass > 1 {
		return nil, fmt.Errorf("multi-class models are not supported (num_class=%d)", numClass)
	}
	numTarget, err := parseIntParam("num_target", param.NumTarget, 1)
	if err != nil {
		return nil, err
	}
	if numTarget > 1 {
		return nil, fmt.Errorf("multi-target models are not supported (num_target=%d)", numTarget)
	}
	numFeature, err := parseIntParam("num_feature", param.NumFeature, 0)
	if err != nil {
		return nil, err
	}
	if numFeature == 0 {
		numFeature = len(l.FeatureNames)
	}
	if len(l.FeatureNames) > 0 && len(l.FeatureNames) != numFeature {
		return nil, fmt.Errorf("model lists %d feature names for %d features", len(l.FeatureNames), numFeature)
	}

	obj, err := lookupObjective(l.Objective.Name)
	if err != nil {
		return nil, err
	}
	baseScore, err := parseBaseScore(param.BaseScore)
	if err != nil {
		return nil, err
	}
	baseMargin, err := obj.baseMargin(baseScore)
	if err != nil {
		return nil, err
	}

	b := &Booster{
		featureNames: l.FeatureNames,
		featureTypes: l.FeatureTypes,
		numFeature:   numFeature,
		baseMargin:   baseMargin,
		objective:    obj,
	}
	if err := b.decodeGradientBooster(l.GradientBooster); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Booster) decodeGradientBooster(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("learner has no gradient_booster")
	}
	var gb gradientBoosterJSON
	if err := json.Unmarshal(raw, &gb); err != nil {
		return fmt.Errorf("decode gradient_booster: %w", err)
	}
	b.name = gb.Name

	switch gb.Name {
	case "gbtree":
		var model gbtreeModelJSON
		if err := json.Unmarshal(gb.Model, &model); err != nil {
			return fmt.Errorf("decode gbtree model: %w", err)
		}
		ensemble, err := buildEnsemble(model, b.numFeature)
		if err != nil {
			return err
		}
		b.model = ensemble
	case "dart":
		if gb.Gbtree == nil {
			return errors.New("dart booster has no gbtree")
		}
		ensemble, err := buildEnsemble(gb.Gbtree.Model, b.numFeature)
		if err != nil {
			return err
		}
		if len(gb.WeightDrop) != len(ensemble.trees) {
			return fmt.Errorf("dart booster has %d weights for %d trees", len(gb.WeightDrop), len(ensemble.trees))
		}
		ensemble.weights = gb.WeightDrop
		b.model = ensemble
	case "gblinear":
		var model struct {
			Weights []float64 `json:"weights"`
		}
		if err := json.Unmarshal(gb.Model, &model); err != nil {
			return fmt.Errorf("decode gblinear model: %w", err)
		}
		if len(model.Weights) == 0 {
			return errors.New("gblinear model has no weights")
		}
		if b.numFeature == 0 {
			b.numFeature = len(model.Weights) - 1
		}
		if len(model.Weights) != b.numFeature+1 {
			return fmt.Errorf("gblinear model has %d weights for %d features", len(model.Weights), b.numFeature)
		}
		b.model = &linearModel{
			weights: model.Weights[:b.numFeature],
			bias:    model.Weights[b.numFeature],
		}
	default:
		return fmt.Errorf("unsupported gradient booster %q", gb.Name)
	}
	return nil
}

func buildEnsemble(model gbtreeModelJSON, numFeature int) (*treeEnsemble, error) {
	if len(model.Trees) == 0 {
		return nil, errors.New("tree model has no trees")
	}
	for _, group := range model.TreeInfo {
		if group != 0 {
			return nil, fmt.Errorf("tree output group %d is not supported", group)
		}
	}
	ensemble := &treeEnsemble{trees: make([]*regTree, len(model.Trees))}
	for i, src := range model.Trees {
		tree, err := buildTree(src, numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		ensemble.trees[i] = tree
	}
	return ensemble, nil
}

func parseIntParam(name, value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return n, nil
}

// parseBaseScore accepts both "5E-1" and the bracketed "[5E-1]" form written
// by newer XGBoost releases.
func parseBaseScore(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0.5, nil
	}
	value = strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	if strings.Contains(value, ",") {
		return 0, fmt.Errorf("vector base_score %q is not supported", value)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q", value)
	}
	return score, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
