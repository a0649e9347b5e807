package ml

import (
	"fmt"
	"math"
)

type outputKind int

const (
	identityOutput outputKind = iota
	sigmoidOutput
	expOutput
)

type objective struct {
	name   string
	output outputKind
}

var objectives = map[string]outputKind{
	"reg:squarederror":     identityOutput,
	"reg:linear":           identityOutput,
	"reg:squaredlogerror":  identityOutput,
	"reg:pseudohubererror": identityOutput,
	"reg:absoluteerror":    identityOutput,
	"reg:quantileerror":    identityOutput,
	"binary:logitraw":      identityOutput,
	"reg:logistic":         sigmoidOutput,
	"binary:logistic":      sigmoidOutput,
	"count:poisson":        expOutput,
	"reg:gamma":            expOutput,
	"reg:tweedie":          expOutput,
}

func lookupObjective(name string) (objective, error) {
	if name == "" {
		name = "reg:squarederror"
	}
	kind, ok := objectives[name]
	if !ok {
		return objective{}, fmt.Errorf("unsupported objective %q", name)
	}
	return objective{name: name, output: kind}, nil
}

func (o objective) transform(margin float64) float64 {
	switch o.output {
	case sigmoidOutput:
		return 1 / (1 + math.Exp(-margin))
	case expOutput:
		return math.Exp(margin)
	default:
		return margin
	}
}

// baseMargin converts base_score from output space to margin space.
func (o objective) baseMargin(baseScore float64) (float64, error) {
	switch {
	case o.name == "binary:logitraw" || o.output == sigmoidOutput:
		if baseScore <= 0 || baseScore >= 1 {
			return 0, fmt.Errorf("base_score %v must be in (0, 1) for %s", baseScore, o.name)
		}
		return math.Log(baseScore / (1 - baseScore)), nil
	case o.output == expOutput:
		if baseScore <= 0 {
			return 0, fmt.Errorf("base_score %v must be positive for %s", baseScore, o.name)
		}
		return math.Log(baseScore), nil
	default:
		return baseScore, nil
	}
}

func (o objective) probability() bool { return o.output == sigmoidOutput }
