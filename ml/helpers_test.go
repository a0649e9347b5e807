package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeModel(t *testing.T, doc any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func learnerDoc(names []string, objective, baseScore string, booster map[string]any) map[string]any {
	return map[string]any{
		"version": []int{2, 0, 3},
		"learner": map[string]any{
			"feature_names":    names,
			"gradient_booster": booster,
			"learner_model_param": map[string]any{
				"base_score":  baseScore,
				"num_class":   "0",
				"num_feature": strconv.Itoa(len(names)),
				"num_target":  "1",
			},
			"objective": map[string]any{"name": objective},
		},
	}
}

func estimatorDoc(class string, names []string, learner map[string]any) map[string]any {
	return map[string]any{
		"estimator": map[string]any{
			"class":             class,
			"feature_names_in_": names,
			"n_features_in_":    len(names),
			"booster":           learner,
		},
	}
}

func gblinear(weights ...float64) map[string]any {
	return map[string]any{
		"name":  "gblinear",
		"model": map[string]any{"weights": weights},
	}
}

func gbtree(trees ...map[string]any) map[string]any {
	return map[string]any{
		"name": "gbtree",
		"model": map[string]any{
			"gbtree_model_param": map[string]any{"num_trees": strconv.Itoa(len(trees)), "num_parallel_tree": "1"},
			"tree_info":          make([]int, len(trees)),
			"trees":              trees,
		},
	}
}

// stump splits feature at cond: values below go to the left leaf.
func stump(feature int, cond, left, right float64, defaultLeft bool) map[string]any {
	dl := 0
	if defaultLeft {
		dl = 1
	}
	return map[string]any{
		"left_children":       []int{1, -1, -1},
		"right_children":      []int{2, -1, -1},
		"split_indices":       []int{feature, 0, 0},
		"split_conditions":    []float64{cond, left, right},
		"default_left":        []int{dl, 0, 0},
		"split_type":          []int{0, 0, 0},
		"categories":          []int{},
		"categories_nodes":    []int{},
		"categories_segments": []int{},
		"categories_sizes":    []int{},
	}
}

// trafficModel predicts 5 + 10*traffic_mean over the bus delay schema.
func trafficModel() map[string]any {
	names := BusDelaySchema().Names()
	weights := make([]float64, len(names)+1)
	weights[3] = 10
	weights[len(names)] = 5
	return learnerDoc(names, "reg:squarederror", "0", gblinear(weights...))
}
