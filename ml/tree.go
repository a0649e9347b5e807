package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type TreeNode struct {
	FeatureIdx  int
	Threshold   float64
	LeftChild   int
	RightChild  int
	DefaultLeft bool
	IsLeaf      bool
	// Categories is non-nil for categorical splits; listed categories go right.
	Categories map[int]struct{}
}

type regTree struct {
	nodes []TreeNode
}

func (t *regTree) leafValue(row []float32) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, errors.New("empty tree")
	}
	idx := 0
	for steps := 0; steps <= len(t.nodes); steps++ {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node.Threshold, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(row) {
			return 0, fmt.Errorf("feature index %d out of range", node.FeatureIdx)
		}
		idx = node.next(row[node.FeatureIdx])
	}
	return 0, errors.New("invalid tree state")
}

func (n TreeNode) next(value float32) int {
	if math.IsNaN(float64(value)) {
		if n.DefaultLeft {
			return n.LeftChild
		}
		return n.RightChild
	}
	if n.Categories != nil {
		cat := float64(value)
		if cat < 0 || cat != math.Trunc(cat) {
			return n.LeftChild
		}
		if _, ok := n.Categories[int(cat)]; ok {
			return n.RightChild
		}
		return n.LeftChild
	}
	if value < float32(n.Threshold) {
		return n.LeftChild
	}
	return n.RightChild
}

// treeJSON mirrors one entry of "trees" in the XGBoost JSON model format.
type treeJSON struct {
	LeftChildren       []int      `json:"left_children"`
	RightChildren      []int      `json:"right_children"`
	SplitIndices       []int      `json:"split_indices"`
	SplitConditions    []float64  `json:"split_conditions"`
	DefaultLeft        []flexBool `json:"default_left"`
	SplitType          []int      `json:"split_type"`
	Categories         []int      `json:"categories"`
	CategoriesNodes    []int      `json:"categories_nodes"`
	CategoriesSegments []int      `json:"categories_segments"`
	CategoriesSizes    []int      `json:"categories_sizes"`
}

func buildTree(src treeJSON, numFeature int) (*regTree, error) {
	n := len(src.LeftChildren)
	if n == 0 {
		return nil, errors.New("tree has no nodes")
	}
	if len(src.RightChildren) != n || len(src.SplitIndices) != n || len(src.SplitConditions) != n {
		return nil, errors.New("tree arrays have inconsistent lengths")
	}
	if len(src.DefaultLeft) != 0 && len(src.DefaultLeft) != n {
		return nil, errors.New("default_left length does not match node count")
	}

	nodes := make([]TreeNode, n)
	for i := range nodes {
		left, right := src.LeftChildren[i], src.RightChildren[i]
		node := TreeNode{
			FeatureIdx: src.SplitIndices[i],
			Threshold:  src.SplitConditions[i],
			LeftChild:  left,
			RightChild: right,
			IsLeaf:     left == -1,
		}
		if len(src.DefaultLeft) == n {
			node.DefaultLeft = bool(src.DefaultLeft[i])
		}
		if !node.IsLeaf {
			if left <= 0 || left >= n || right <= 0 || right >= n {
				return nil, fmt.Errorf("node %d has child out of range", i)
			}
			if numFeature > 0 && (node.FeatureIdx < 0 || node.FeatureIdx >= numFeature) {
				return nil, fmt.Errorf("node %d splits on feature %d, model has %d features", i, node.FeatureIdx, numFeature)
			}
		}
		nodes[i] = node
	}

	if len(src.CategoriesNodes) != len(src.CategoriesSegments) || len(src.CategoriesNodes) != len(src.CategoriesSizes) {
		return nil, errors.New("categorical split arrays have inconsistent lengths")
	}
	for k, nodeID := range src.CategoriesNodes {
		if nodeID < 0 || nodeID >= n {
			return nil, fmt.Errorf("categorical node %d out of range", nodeID)
		}
		start, size := src.CategoriesSegments[k], src.CategoriesSizes[k]
		if start < 0 || size < 0 || start+size > len(src.Categories) {
			return nil, fmt.Errorf("categories segment for node %d out of range", nodeID)
		}
		set := make(map[int]struct{}, size)
		for _, cat := range src.Categories[start : start+size] {
			set[cat] = struct{}{}
		}
		nodes[nodeID].Categories = set
	}
	for i, splitType := range src.SplitType {
		if i < n && splitType == 1 && !nodes[i].IsLeaf && nodes[i].Categories == nil {
			nodes[i].Categories = map[int]struct{}{}
		}
	}

	return &regTree{nodes: nodes}, nil
}

// flexBool accepts both the boolean and the 0/1 integer encodings XGBoost
// has used for default_left.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("default_left: %w", err)
		}
		*b = v != 0
	}
	return nil
}

type treeEnsemble struct {
	trees []*regTree
	// weights is set for dart boosters only.
	weights []float64
}

func (e *treeEnsemble) margin(row []float32) (float64, error) {
	sum := 0.0
	for i, tree := range e.trees {
		leaf, err := tree.leafValue(row)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		if e.weights != nil {
			leaf *= e.weights[i]
		}
		sum += leaf
	}
	return sum, nil
}

type linearModel struct {
	weights []float64
	bias    float64
}

func (l *linearModel) margin(row []float32) (float64, error) {
	if len(row) > len(l.weights) {
		return 0, fmt.Errorf("row has %d features, linear model has %d weights", len(row), len(l.weights))
	}
	sum := l.bias
	for j, v := range row {
		if math.IsNaN(float64(v)) {
			continue
		}
		sum += l.weights[j] * float64(v)
	}
	return sum, nil
}
