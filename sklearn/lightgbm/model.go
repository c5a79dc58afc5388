package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// NodeType represents the type of a tree node
type NodeType int

const (
	// LeafNode represents a terminal node with a value
	LeafNode NodeType = iota
	// NumericalNode represents a node with numerical split
	NumericalNode
)

// Importance types accepted by GetFeatureImportance.
const (
	ImportanceGain  = "gain"
	ImportanceSplit = "split"
)

// Node represents a single node in a decision tree
type Node struct {
	// Node identification
	NodeID     int      // Unique identifier for the node
	ParentID   int      // Parent node ID (-1 for root)
	LeftChild  int      // Left child node ID (-1 if leaf)
	RightChild int      // Right child node ID (-1 if leaf)
	NodeType   NodeType // Type of the node

	// Split information (for non-leaf nodes)
	SplitFeature int     // Feature index used for splitting
	Threshold    float64 // Samples with value <= Threshold go left
	DefaultLeft  bool    // Default direction for missing values
	Gain         float64 // Split gain (reduction in loss)

	// Leaf information (for leaf nodes)
	LeafValue float64 // Value at leaf node, before shrinkage
	LeafCount int     // Number of training samples at leaf

	// Statistics
	SumHessian float64 // Sum of hessians of the training samples at this node
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree represents a single decision tree in the ensemble
type Tree struct {
	TreeIndex     int     // Index of the tree in ensemble
	NumLeaves     int     // Number of leaf nodes
	ShrinkageRate float64 // Learning rate applied to this tree

	Nodes []Node // All nodes in the tree; the root is Nodes[0]
}

// Predict returns the shrunk leaf value reached by features.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0

	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]

		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}

		featureValue := features[node.SplitFeature]
		switch {
		case math.IsNaN(featureValue):
			if node.DefaultLeft {
				nodeID = node.LeftChild
			} else {
				nodeID = node.RightChild
			}
		case featureValue <= node.Threshold:
			nodeID = node.LeftChild
		default:
			nodeID = node.RightChild
		}
	}

	return 0.0
}

// Model represents a fitted binary boosted-tree ensemble.
type Model struct {
	Objective    string  // Objective function name
	NumIteration int     // Number of boosting iterations
	LearningRate float64 // Base learning rate
	MaxDepth     int     // Maximum tree depth

	Trees []Tree

	NumFeatures int

	// InitScore is the raw score every prediction starts from.
	InitScore float64
}

// RawScore returns the untransformed ensemble output for one sample.
func (m *Model) RawScore(features []float64) float64 {
	score := m.InitScore
	for i := range m.Trees {
		score += m.Trees[i].Predict(features)
	}
	return score
}

// PredictProba returns the positive-class probability for each row of X.
func (m *Model) PredictProba(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, perrors.NewDimensionError("Model.PredictProba", m.NumFeatures, cols, 1)
	}

	out := make([]float64, rows)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		out[i] = sigmoid(m.RawScore(features))
	}
	return out, nil
}

// GetFeatureImportance returns per-feature importance normalized to sum to 1.
// "gain" sums split gains, "split" counts how often a feature is used.
func (m *Model) GetFeatureImportance(importanceType string) []float64 {
	importance := make([]float64, m.NumFeatures)

	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			switch importanceType {
			case ImportanceSplit:
				importance[node.SplitFeature]++
			case ImportanceGain:
				importance[node.SplitFeature] += node.Gain
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}

	return importance
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + perrors.StabilizeExp(-x))
}
