package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestThresholdL1(t *testing.T) {
	tr := NewTrainer(TrainingParams{Alpha: 0.5})
	tests := []struct {
		g, want float64
	}{
		{2, 1.5},
		{-2, -1.5},
		{0.3, 0},
		{-0.5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.thresholdL1(tt.g), "g=%v", tt.g)
	}
}

func TestCalculateLeafValue(t *testing.T) {
	tr := NewTrainer(TrainingParams{Alpha: 0.1, Lambda: 5})
	// -(4 - 0.1) / (3 + 5)
	assert.InDelta(t, -3.9/8, tr.calculateLeafValue(4, 3), 1e-12)
	assert.Equal(t, 0.0, tr.calculateLeafValue(0.05, 3))
}

func TestCalculateSplitGain(t *testing.T) {
	tr := NewTrainer(TrainingParams{Lambda: 1})
	// 0.5 * (4/2 + 4/2 - 0/3)
	assert.InDelta(t, 2.0, tr.calculateSplitGain(-2, 1, 2, 1, 0, 2), 1e-12)
}

func TestBinaryLogloss(t *testing.T) {
	obj := NewBinaryLogloss(4)

	assert.InDelta(t, -0.5*4, obj.CalculateGradient(0, 1), 1e-12)
	assert.InDelta(t, 0.5, obj.CalculateGradient(0, 0), 1e-12)
	assert.InDelta(t, 0.25*4, obj.CalculateHessian(0, 1), 1e-12)
	assert.InDelta(t, 4*math.Log(2), obj.CalculateLoss(0, 1), 1e-12)

	// 1 positive weighted 4 against 4 negatives balances at 0.5
	assert.InDelta(t, 0, obj.GetInitScore([]float64{1, 0, 0, 0, 0}), 1e-12)
	assert.InDelta(t, math.Log(0.25), NewBinaryLogloss(1).GetInitScore([]float64{1, 0, 0, 0, 0}), 1e-12)
}

func TestCreateObjectiveFunction(t *testing.T) {
	obj, err := CreateObjectiveFunction("binary", &TrainingParams{ScalePosWeight: 3})
	require.NoError(t, err)
	assert.Equal(t, "binary", obj.Name())
	assert.Equal(t, 3.0, obj.(*BinaryLogloss).ScalePosWeight)

	_, err = CreateObjectiveFunction("regression", nil)
	assert.Error(t, err)
}

func TestTrainerRespectsMaxDepth(t *testing.T) {
	X, y := makeBinaryData(100, 2)
	tr := NewTrainer(TrainingParams{NumIterations: 3, MaxDepth: 2, Lambda: 1})
	require.NoError(t, tr.Fit(X, y))

	m := tr.GetModel()
	require.Len(t, m.Trees, 3)
	for _, tree := range m.Trees {
		assert.LessOrEqual(t, tree.NumLeaves, 4)
		assert.LessOrEqual(t, treeDepth(&tree, 0), 2)
	}
}

func TestTrainerLossDecreases(t *testing.T) {
	X, y := makeBinaryData(100, 4)

	loss := func(iterations int) float64 {
		tr := NewTrainer(TrainingParams{NumIterations: iterations, MaxDepth: 3, Lambda: 1})
		require.NoError(t, tr.Fit(X, y))
		return tr.calculateLoss()
	}
	assert.Less(t, loss(10), loss(1))
}

func TestTreePredictMissingGoesDefault(t *testing.T) {
	tree := Tree{
		ShrinkageRate: 0.5,
		Nodes: []Node{
			{NodeType: NumericalNode, SplitFeature: 0, Threshold: 1, DefaultLeft: true, LeftChild: 1, RightChild: 2},
			{NodeType: LeafNode, LeafValue: -2, LeftChild: -1, RightChild: -1},
			{NodeType: LeafNode, LeafValue: 4, LeftChild: -1, RightChild: -1},
		},
	}
	assert.Equal(t, -1.0, tree.Predict([]float64{0}))
	assert.Equal(t, 2.0, tree.Predict([]float64{3}))
	assert.Equal(t, -1.0, tree.Predict([]float64{math.NaN()}))
}

func TestModelPredictProbaDimension(t *testing.T) {
	m := &Model{NumFeatures: 2}
	p, err := m.PredictProba(mat.NewDense(1, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, p)

	_, err = m.PredictProba(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func treeDepth(tree *Tree, node int) int {
	n := &tree.Nodes[node]
	if n.IsLeaf() {
		return 0
	}
	l := treeDepth(tree, n.LeftChild)
	r := treeDepth(tree, n.RightChild)
	if l > r {
		return l + 1
	}
	return r + 1
}

func TestTrainerLargeNodesDeterministic(t *testing.T) {
	// enough rows to take the parallel split search and score update paths
	X, y := makeBinaryData(parallelRowThreshold+500, 21)

	fit := func() *Model {
		tr := NewTrainer(TrainingParams{NumIterations: 3, MaxDepth: 3, Lambda: 1, LearningRate: 0.3})
		require.NoError(t, tr.Fit(X, y))
		return tr.GetModel()
	}
	a, b := fit(), fit()
	require.Len(t, a.Trees, 3)
	for i := range a.Trees {
		assert.Equal(t, a.Trees[i].Nodes, b.Trees[i].Nodes)
	}
}
