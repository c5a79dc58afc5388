package lightgbm

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/parallel"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// Nodes and score updates below these sizes run on the calling goroutine.
const (
	parallelSplitMinRows = 2048
	parallelRowThreshold = 4096
)

// Trainer implements greedy gradient-boosted tree training on a dense matrix.
type Trainer struct {
	params TrainingParams

	X *mat.Dense
	y []float64

	gradients []float64
	hessians  []float64

	// scores caches the raw ensemble output for every training sample.
	scores []float64

	trees []Tree

	iteration int
	rng       *rand.Rand

	objective ObjectiveFunction
	initScore float64

	logger log.Logger
}

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	// Basic parameters
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	MaxDepth      int     `json:"max_depth"`
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// Regularization
	Lambda         float64 `json:"lambda_l2"`
	Alpha          float64 `json:"lambda_l1"`
	MinGainToSplit float64 `json:"min_gain_to_split"`
	MinSumHessian  float64 `json:"min_sum_hessian_in_leaf"`

	// Sampling
	BaggingFraction float64 `json:"bagging_fraction"`
	FeatureFraction float64 `json:"feature_fraction"`

	// Objective
	Objective      string  `json:"objective"`
	ScalePosWeight float64 `json:"scale_pos_weight"`

	Seed      int `json:"seed"`
	Verbosity int `json:"verbosity"`
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature    int
	Threshold  float64
	Gain       float64
	LeftCount  int
	RightCount int
	LeftGrad   float64
	RightGrad  float64
	LeftHess   float64
	RightHess  float64
}

// NewTrainer creates a new trainer, filling unset parameters with defaults.
func NewTrainer(params TrainingParams) *Trainer {
	if params.NumIterations == 0 {
		params.NumIterations = 100
	}
	if params.LearningRate == 0 {
		params.LearningRate = 0.3
	}
	if params.MinDataInLeaf == 0 {
		params.MinDataInLeaf = 1
	}
	if params.BaggingFraction == 0 {
		params.BaggingFraction = 1.0
	}
	if params.FeatureFraction == 0 {
		params.FeatureFraction = 1.0
	}

	return &Trainer{
		params: params,
		rng:    rand.New(rand.NewPCG(uint64(params.Seed), uint64(params.Seed))),
		logger: log.GetLoggerWithName("lightgbm.trainer"),
	}
}

// WithLogger sets the logger used for training progress.
func (t *Trainer) WithLogger(l log.Logger) *Trainer {
	t.logger = l
	return t
}

// Fit trains the ensemble. y must be a single column of 0/1 labels.
func (t *Trainer) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return perrors.NewDimensionError("Trainer.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return perrors.NewDimensionError("Trainer.Fit", 1, yCols, 1)
	}
	if rows == 0 || cols == 0 {
		return perrors.NewModelError("Trainer.Fit", "empty data", perrors.ErrEmptyData)
	}

	t.X = mat.DenseCopyOf(X)
	t.y = mat.Col(nil, 0, y)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(t.X.At(i, j)) || math.IsInf(t.X.At(i, j), 0) {
				return perrors.NewValueError("Trainer.Fit", "input contains NaN or infinity")
			}
		}
	}

	objFunc, err := CreateObjectiveFunction(t.params.Objective, &t.params)
	if err != nil {
		return err
	}
	t.objective = objFunc
	t.initScore = t.objective.GetInitScore(t.y)

	t.gradients = make([]float64, rows)
	t.hessians = make([]float64, rows)
	t.scores = make([]float64, rows)
	for i := range t.scores {
		t.scores[i] = t.initScore
	}
	t.trees = t.trees[:0]

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.iteration = iter

		t.calculateGradients()

		tree := t.buildTree()
		t.trees = append(t.trees, tree)
		t.updatePredictions(&tree)

		loss := t.calculateLoss()
		if err := perrors.CheckScalar("Trainer.Fit", loss, iter); err != nil {
			return err
		}

		if t.params.Verbosity > 0 && iter%10 == 0 {
			t.logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, loss,
				"leaves", tree.NumLeaves)
		}
	}

	return nil
}

// calculateGradients computes gradients and hessians for current predictions
func (t *Trainer) calculateGradients() {
	for i, target := range t.y {
		t.gradients[i] = t.objective.CalculateGradient(t.scores[i], target)
		t.hessians[i] = t.objective.CalculateHessian(t.scores[i], target)
	}
}

// sampleRows returns the rows used to grow the current tree.
func (t *Trainer) sampleRows() []int {
	rows := len(t.y)
	if t.params.BaggingFraction >= 1 {
		indices := make([]int, rows)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	n := int(math.Max(1, math.Round(float64(rows)*t.params.BaggingFraction)))
	indices := t.rng.Perm(rows)[:n]
	sort.Ints(indices)
	return indices
}

// sampleFeatures returns the features considered by the current tree.
func (t *Trainer) sampleFeatures() []int {
	_, cols := t.X.Dims()
	if t.params.FeatureFraction >= 1 {
		features := make([]int, cols)
		for j := range features {
			features[j] = j
		}
		return features
	}
	n := int(math.Max(1, math.Round(float64(cols)*t.params.FeatureFraction)))
	features := t.rng.Perm(cols)[:n]
	sort.Ints(features)
	return features
}

// buildTree constructs a single decision tree
func (t *Trainer) buildTree() Tree {
	tree := Tree{
		TreeIndex:     t.iteration,
		ShrinkageRate: t.params.LearningRate,
		Nodes:         []Node{},
	}

	features := t.sampleFeatures()
	t.buildNode(&tree, t.sampleRows(), features, -1, 0)
	tree.NumLeaves = t.countLeaves(&tree)

	return tree
}

// buildNode recursively builds tree nodes and returns the index of the created node.
func (t *Trainer) buildNode(tree *Tree, indices, features []int, parentIdx int, depth int) int {
	nodeIdx := len(tree.Nodes)
	sumGrad, sumHess := t.sums(indices)

	leaf := Node{
		NodeID:     nodeIdx,
		ParentID:   parentIdx,
		NodeType:   LeafNode,
		LeafValue:  t.calculateLeafValue(sumGrad, sumHess),
		LeafCount:  len(indices),
		SumHessian: sumHess,
		LeftChild:  -1,
		RightChild: -1,
	}

	if (t.params.MaxDepth > 0 && depth >= t.params.MaxDepth) ||
		len(indices) < 2*t.params.MinDataInLeaf {
		tree.Nodes = append(tree.Nodes, leaf)
		return nodeIdx
	}

	bestSplit := t.findBestSplit(indices, features, sumGrad, sumHess)
	if bestSplit.Feature < 0 || bestSplit.Gain <= t.params.MinGainToSplit {
		tree.Nodes = append(tree.Nodes, leaf)
		return nodeIdx
	}

	tree.Nodes = append(tree.Nodes, Node{
		NodeID:       nodeIdx,
		ParentID:     parentIdx,
		NodeType:     NumericalNode,
		SplitFeature: bestSplit.Feature,
		Threshold:    bestSplit.Threshold,
		DefaultLeft:  true,
		Gain:         bestSplit.Gain,
		SumHessian:   sumHess,
	})

	leftIndices, rightIndices := t.splitData(indices, bestSplit)

	leftChild := t.buildNode(tree, leftIndices, features, nodeIdx, depth+1)
	rightChild := t.buildNode(tree, rightIndices, features, nodeIdx, depth+1)

	tree.Nodes[nodeIdx].LeftChild = leftChild
	tree.Nodes[nodeIdx].RightChild = rightChild

	return nodeIdx
}

func (t *Trainer) sums(indices []int) (sumGrad, sumHess float64) {
	for _, idx := range indices {
		sumGrad += t.gradients[idx]
		sumHess += t.hessians[idx]
	}
	return sumGrad, sumHess
}

// findBestSplit finds the best split for a set of samples. Feature is -1 when no
// admissible split exists.
func (t *Trainer) findBestSplit(indices, features []int, totalGrad, totalHess float64) SplitInfo {
	threshold := len(features)
	if len(indices) >= parallelSplitMinRows {
		threshold = 1
	}
	splits := parallel.Map(len(features), threshold, func(k int) SplitInfo {
		return t.findBestSplitForFeature(indices, features[k], totalGrad, totalHess)
	})

	// ties go to the lowest feature index, independent of scheduling
	bestSplit := SplitInfo{Feature: -1, Gain: math.Inf(-1)}
	for _, split := range splits {
		if split.Feature >= 0 && split.Gain > bestSplit.Gain {
			bestSplit = split
		}
	}
	return bestSplit
}

type featureValue struct {
	value float64
	idx   int
}

// findBestSplitForFeature scans every distinct threshold of one feature.
func (t *Trainer) findBestSplitForFeature(indices []int, feature int, totalGrad, totalHess float64) SplitInfo {
	values := make([]featureValue, len(indices))
	for i, idx := range indices {
		values[i] = featureValue{value: t.X.At(idx, feature), idx: idx}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].value < values[j].value
	})

	bestSplit := SplitInfo{Feature: -1, Gain: math.Inf(-1)}

	leftGrad := 0.0
	leftHess := 0.0
	leftCount := 0

	for i := 0; i < len(values)-1; i++ {
		idx := values[i].idx
		leftGrad += t.gradients[idx]
		leftHess += t.hessians[idx]
		leftCount++

		if values[i].value == values[i+1].value {
			continue
		}

		rightGrad := totalGrad - leftGrad
		rightHess := totalHess - leftHess
		rightCount := len(values) - leftCount

		if leftCount < t.params.MinDataInLeaf || rightCount < t.params.MinDataInLeaf {
			continue
		}
		if leftHess < t.params.MinSumHessian || rightHess < t.params.MinSumHessian {
			continue
		}

		gain := t.calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess)

		if gain > bestSplit.Gain {
			bestSplit = SplitInfo{
				Feature:    feature,
				Threshold:  (values[i].value + values[i+1].value) / 2,
				Gain:       gain,
				LeftCount:  leftCount,
				RightCount: rightCount,
				LeftGrad:   leftGrad,
				RightGrad:  rightGrad,
				LeftHess:   leftHess,
				RightHess:  rightHess,
			}
		}
	}

	return bestSplit
}

// thresholdL1 applies the L1 soft-threshold to a gradient sum.
func (t *Trainer) thresholdL1(g float64) float64 {
	alpha := t.params.Alpha
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	default:
		return 0
	}
}

func (t *Trainer) leafScore(g, h float64) float64 {
	tg := t.thresholdL1(g)
	return tg * tg / (h + t.params.Lambda)
}

// calculateSplitGain calculates the regularized loss reduction of a split
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	return 0.5 * (t.leafScore(leftGrad, leftHess) + t.leafScore(rightGrad, rightHess) - t.leafScore(totalGrad, totalHess))
}

// splitData splits indices based on a split decision
func (t *Trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	leftIndices := make([]int, 0, split.LeftCount)
	rightIndices := make([]int, 0, split.RightCount)

	for _, idx := range indices {
		if t.X.At(idx, split.Feature) <= split.Threshold {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	return leftIndices, rightIndices
}

// calculateLeafValue calculates the optimal leaf weight under L1 and L2 regularization
func (t *Trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	denom := sumHess + t.params.Lambda
	if denom < 1e-10 {
		return 0
	}
	return -t.thresholdL1(sumGrad) / denom
}

// updatePredictions adds the new tree's output to the cached scores
func (t *Trainer) updatePredictions(tree *Tree) {
	rows, _ := t.X.Dims()
	parallel.ParallelizeWithThreshold(rows, parallelRowThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			t.scores[i] += tree.Predict(t.X.RawRowView(i))
		}
	})
}

// calculateLoss calculates the current weighted mean loss
func (t *Trainer) calculateLoss() float64 {
	loss := 0.0
	for i, target := range t.y {
		loss += t.objective.CalculateLoss(t.scores[i], target)
	}
	return loss / float64(len(t.y))
}

// countLeaves counts the number of leaf nodes in a tree
func (t *Trainer) countLeaves(tree *Tree) int {
	count := 0
	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	_, cols := t.X.Dims()
	trees := make([]Tree, len(t.trees))
	copy(trees, t.trees)
	return &Model{
		Objective:    t.objective.Name(),
		NumIteration: len(trees),
		LearningRate: t.params.LearningRate,
		MaxDepth:     t.params.MaxDepth,
		Trees:        trees,
		NumFeatures:  cols,
		InitScore:    t.initScore,
	}
}
