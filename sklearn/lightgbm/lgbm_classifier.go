package lightgbm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/model"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

var (
	_ model.Classifier      = (*LGBMClassifier)(nil)
	_ model.ParameterGetter = (*LGBMClassifier)(nil)
)

// LGBMClassifier implements a binary gradient-boosted tree classifier with a
// scikit-learn compatible API.
type LGBMClassifier struct {
	model.StateManager

	// Model
	Model *Model

	// Hyperparameters
	NEstimators     int     // Number of boosting iterations
	LearningRate    float64 // Boosting learning rate
	MaxDepth        int     // Maximum tree depth (<= 0 means no limit)
	MinChildSamples int     // Minimum number of data in one leaf
	MinChildWeight  float64 // Minimum sum of hessians in one leaf
	MinSplitGain    float64 // Minimum gain to make a split
	Subsample       float64 // Subsample ratio of training rows per tree
	ColsampleBytree float64 // Subsample ratio of columns per tree
	RegAlpha        float64 // L1 regularization
	RegLambda       float64 // L2 regularization
	ScalePosWeight  float64 // Weight of positive samples in the loss
	RandomState     int     // Random seed
	Objective       string  // Objective function
	Verbosity       int     // Verbosity level

	logger log.Logger
}

// NewLGBMClassifier creates a new classifier with default parameters
func NewLGBMClassifier() *LGBMClassifier {
	return &LGBMClassifier{
		NEstimators:     100,
		LearningRate:    0.3,
		MaxDepth:        6,
		MinChildSamples: 1,
		MinChildWeight:  1.0,
		MinSplitGain:    0.0,
		Subsample:       1.0,
		ColsampleBytree: 1.0,
		RegAlpha:        0.0,
		RegLambda:       1.0,
		ScalePosWeight:  1.0,
		RandomState:     42,
		Objective:       "binary",
		Verbosity:       -1,
	}
}

// WithNEstimators sets the number of boosting iterations
func (lgb *LGBMClassifier) WithNEstimators(n int) *LGBMClassifier {
	lgb.NEstimators = n
	return lgb
}

// WithLearningRate sets the learning rate
func (lgb *LGBMClassifier) WithLearningRate(lr float64) *LGBMClassifier {
	lgb.LearningRate = lr
	return lgb
}

// WithMaxDepth sets the maximum depth
func (lgb *LGBMClassifier) WithMaxDepth(d int) *LGBMClassifier {
	lgb.MaxDepth = d
	return lgb
}

// WithMinChildWeight sets the minimum hessian sum per leaf
func (lgb *LGBMClassifier) WithMinChildWeight(w float64) *LGBMClassifier {
	lgb.MinChildWeight = w
	return lgb
}

// WithRegAlpha sets the L1 regularization
func (lgb *LGBMClassifier) WithRegAlpha(alpha float64) *LGBMClassifier {
	lgb.RegAlpha = alpha
	return lgb
}

// WithRegLambda sets the L2 regularization
func (lgb *LGBMClassifier) WithRegLambda(lambda float64) *LGBMClassifier {
	lgb.RegLambda = lambda
	return lgb
}

// WithScalePosWeight sets the positive-class weight
func (lgb *LGBMClassifier) WithScalePosWeight(w float64) *LGBMClassifier {
	lgb.ScalePosWeight = w
	return lgb
}

// WithRandomState sets the random seed
func (lgb *LGBMClassifier) WithRandomState(seed int) *LGBMClassifier {
	lgb.RandomState = seed
	return lgb
}

// WithSubsample sets the row and column subsample ratios
func (lgb *LGBMClassifier) WithSubsample(rows, cols float64) *LGBMClassifier {
	lgb.Subsample = rows
	lgb.ColsampleBytree = cols
	return lgb
}

// WithLogger sets the logger
func (lgb *LGBMClassifier) WithLogger(l log.Logger) *LGBMClassifier {
	lgb.logger = l
	return lgb
}

func (lgb *LGBMClassifier) getLogger() log.Logger {
	if lgb.logger == nil {
		lgb.logger = log.GetLoggerWithName("lightgbm.classifier")
	}
	return lgb.logger
}

func (lgb *LGBMClassifier) validateParams() error {
	switch {
	case lgb.NEstimators <= 0:
		return perrors.NewValidationError("n_estimators", "must be positive", lgb.NEstimators)
	case lgb.LearningRate <= 0:
		return perrors.NewValidationError("learning_rate", "must be positive", lgb.LearningRate)
	case lgb.RegAlpha < 0:
		return perrors.NewValidationError("reg_alpha", "must be non-negative", lgb.RegAlpha)
	case lgb.RegLambda < 0:
		return perrors.NewValidationError("reg_lambda", "must be non-negative", lgb.RegLambda)
	case lgb.ScalePosWeight <= 0:
		return perrors.NewValidationError("scale_pos_weight", "must be positive", lgb.ScalePosWeight)
	case lgb.Subsample <= 0 || lgb.Subsample > 1:
		return perrors.NewValidationError("subsample", "must be in (0, 1]", lgb.Subsample)
	case lgb.ColsampleBytree <= 0 || lgb.ColsampleBytree > 1:
		return perrors.NewValidationError("colsample_bytree", "must be in (0, 1]", lgb.ColsampleBytree)
	}
	return nil
}

// Fit trains the classifier. y must be an (n, 1) matrix of 0/1 labels containing
// both classes.
func (lgb *LGBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer perrors.Recover(&err, "LGBMClassifier.Fit")
	lgb.Reset()

	if err := lgb.validateParams(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return perrors.NewDimensionError("LGBMClassifier.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return perrors.NewDimensionError("LGBMClassifier.Fit", 1, yCols, 1)
	}

	var pos, neg int
	for i := 0; i < yRows; i++ {
		switch y.At(i, 0) {
		case 0:
			neg++
		case 1:
			pos++
		default:
			return perrors.NewValidationError("y", "labels must be 0 or 1", y.At(i, 0))
		}
	}
	if pos == 0 || neg == 0 {
		return perrors.NewValidationError("y", "both classes must be present", fmt.Sprintf("pos=%d neg=%d", pos, neg))
	}

	logger := lgb.getLogger()
	logger.Info("Training LGBMClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.ScalePosWeightKey, lgb.ScalePosWeight,
		log.RandomSeedKey, lgb.RandomState,
	)

	params := TrainingParams{
		NumIterations:   lgb.NEstimators,
		LearningRate:    lgb.LearningRate,
		MaxDepth:        lgb.MaxDepth,
		MinDataInLeaf:   lgb.MinChildSamples,
		Lambda:          lgb.RegLambda,
		Alpha:           lgb.RegAlpha,
		MinGainToSplit:  lgb.MinSplitGain,
		MinSumHessian:   lgb.MinChildWeight,
		BaggingFraction: lgb.Subsample,
		FeatureFraction: lgb.ColsampleBytree,
		Objective:       lgb.Objective,
		ScalePosWeight:  lgb.ScalePosWeight,
		Seed:            lgb.RandomState,
		Verbosity:       lgb.Verbosity,
	}

	trainer := NewTrainer(params).WithLogger(logger)
	if err := trainer.Fit(X, y); err != nil {
		return perrors.NewModelError("LGBMClassifier.Fit", "training failed", err)
	}

	lgb.Model = trainer.GetModel()
	lgb.SetDimensions(cols, rows)
	lgb.SetFitted()

	logger.Info("Training completed", "trees", len(lgb.Model.Trees))
	return nil
}

// PredictProba returns an (n, 2) matrix whose columns are the probabilities of
// class 0 and class 1.
func (lgb *LGBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.RequireFitted("LGBMClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	if err := lgb.RequireFeatures("LGBMClassifier.PredictProba", cols); err != nil {
		return nil, err
	}

	p, err := lgb.Model.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(p), 2, nil)
	for i, v := range p {
		out.Set(i, 0, 1-v)
		out.Set(i, 1, v)
	}
	return out, nil
}

// Predict returns an (n, 1) matrix of predicted labels (1 when the positive-class
// probability is at least 0.5).
func (lgb *LGBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lgb.RequireFitted("LGBMClassifier", "Predict"); err != nil {
		return nil, err
	}
	proba, err := lgb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		if proba.At(i, 1) >= 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Score returns the mean accuracy on the given data and labels
func (lgb *LGBMClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lgb.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := y.Dims()
	if r, _ := pred.Dims(); r != rows {
		return 0, perrors.NewDimensionError("LGBMClassifier.Score", r, rows, 0)
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows), nil
}

// GetFeatureImportance returns feature importance scores
func (lgb *LGBMClassifier) GetFeatureImportance(importanceType string) []float64 {
	if !lgb.IsFitted() || lgb.Model == nil {
		return nil
	}
	return lgb.Model.GetFeatureImportance(importanceType)
}

// GetParams returns the parameters of the classifier
func (lgb *LGBMClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      lgb.NEstimators,
		"learning_rate":     lgb.LearningRate,
		"max_depth":         lgb.MaxDepth,
		"min_child_samples": lgb.MinChildSamples,
		"min_child_weight":  lgb.MinChildWeight,
		"min_split_gain":    lgb.MinSplitGain,
		"subsample":         lgb.Subsample,
		"colsample_bytree":  lgb.ColsampleBytree,
		"reg_alpha":         lgb.RegAlpha,
		"reg_lambda":        lgb.RegLambda,
		"scale_pos_weight":  lgb.ScalePosWeight,
		"random_state":      lgb.RandomState,
		"objective":         lgb.Objective,
	}
}

// SetParams sets the parameters of the classifier
func (lgb *LGBMClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "n_estimators", "num_iterations":
			if v, ok := value.(int); ok {
				lgb.NEstimators = v
			}
		case "learning_rate":
			if v, ok := value.(float64); ok {
				lgb.LearningRate = v
			}
		case "max_depth":
			if v, ok := value.(int); ok {
				lgb.MaxDepth = v
			}
		case "min_child_samples":
			if v, ok := value.(int); ok {
				lgb.MinChildSamples = v
			}
		case "min_child_weight":
			if v, ok := value.(float64); ok {
				lgb.MinChildWeight = v
			}
		case "subsample":
			if v, ok := value.(float64); ok {
				lgb.Subsample = v
			}
		case "colsample_bytree":
			if v, ok := value.(float64); ok {
				lgb.ColsampleBytree = v
			}
		case "reg_alpha":
			if v, ok := value.(float64); ok {
				lgb.RegAlpha = v
			}
		case "reg_lambda":
			if v, ok := value.(float64); ok {
				lgb.RegLambda = v
			}
		case "scale_pos_weight":
			if v, ok := value.(float64); ok {
				lgb.ScalePosWeight = v
			}
		case "random_state":
			if v, ok := value.(int); ok {
				lgb.RandomState = v
			}
		default:
			return perrors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}

func (lgb *LGBMClassifier) String() string {
	return fmt.Sprintf("LGBMClassifier(n_estimators=%d, learning_rate=%g, max_depth=%d, reg_alpha=%g, reg_lambda=%g, scale_pos_weight=%g)",
		lgb.NEstimators, lgb.LearningRate, lgb.MaxDepth, lgb.RegAlpha, lgb.RegLambda, lgb.ScalePosWeight)
}
