package lightgbm

import (
	"math"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// ObjectiveFunction defines the interface for different objective functions
type ObjectiveFunction interface {
	// CalculateGradient calculates the gradient for a single sample
	CalculateGradient(prediction, target float64) float64

	// CalculateHessian calculates the hessian for a single sample
	CalculateHessian(prediction, target float64) float64

	// CalculateLoss calculates the loss for a single sample
	CalculateLoss(prediction, target float64) float64

	// GetInitScore returns the initial score for this objective
	GetInitScore(targets []float64) float64

	// Name returns the name of the objective
	Name() string
}

// BinaryLogloss is the logistic loss on raw scores. Positive samples are weighted by
// ScalePosWeight in the gradient, hessian, loss and initial score.
type BinaryLogloss struct {
	ScalePosWeight float64
}

// NewBinaryLogloss creates a binary log-loss objective.
func NewBinaryLogloss(scalePosWeight float64) *BinaryLogloss {
	if scalePosWeight <= 0 {
		scalePosWeight = 1
	}
	return &BinaryLogloss{ScalePosWeight: scalePosWeight}
}

func (o *BinaryLogloss) weight(target float64) float64 {
	if target > 0.5 {
		return o.ScalePosWeight
	}
	return 1
}

func (o *BinaryLogloss) CalculateGradient(prediction, target float64) float64 {
	return o.weight(target) * (sigmoid(prediction) - target)
}

func (o *BinaryLogloss) CalculateHessian(prediction, target float64) float64 {
	p := sigmoid(prediction)
	return math.Max(o.weight(target)*p*(1-p), 1e-16)
}

func (o *BinaryLogloss) CalculateLoss(prediction, target float64) float64 {
	p := sigmoid(prediction)
	loss := -(target*perrors.StabilizeLog(p) + (1-target)*perrors.StabilizeLog(1-p))
	return o.weight(target) * loss
}

// GetInitScore returns the log-odds of the weighted positive rate.
func (o *BinaryLogloss) GetInitScore(targets []float64) float64 {
	var pos, total float64
	for _, y := range targets {
		w := o.weight(y)
		total += w
		pos += w * y
	}
	if total == 0 {
		return 0
	}
	p := perrors.ClipValue(pos/total, 1e-15, 1-1e-15)
	return math.Log(p / (1 - p))
}

func (o *BinaryLogloss) Name() string {
	return "binary"
}

// CreateObjectiveFunction creates an objective function based on the objective name
func CreateObjectiveFunction(objective string, params *TrainingParams) (ObjectiveFunction, error) {
	switch objective {
	case "", "binary", "binary_logloss", "logistic", "binary:logistic":
		spw := 1.0
		if params != nil && params.ScalePosWeight > 0 {
			spw = params.ScalePosWeight
		}
		return NewBinaryLogloss(spw), nil
	default:
		return nil, perrors.NewValidationError("objective", "unsupported objective", objective)
	}
}
