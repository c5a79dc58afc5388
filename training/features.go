// Package training turns a cleaned record table into a fitted, evaluated and
// persisted prediction pipeline.
package training

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/table"
	"github.com/letstravel/prospensity/model_selection"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/preprocessing"
)

// DefaultTarget is the label column of the travel CRM export.
const DefaultTarget = "ProdTaken"

// Dataset is the output of FeatureTransformer.Transform: feature tables with the
// target removed, aligned (n, 1) label matrices, and the fitted column transformation.
type Dataset struct {
	XTrain *table.Table
	XTest  *table.Table
	YTrain *mat.Dense
	YTest  *mat.Dense

	Transformer *preprocessing.ColumnTransformer

	Categorical []string
	Numeric     []string
}

// FeatureTransformer splits a cleaned table and fits the column transformation on
// the training partition.
type FeatureTransformer struct {
	Target      string
	TestSize    float64
	RandomState uint64

	dataset *Dataset
	logger  log.Logger
}

// NewFeatureTransformer creates a transformer with the default target, a 0.2 test
// fraction and seed 42.
func NewFeatureTransformer() *FeatureTransformer {
	return &FeatureTransformer{
		Target:      DefaultTarget,
		TestSize:    model_selection.DefaultTestSize,
		RandomState: model_selection.DefaultRandomState,
	}
}

// WithTarget sets the label column.
func (ft *FeatureTransformer) WithTarget(target string) *FeatureTransformer {
	ft.Target = target
	return ft
}

// WithTestSize sets the held-out fraction.
func (ft *FeatureTransformer) WithTestSize(size float64) *FeatureTransformer {
	ft.TestSize = size
	return ft
}

// WithRandomState sets the split seed.
func (ft *FeatureTransformer) WithRandomState(seed uint64) *FeatureTransformer {
	ft.RandomState = seed
	return ft
}

// WithLogger sets the logger.
func (ft *FeatureTransformer) WithLogger(l log.Logger) *FeatureTransformer {
	ft.logger = l
	return ft
}

func (ft *FeatureTransformer) getLogger() log.Logger {
	if ft.logger == nil {
		ft.logger = log.GetLoggerWithName("training.feature_transformer")
	}
	return ft.logger.With(log.StageKey, log.StageTransform)
}

// Dataset returns the result of the last successful Transform, or nil.
func (ft *FeatureTransformer) Dataset() *Dataset {
	return ft.dataset
}

// Transform separates features and label, splits them, and fits a ColumnTransformer
// on the training features. On failure the previous result is discarded.
func (ft *FeatureTransformer) Transform(cleaned *table.Table) (*Dataset, error) {
	ft.dataset = nil
	logger := ft.getLogger()
	start := time.Now()

	ds, err := ft.transform(cleaned, logger)
	if err != nil {
		logger.Error("Feature transformation failed", err)
		return nil, err
	}

	ft.dataset = ds
	logger.Info("Feature transformation completed",
		"train_rows", ds.XTrain.NumRows(),
		"test_rows", ds.XTest.NumRows(),
		"categorical", ds.Categorical,
		"numeric", ds.Numeric,
		log.FeaturesKey, len(ds.Transformer.FeatureNames()),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func (ft *FeatureTransformer) transform(cleaned *table.Table, logger log.Logger) (*Dataset, error) {
	if cleaned.NumRows() == 0 {
		return nil, perrors.NewModelError("FeatureTransformer.Transform", "empty data", perrors.ErrEmptyData)
	}
	if _, err := labels(cleaned, ft.Target); err != nil {
		return nil, err
	}

	train, test, err := model_selection.TrainTestSplit(cleaned, ft.TestSize, ft.RandomState)
	if err != nil {
		return nil, err
	}
	logger.Debug("Split data",
		log.RowsKey, cleaned.NumRows(),
		"test_size", ft.TestSize,
		log.RandomSeedKey, ft.RandomState)

	yTrain, err := labels(train, ft.Target)
	if err != nil {
		return nil, err
	}
	yTest, err := labels(test, ft.Target)
	if err != nil {
		return nil, err
	}
	train.Drop(ft.Target)
	test.Drop(ft.Target)

	var categorical, numeric []string
	for i := 0; i < train.NumCols(); i++ {
		col := train.Col(i)
		if col.Kind().IsNumeric() {
			numeric = append(numeric, col.Name())
		} else {
			categorical = append(categorical, col.Name())
		}
	}

	ct := preprocessing.NewColumnTransformer(categorical, numeric).WithLogger(logger)
	if err := ct.Fit(train); err != nil {
		return nil, err
	}

	return &Dataset{
		XTrain:      train,
		XTest:       test,
		YTrain:      yTrain,
		YTest:       yTest,
		Transformer: ct,
		Categorical: categorical,
		Numeric:     numeric,
	}, nil
}

// labels extracts the target column as an (n, 1) matrix of 0/1 values.
func labels(t *table.Table, target string) (*mat.Dense, error) {
	col, ok := t.Column(target)
	if !ok {
		return nil, perrors.NewValidationError("target", "column not found", target)
	}
	if !col.Kind().IsNumeric() {
		return nil, perrors.NewValidationError(target, "target must be numeric 0/1", col.Kind().String())
	}
	n := t.NumRows()
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if col.IsMissing(i) {
			return nil, perrors.NewValidationError(target, "target has missing values", i)
		}
		v := col.Float(i)
		if v != 0 && v != 1 {
			return nil, perrors.NewValidationError(target, "target must be 0 or 1", v)
		}
		y.Set(i, 0, v)
	}
	return y, nil
}

// ScalePosWeight returns negatives/positives over y. It fails when y has no
// positive label.
func ScalePosWeight(y mat.Matrix) (float64, error) {
	n, _ := y.Dims()
	var pos, neg int
	for i := 0; i < n; i++ {
		if y.At(i, 0) == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 {
		return 0, perrors.NewValidationError("y", "training labels contain no positive samples", n)
	}
	return float64(neg) / float64(pos), nil
}
