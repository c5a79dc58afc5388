package training

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/metrics"
	"github.com/letstravel/prospensity/pipeline"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/sklearn/lightgbm"
)

// MetricsSuffix is appended to the artifact path to name the metadata sidecar.
const MetricsSuffix = ".metrics.json"

// ClassifierParams are the boosted-tree hyperparameters the trainer uses. The
// positive-class weight is always derived from the training labels.
type ClassifierParams struct {
	NEstimators    int     `yaml:"n_estimators" json:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`
	RegAlpha       float64 `yaml:"reg_alpha" json:"reg_alpha"`
	RegLambda      float64 `yaml:"reg_lambda" json:"reg_lambda"`
	MinChildWeight float64 `yaml:"min_child_weight" json:"min_child_weight"`
	RandomState    int     `yaml:"random_state" json:"random_state"`
}

// DefaultClassifierParams returns L1 0.1, L2 5 and seed 42 on top of the usual
// 100 rounds of depth-6 trees at learning rate 0.3.
func DefaultClassifierParams() ClassifierParams {
	return ClassifierParams{
		NEstimators:    100,
		LearningRate:   0.3,
		MaxDepth:       6,
		RegAlpha:       0.1,
		RegLambda:      5,
		MinChildWeight: 1,
		RandomState:    42,
	}
}

func (p ClassifierParams) build(scalePosWeight float64) *lightgbm.LGBMClassifier {
	return lightgbm.NewLGBMClassifier().
		WithNEstimators(p.NEstimators).
		WithLearningRate(p.LearningRate).
		WithMaxDepth(p.MaxDepth).
		WithRegAlpha(p.RegAlpha).
		WithRegLambda(p.RegLambda).
		WithMinChildWeight(p.MinChildWeight).
		WithRandomState(p.RandomState).
		WithScalePosWeight(scalePosWeight)
}

// Result is what a successful Train produced.
type Result struct {
	RunID          string
	Pipeline       *pipeline.Pipeline
	Report         metrics.BinaryReport
	ScalePosWeight float64
	ArtifactPath   string
	MetadataPath   string
}

// ModelTrainer fits the classifier on the dataset produced by a FeatureTransformer,
// evaluates it on the held-out partition and persists the composed pipeline.
type ModelTrainer struct {
	ArtifactPath string
	Params       ClassifierParams
	RunID        string

	features *FeatureTransformer
	logger   log.Logger
}

// NewModelTrainer creates a trainer reading its dataset from ft.
func NewModelTrainer(ft *FeatureTransformer, artifactPath string) *ModelTrainer {
	return &ModelTrainer{
		ArtifactPath: artifactPath,
		Params:       DefaultClassifierParams(),
		RunID:        uuid.NewString(),
		features:     ft,
	}
}

// WithParams sets the classifier hyperparameters.
func (mt *ModelTrainer) WithParams(p ClassifierParams) *ModelTrainer {
	mt.Params = p
	return mt
}

// WithRunID overrides the generated run identifier.
func (mt *ModelTrainer) WithRunID(id string) *ModelTrainer {
	mt.RunID = id
	return mt
}

// WithLogger sets the logger.
func (mt *ModelTrainer) WithLogger(l log.Logger) *ModelTrainer {
	mt.logger = l
	return mt
}

func (mt *ModelTrainer) getLogger() log.Logger {
	if mt.logger == nil {
		mt.logger = log.GetLoggerWithName("training.model_trainer")
	}
	return mt.logger.With(log.RunIDKey, mt.RunID)
}

// Train fits, evaluates and persists. It returns a NotFittedError without training
// when the feature transformer has not completed a Transform.
func (mt *ModelTrainer) Train(ctx context.Context) (*Result, error) {
	logger := mt.getLogger()

	ds := mt.features.Dataset()
	if ds == nil {
		err := perrors.NewNotFittedError("FeatureTransformer", "Train")
		logger.Error("Training precondition failed", err, log.StageKey, log.StageTrain)
		return nil, err
	}

	res, err := mt.train(ctx, ds, logger)
	if err != nil {
		logger.Error("Model training failed", err)
		return nil, err
	}
	return res, nil
}

func (mt *ModelTrainer) train(ctx context.Context, ds *Dataset, logger log.Logger) (*Result, error) {
	trainLogger := logger.With(log.StageKey, log.StageTrain)
	start := time.Now()

	spw, err := ScalePosWeight(ds.YTrain)
	if err != nil {
		return nil, err
	}
	trainLogger.Info("Computed class imbalance factor", log.ScalePosWeightKey, spw)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clf := mt.Params.build(spw).WithLogger(trainLogger)
	p := pipeline.New(ds.Transformer, clf)
	if err := p.Fit(ds.XTrain, ds.YTrain); err != nil {
		return nil, err
	}

	proba, err := p.PredictProba(ds.XTest)
	if err != nil {
		return nil, err
	}
	report, err := metrics.NewBinaryReportFromMatrix(ds.YTest, proba)
	if err != nil {
		return nil, err
	}
	trainLogger.Info("Model evaluated",
		log.AccuracyKey, report.Accuracy,
		log.PrecisionKey, report.Precision,
		log.RecallKey, report.Recall,
		log.F1Key, report.F1,
		log.AUCKey, report.AUC,
		"report", report,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	persistLogger := logger.With(log.StageKey, log.StagePersist)
	if err := p.Save(mt.ArtifactPath); err != nil {
		return nil, err
	}
	persistLogger.Info("Pipeline saved", log.ArtifactKey, mt.ArtifactPath)

	metaPath := mt.ArtifactPath + MetricsSuffix
	meta := &model.ArtifactMetadata{
		RunID:           mt.RunID,
		ModelType:       "LGBMClassifier",
		Version:         pipeline.FormatVersion,
		CreatedAt:       time.Now().UTC(),
		Features:        p.FeatureNames(),
		Hyperparameters: clf.GetParams(),
		Metrics:         report.ToMap(),
		Metadata: map[string]interface{}{
			"train_rows":  ds.XTrain.NumRows(),
			"test_rows":   ds.XTest.NumRows(),
			"target":      mt.features.Target,
			"categorical": ds.Categorical,
			"numeric":     ds.Numeric,
		},
		IsFitted: true,
	}
	if err := meta.WriteFile(metaPath); err != nil {
		return nil, perrors.Wrapf(err, "pipeline saved to %s but metadata sidecar not written", mt.ArtifactPath)
	}
	persistLogger.Debug("Metadata saved", log.PathKey, metaPath)

	return &Result{
		RunID:          mt.RunID,
		Pipeline:       p,
		Report:         report,
		ScalePosWeight: spw,
		ArtifactPath:   mt.ArtifactPath,
		MetadataPath:   metaPath,
	}, nil
}
