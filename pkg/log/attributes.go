// Package log defines standard attribute keys for pipeline and serving operations.
//
// Using the same keys everywhere keeps post-mortem analysis of a failed training run
// simple: every stage reports its shape under data.rows / data.columns and its name under
// pipeline.stage.

package log

// Component and operation context.
const (
	// ComponentKey identifies the logger's owning component.
	// Examples: "ingest", "preprocessing", "training", "serve"
	ComponentKey = "component"

	// ModelNameKey identifies the estimator or transformer type.
	// Examples: "LGBMClassifier", "StandardScaler", "OneHotEncoder"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// StageKey names the pipeline stage a message belongs to.
	StageKey = "pipeline.stage"

	// RunIDKey identifies one end-to-end training run.
	RunIDKey = "pipeline.run_id"
)

// Data shape and location.
const (
	// RowsKey is the number of rows in the table at the point of logging.
	RowsKey = "data.rows"

	// ColumnsKey is the number of columns in the table at the point of logging.
	ColumnsKey = "data.columns"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// SamplesKey indicates the number of samples seen by an estimator.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features seen by an estimator.
	FeaturesKey = "data.features"

	// SourceKey is the raw data locator (path or s3 URL).
	SourceKey = "source.location"

	// ArtifactKey is the path of the persisted prediction pipeline.
	ArtifactKey = "artifact.path"

	// PathKey is any other file path (samples, cleaned data, reports).
	PathKey = "file.path"
)

// Training and evaluation.
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy on the held-out partition.
	AccuracyKey = "metrics.accuracy"

	// PrecisionKey records positive-class precision.
	PrecisionKey = "metrics.precision"

	// RecallKey records positive-class recall.
	RecallKey = "metrics.recall"

	// F1Key records positive-class F1.
	F1Key = "metrics.f1"

	// AUCKey records ROC AUC of the positive-class probability.
	AUCKey = "metrics.auc"

	// LossKey records training loss.
	LossKey = "metrics.loss"

	// IterationKey records the boosting round.
	IterationKey = "training.iteration"

	// ScalePosWeightKey records the class-imbalance correction factor.
	ScalePosWeightKey = "training.scale_pos_weight"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// HyperParamsKey contains estimator hyperparameters.
	HyperParamsKey = "model.hyperparams"
)

// Prediction context.
const (
	// ConfidenceKey records the predicted class probability.
	ConfidenceKey = "preds.confidence"

	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Error context.
const (
	// ErrorKey holds the error message.
	ErrorKey = "error"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "stacktrace"

	// ErrorKindKey holds the error classification (see pkg/errors).
	ErrorKindKey = "error.kind"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	StageIngest     = "ingest"
	StagePreprocess = "preprocess"
	StageTransform  = "transform"
	StageTrain      = "train"
	StagePersist    = "persist"
	StageReport     = "report"
)
