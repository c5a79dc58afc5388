// Package orchestrator runs the training pipeline end to end: ingest, clean,
// transform, train and persist.
//
// Stages run sequentially in one goroutine and the first failing stage aborts the
// run. Side outputs (sample and cleaned CSV exports) are part of the run and fail it;
// the run journal and the charts are bookkeeping and only log a warning on failure.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/table"
	"github.com/letstravel/prospensity/ingest"
	"github.com/letstravel/prospensity/journal"
	"github.com/letstravel/prospensity/metrics"
	"github.com/letstravel/prospensity/pkg/config"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
	"github.com/letstravel/prospensity/preprocessing"
	"github.com/letstravel/prospensity/report"
	"github.com/letstravel/prospensity/training"
)

// Options configures one run. Zero-valued optional paths disable the matching output.
// Zero-valued cleaning, split and model fields take their DefaultOptions values.
type Options struct {
	Source       ingest.Source
	ArtifactPath string

	SamplePath  string
	SampleSize  int
	CleanedPath string
	JournalPath string
	ReportDir   string

	Target        string
	IDColumn      string
	RareThreshold int
	TestSize      float64
	RandomState   uint64
	Params        training.ClassifierParams

	// Client serves remote sources. When nil one is built from AWSRegion and
	// AWSEndpoint on first use.
	Client      ingest.ObjectGetter
	AWSRegion   string
	AWSEndpoint string

	RunID  string
	Logger log.Logger
}

// DefaultOptions returns options matching config.New.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.New())
	return opts
}

// OptionsFromConfig maps a loaded configuration onto run options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	src, err := ingest.ParseSource(cfg.Source)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Source:        src,
		ArtifactPath:  cfg.ArtifactPath,
		SamplePath:    cfg.SamplePath,
		SampleSize:    cfg.SampleSize,
		CleanedPath:   cfg.CleanedPath,
		JournalPath:   cfg.JournalPath,
		ReportDir:     cfg.ReportDir,
		Target:        cfg.Target,
		IDColumn:      cfg.IDColumn,
		RareThreshold: cfg.RareThreshold,
		TestSize:      cfg.TestSize,
		RandomState:   cfg.RandomState,
		Params: training.ClassifierParams{
			NEstimators:    cfg.Classifier.NEstimators,
			LearningRate:   cfg.Classifier.LearningRate,
			MaxDepth:       cfg.Classifier.MaxDepth,
			RegAlpha:       cfg.Classifier.RegAlpha,
			RegLambda:      cfg.Classifier.RegLambda,
			MinChildWeight: cfg.Classifier.MinChildWeight,
			RandomState:    int(cfg.RandomState),
		},
		AWSRegion:   cfg.AWSRegion,
		AWSEndpoint: cfg.AWSEndpoint,
	}, nil
}

// withDefaults fills zero-valued fields from DefaultOptions. An all-zero Params takes
// every default; otherwise only the fields that cannot be zero are filled.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Target == "" {
		o.Target = def.Target
	}
	if o.IDColumn == "" {
		o.IDColumn = def.IDColumn
	}
	if o.RareThreshold == 0 {
		o.RareThreshold = def.RareThreshold
	}
	if o.TestSize == 0 {
		o.TestSize = def.TestSize
	}
	if o.SamplePath != "" && o.SampleSize == 0 {
		o.SampleSize = def.SampleSize
	}
	if o.Params == (training.ClassifierParams{}) {
		o.Params = def.Params
		return o
	}
	if o.Params.NEstimators == 0 {
		o.Params.NEstimators = def.Params.NEstimators
	}
	if o.Params.LearningRate == 0 {
		o.Params.LearningRate = def.Params.LearningRate
	}
	if o.Params.MaxDepth == 0 {
		o.Params.MaxDepth = def.Params.MaxDepth
	}
	return o
}

// Result summarizes a successful run.
type Result struct {
	RunID     string
	RawRows   int
	CleanRows int
	Training  *training.Result
	Reports   []string
	Duration  time.Duration
}

// StageError records which stage a run failed in. It unwraps to the stage's error so
// callers can still match SourceNotFoundError and friends.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return "stage " + e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the failing stage of err, or "" when err did not come from Run.
func StageOf(err error) string {
	var se *StageError
	if perrors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type runner struct {
	opts   Options
	logger log.Logger
	entry  *journal.Run
}

// Run executes the pipeline. The first stage error is logged with its stage and
// returned wrapped in a StageError; nothing after it runs.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.ArtifactPath == "" {
		return nil, perrors.NewValidationError("ArtifactPath", "must not be empty", opts.ArtifactPath)
	}
	opts = opts.withDefaults()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("orchestrator")
	}
	logger = logger.With(log.RunIDKey, opts.RunID)

	r := &runner{
		opts:   opts,
		logger: logger,
		entry: &journal.Run{
			ID:        opts.RunID,
			StartedAt: time.Now().UTC(),
			Source:    opts.Source.String(),
			Artifact:  opts.ArtifactPath,
		},
	}

	logger.Info("Training pipeline started", log.SourceKey, opts.Source.String(), log.ArtifactKey, opts.ArtifactPath)
	res, err := r.run(ctx)
	r.entry.FinishedAt = time.Now().UTC()
	if err != nil {
		r.entry.Status = journal.StatusFailed
		r.entry.Stage = StageOf(err)
		r.entry.Error = err.Error()
		r.record(ctx)
		return nil, err
	}
	r.entry.Status = journal.StatusSucceeded
	r.record(ctx)

	res.Duration = r.entry.FinishedAt.Sub(r.entry.StartedAt)
	logger.Info("Training pipeline completed", log.DurationMsKey, res.Duration.Milliseconds())
	return res, nil
}

func (r *runner) fail(stage string, err error) error {
	r.logger.Error("Pipeline stage failed", err, log.StageKey, stage)
	return &StageError{Stage: stage, Err: err}
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	opts := r.opts
	res := &Result{RunID: opts.RunID}

	// ingest
	ing, err := r.ingestor(ctx)
	if err != nil {
		return nil, r.fail(log.StageIngest, err)
	}
	raw, err := ing.Load(ctx, opts.Source)
	if err != nil {
		return nil, r.fail(log.StageIngest, err)
	}
	res.RawRows = raw.NumRows()
	r.entry.RawRows = res.RawRows
	r.logShape("Raw data loaded", raw)

	if opts.SamplePath != "" && opts.Source.IsRemote() {
		if err := ing.SaveSample(raw, opts.SamplePath); err != nil {
			return nil, r.fail(log.StageIngest, err)
		}
	}

	// preprocess
	cleaner := preprocessing.NewCleaner().
		WithIDColumn(opts.IDColumn).
		WithRareThreshold(opts.RareThreshold).
		WithExclude(opts.Target).
		WithLogger(r.logger)
	cleaned, err := cleaner.Clean(raw)
	if err != nil {
		return nil, r.fail(log.StagePreprocess, err)
	}
	res.CleanRows = cleaned.NumRows()
	r.entry.CleanRows = res.CleanRows
	r.logShape("Data cleaned", cleaned)

	if opts.CleanedPath != "" {
		if err := cleaner.SaveCleaned(cleaned, opts.CleanedPath); err != nil {
			return nil, r.fail(log.StagePreprocess, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, r.fail(log.StagePreprocess, err)
	}

	// transform
	ft := training.NewFeatureTransformer().
		WithTarget(opts.Target).
		WithTestSize(opts.TestSize).
		WithRandomState(opts.RandomState).
		WithLogger(r.logger)
	ds, err := ft.Transform(cleaned)
	if err != nil {
		return nil, r.fail(log.StageTransform, err)
	}
	r.logShape("Training partition ready", ds.XTrain)

	// train and persist
	tr, err := training.NewModelTrainer(ft, opts.ArtifactPath).
		WithParams(opts.Params).
		WithRunID(opts.RunID).
		WithLogger(r.logger).
		Train(ctx)
	if err != nil {
		return nil, r.fail(log.StageTrain, err)
	}
	res.Training = tr
	r.entry.ScalePosWeight = tr.ScalePosWeight
	rep := tr.Report
	r.entry.Metrics = &rep

	if opts.ReportDir != "" {
		res.Reports = r.writeReport(ds, tr)
	}
	return res, nil
}

func (r *runner) ingestor(ctx context.Context) (*ingest.Ingestor, error) {
	ing := ingest.NewIngestor().WithLogger(r.logger).WithRequiredColumns(r.opts.Target)
	if r.opts.SampleSize > 0 {
		ing.WithSample(r.opts.SampleSize, r.opts.RandomState)
	}
	if !r.opts.Source.IsRemote() {
		return ing, nil
	}
	client := r.opts.Client
	if client == nil {
		c, err := ingest.NewS3Client(ctx, r.opts.AWSRegion, r.opts.AWSEndpoint)
		if err != nil {
			return nil, perrors.Wrap(err, "configuring object store client")
		}
		client = c
	}
	return ing.WithClient(client), nil
}

func (r *runner) logShape(msg string, t *table.Table) {
	rows, cols := t.Shape()
	r.logger.Info(msg, log.RowsKey, rows, log.ColumnsKey, cols)
}

func (r *runner) writeReport(ds *training.Dataset, tr *training.Result) []string {
	logger := r.logger.With(log.StageKey, log.StageReport)

	imp, err := tr.Pipeline.FeatureImportances()
	if err != nil {
		logger.Warn("Skipping report", err)
		return nil
	}

	var roc *metrics.ROC
	proba, err := tr.Pipeline.PredictProba(ds.XTest)
	if err == nil {
		n, _ := proba.Dims()
		yTrue := mat.NewVecDense(n, mat.Col(nil, 0, ds.YTest))
		yScore := mat.NewVecDense(n, mat.Col(nil, 1, proba))
		roc, err = metrics.ROCCurve(yTrue, yScore)
	}
	if err != nil {
		logger.Warn("ROC curve unavailable", err)
	}

	paths, err := report.NewReporter(r.opts.ReportDir).WithLogger(r.logger).Write(r.opts.RunID, imp, roc)
	if err != nil {
		logger.Warn("Report not written", err)
		return nil
	}
	return paths
}

func (r *runner) record(ctx context.Context) {
	if r.opts.JournalPath == "" {
		return
	}
	j, err := journal.Open(r.opts.JournalPath)
	if err != nil {
		r.logger.Warn("Run journal unavailable", err, log.PathKey, r.opts.JournalPath)
		return
	}
	defer j.Close()
	if err := j.Record(context.WithoutCancel(ctx), r.entry); err != nil {
		r.logger.Warn("Run not journaled", err, log.PathKey, r.opts.JournalPath)
		return
	}
	r.logger.Debug("Run journaled", log.PathKey, r.opts.JournalPath, "status", r.entry.Status)
}
