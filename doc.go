// Package prospensity predicts whether a customer will buy the Wellness Tourism
// Package, trained on the travel company's CRM export.
//
// The repository is a set of small packages wired together by the orchestrator
// and the prospensity command:
//
//   - ingest loads the raw export from a local CSV or an s3://bucket/key object.
//   - preprocessing cleans the table (deduplication, imputation, category
//     consolidation, derived visitor features) and holds the scaler, the one-hot
//     encoder and the ColumnTransformer.
//   - model_selection performs the seeded train/test split.
//   - sklearn/lightgbm is the gradient-boosted tree classifier.
//   - training builds the feature dataset, fits and evaluates the pipeline and
//     writes the gob artifact with its metrics sidecar.
//   - orchestrator runs the stages in order and stops at the first failure.
//   - serve exposes the fitted pipeline over HTTP and provides the client.
//   - journal and report keep a SQLite run history and per-run PNG charts.
//
// # Quick Start
//
// Train on a local export and save the artifact:
//
//	opts := orchestrator.DefaultOptions()
//	opts.Source = ingest.Source{Path: "data/raw/tourism.csv"}
//	res, err := orchestrator.Run(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(res.Training.Report)
//
// Score one customer against the saved artifact:
//
//	pred, err := serve.LoadPredictor("models/model.gob")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := pred.Predict(input.Features())
//
// The same flows are available from the command line:
//
//	prospensity train --source s3://crm-exports/tourism.csv
//	prospensity serve --addr :8000
//	prospensity predict --input customer.json
//
// # Error Handling
//
// Every stage returns typed errors from pkg/errors (SourceNotFoundError,
// EmptySourceError, NotFittedError, PersistenceError, UpstreamError), carrying
// stack traces from cockroachdb/errors. orchestrator.StageOf reports which stage
// failed.
//
// # Logging
//
// Components log through pkg/log, backed by zerolog for JSON output or log/slog
// for text. Configure it with log.Init or the --log-level and --log-format flags.
package prospensity
