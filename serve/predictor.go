// Package serve exposes a fitted pipeline over HTTP and provides the matching
// client used by presentation front ends.
package serve

import (
	"fmt"
	"time"

	"github.com/letstravel/prospensity/core/table"
	"github.com/letstravel/prospensity/pipeline"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// Prediction labels and probability keys returned to callers.
const (
	LabelLikely    = "Likely To Buy"
	LabelNotLikely = "Not Likely To Buy"
	ProbWillBuy    = "Will Buy"
	ProbWillNotBuy = "Will Not Buy"
)

// PredictionResponse is the body of a successful prediction.
type PredictionResponse struct {
	Prediction    string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor answers single-record predictions with a loaded pipeline. It only reads
// the pipeline, so one Predictor can serve concurrent requests.
type Predictor struct {
	pipeline *pipeline.Pipeline
	logger   log.Logger
}

// NewPredictor wraps a fitted pipeline.
func NewPredictor(p *pipeline.Pipeline) (*Predictor, error) {
	if p == nil || !p.IsFitted() {
		return nil, perrors.NewNotFittedError("Pipeline", "NewPredictor")
	}
	return &Predictor{pipeline: p}, nil
}

// LoadPredictor loads the artifact at path.
func LoadPredictor(path string) (*Predictor, error) {
	p, err := pipeline.Load(path)
	if err != nil {
		return nil, err
	}
	return NewPredictor(p)
}

// WithLogger sets the logger.
func (pr *Predictor) WithLogger(l log.Logger) *Predictor {
	pr.logger = l
	return pr
}

func (pr *Predictor) getLogger() log.Logger {
	if pr.logger == nil {
		pr.logger = log.GetLoggerWithName("serve.predictor")
	}
	return pr.logger
}

// Pipeline returns the wrapped pipeline.
func (pr *Predictor) Pipeline() *pipeline.Pipeline {
	return pr.pipeline
}

// Predict scores one engineered record. Every pipeline input column must be present;
// extra keys are ignored.
func (pr *Predictor) Predict(rec Record) (*PredictionResponse, error) {
	start := time.Now()
	t, err := recordTable(rec, pr.pipeline.InputColumns())
	if err != nil {
		return nil, err
	}
	proba, err := pr.pipeline.PredictProba(t)
	if err != nil {
		return nil, err
	}

	pNo, pYes := proba.At(0, 0), proba.At(0, 1)
	resp := &PredictionResponse{
		Prediction: LabelNotLikely,
		Confidence: pNo,
		Probabilities: map[string]float64{
			ProbWillNotBuy: pNo,
			ProbWillBuy:    pYes,
		},
	}
	if pYes >= 0.5 {
		resp.Prediction = LabelLikely
		resp.Confidence = pYes
	}

	pr.getLogger().Debug("Prediction served",
		log.OperationKey, log.OperationPredict,
		log.ConfidenceKey, resp.Confidence,
		"prediction", resp.Prediction,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return resp, nil
}

// recordTable lays out rec as a one-row table with the given columns.
func recordTable(rec Record, columns []string) (*table.Table, error) {
	cols := make([]*table.Column, 0, len(columns))
	for _, name := range columns {
		v, ok := rec[name]
		if !ok {
			return nil, perrors.NewValidationError(name, "required feature missing", nil)
		}
		switch x := v.(type) {
		case string:
			cols = append(cols, table.NewStringColumn(name, []string{x}, nil))
		case int64:
			cols = append(cols, table.NewIntColumn(name, []int64{x}, nil))
		case int:
			cols = append(cols, table.NewIntColumn(name, []int64{int64(x)}, nil))
		case float64:
			cols = append(cols, table.NewFloatColumn(name, []float64{x}, nil))
		default:
			return nil, perrors.NewValidationError(name, fmt.Sprintf("unsupported value type %T", v), v)
		}
	}
	return table.New(cols...)
}
