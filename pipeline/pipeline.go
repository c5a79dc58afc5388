// Package pipeline composes a fitted column transformation with a fitted classifier
// into the single artifact the trainer persists and the serving path loads.
package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/preprocessing"
	"github.com/letstravel/prospensity/sklearn/lightgbm"
)

// FormatVersion is bumped whenever the gob layout of Pipeline changes incompatibly.
const FormatVersion = "1"

// Pipeline applies Transformer to a record table and feeds the result to Classifier.
// After Save it is never mutated.
type Pipeline struct {
	Version     string
	Transformer *preprocessing.ColumnTransformer
	Classifier  *lightgbm.LGBMClassifier
}

// New creates a pipeline from a transformer (fitted or not) and an unfitted classifier.
func New(ct *preprocessing.ColumnTransformer, clf *lightgbm.LGBMClassifier) *Pipeline {
	return &Pipeline{
		Version:     FormatVersion,
		Transformer: ct,
		Classifier:  clf,
	}
}

// IsFitted reports whether both stages are fitted.
func (p *Pipeline) IsFitted() bool {
	return p.Transformer != nil && p.Transformer.IsFitted() &&
		p.Classifier != nil && p.Classifier.IsFitted()
}

// Fit fits the transformer if it is not fitted yet, then fits the classifier on the
// transformed features. y is an (n, 1) matrix of 0/1 labels aligned with t.
func (p *Pipeline) Fit(t *table.Table, y mat.Matrix) error {
	if p.Transformer == nil || p.Classifier == nil {
		return perrors.NewValueError("Pipeline.Fit", "pipeline requires a transformer and a classifier")
	}
	if !p.Transformer.IsFitted() {
		if err := p.Transformer.Fit(t); err != nil {
			return err
		}
	}
	X, err := p.Transformer.Transform(t)
	if err != nil {
		return err
	}
	return p.Classifier.Fit(X, y)
}

func (p *Pipeline) transform(t *table.Table, method string) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, perrors.NewNotFittedError("Pipeline", method)
	}
	return p.Transformer.Transform(t)
}

// PredictProba returns an (n, 2) matrix of class probabilities for the rows of t.
func (p *Pipeline) PredictProba(t *table.Table) (mat.Matrix, error) {
	X, err := p.transform(t, "PredictProba")
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(X)
}

// Predict returns an (n, 1) matrix of predicted 0/1 labels for the rows of t.
func (p *Pipeline) Predict(t *table.Table) (mat.Matrix, error) {
	X, err := p.transform(t, "Predict")
	if err != nil {
		return nil, err
	}
	return p.Classifier.Predict(X)
}

// InputColumns returns the record columns the pipeline reads.
func (p *Pipeline) InputColumns() []string {
	if p.Transformer == nil {
		return nil
	}
	return p.Transformer.InputColumns()
}

// FeatureNames returns the transformed feature names.
func (p *Pipeline) FeatureNames() []string {
	if p.Transformer == nil {
		return nil
	}
	return p.Transformer.FeatureNames()
}

// FeatureImportance pairs a transformed feature with its normalized importance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// FeatureImportances returns gain importances sorted in descending order.
func (p *Pipeline) FeatureImportances() ([]FeatureImportance, error) {
	if !p.IsFitted() {
		return nil, perrors.NewNotFittedError("Pipeline", "FeatureImportances")
	}
	names := p.FeatureNames()
	gains := p.Classifier.GetFeatureImportance(lightgbm.ImportanceGain)
	if len(names) != len(gains) {
		return nil, perrors.NewDimensionError("Pipeline.FeatureImportances", len(names), len(gains), 1)
	}
	out := make([]FeatureImportance, len(names))
	for i := range names {
		out[i] = FeatureImportance{Feature: names[i], Importance: gains[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	return out, nil
}

// Save persists the fitted pipeline to path, creating parent directories. The
// previous artifact at path is replaced wholesale or left untouched on failure.
func (p *Pipeline) Save(path string) error {
	if !p.IsFitted() {
		return perrors.NewNotFittedError("Pipeline", "Save")
	}
	return model.SaveModel(p, path)
}

// Load reads a pipeline written by Save.
func Load(path string) (*Pipeline, error) {
	p := &Pipeline{}
	if err := model.LoadModel(p, path); err != nil {
		return nil, err
	}
	if p.Version != FormatVersion {
		return nil, perrors.NewValidationError("version", "unsupported artifact format", p.Version)
	}
	if !p.IsFitted() {
		return nil, perrors.NewNotFittedError("Pipeline", "Load")
	}
	return p, nil
}
