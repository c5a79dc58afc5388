// Package report renders per-run diagnostic charts: gain-based feature importance
// and the ROC curve of the held-out partition.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/letstravel/prospensity/metrics"
	"github.com/letstravel/prospensity/pipeline"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// DefaultTopN is the number of features shown in the importance chart.
const DefaultTopN = 15

// Reporter writes PNG charts into Dir.
type Reporter struct {
	Dir  string
	TopN int

	logger log.Logger
}

// NewReporter creates a reporter writing into dir.
func NewReporter(dir string) *Reporter {
	return &Reporter{Dir: dir, TopN: DefaultTopN}
}

// WithTopN limits the importance chart to the n strongest features.
func (r *Reporter) WithTopN(n int) *Reporter {
	r.TopN = n
	return r
}

// WithLogger sets the logger.
func (r *Reporter) WithLogger(l log.Logger) *Reporter {
	r.logger = l
	return r
}

func (r *Reporter) getLogger() log.Logger {
	if r.logger == nil {
		r.logger = log.GetLoggerWithName("report")
	}
	return r.logger.With(log.StageKey, log.StageReport)
}

// Write renders both charts for runID and returns the written paths. A nil roc
// skips the ROC chart.
func (r *Reporter) Write(runID string, importances []pipeline.FeatureImportance, roc *metrics.ROC) ([]string, error) {
	logger := r.getLogger()
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		err = perrors.NewPersistenceError("mkdir", r.Dir, err)
		logger.Error("Report generation failed", err)
		return nil, err
	}

	var paths []string
	path := filepath.Join(r.Dir, runID+"_importance.png")
	if err := r.importanceChart(importances, path); err != nil {
		logger.Error("Report generation failed", err, log.PathKey, path)
		return nil, err
	}
	paths = append(paths, path)

	if roc != nil {
		path = filepath.Join(r.Dir, runID+"_roc.png")
		if err := rocChart(roc, path); err != nil {
			logger.Error("Report generation failed", err, log.PathKey, path)
			return nil, err
		}
		paths = append(paths, path)
	}

	logger.Info("Report written", "files", paths)
	return paths, nil
}

func (r *Reporter) importanceChart(importances []pipeline.FeatureImportance, path string) error {
	if len(importances) == 0 {
		return perrors.NewValueError("Reporter.importanceChart", "no feature importances")
	}
	top := importances
	if r.TopN > 0 && len(top) > r.TopN {
		top = top[:r.TopN]
	}

	// bars are drawn bottom-up, so the strongest feature goes last
	values := make(plotter.Values, len(top))
	names := make([]string, len(top))
	for i, fi := range top {
		j := len(top) - 1 - i
		values[j] = fi.Importance
		names[j] = fi.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance (gain)"
	p.X.Label.Text = "Normalized gain"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return perrors.Wrap(err, "building bar chart")
	}
	bars.Horizontal = true
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = plotter.DefaultLineStyle.Color
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(len(top))*vg.Points(18) + 2*vg.Inch
	if err := p.Save(8*vg.Inch, height, path); err != nil {
		return perrors.NewPersistenceError("save", path, err)
	}
	return nil
}

func rocChart(roc *metrics.ROC, path string) error {
	pts := make(plotter.XYs, len(roc.FPR))
	for i := range roc.FPR {
		pts[i].X = roc.FPR[i]
		pts[i].Y = roc.TPR[i]
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC curve (AUC = %.3f)", roc.Area())
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	curve, err := plotter.NewLine(pts)
	if err != nil {
		return perrors.Wrap(err, "building ROC line")
	}
	curve.LineStyle.Width = vg.Points(2)
	p.Add(curve)

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return perrors.Wrap(err, "building chance line")
	}
	chance.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(chance)

	p.Legend.Add("model", curve)
	p.Legend.Add("chance", chance)
	p.Legend.Top = false
	p.Legend.Left = false

	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return perrors.NewPersistenceError("save", path, err)
	}
	return nil
}
