package training

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/core/table"
	"github.com/letstravel/prospensity/pipeline"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// cleanedTable mimics the output of the cleaner: categorical strings, integer
// numerics and a 0/1 target where one row in five is positive.
func cleanedTable(t *testing.T, n int) *table.Table {
	t.Helper()
	designations := []string{"Executive", "Manager", "Senior Manager", "AVP", "VP"}
	designation := make([]string, n)
	age := make([]int64, n)
	income := make([]int64, n)
	passport := make([]int64, n)
	target := make([]int64, n)
	for i := 0; i < n; i++ {
		designation[i] = designations[i%5]
		age[i] = int64(25 + i%30)
		income[i] = int64(15000 + (i%7)*1000)
		passport[i] = int64((i / 5) % 2)
		if i%5 == 0 {
			target[i] = 1
		}
	}
	tbl, err := table.New(
		table.NewStringColumn("Designation", designation, nil),
		table.NewIntColumn("Age", age, nil),
		table.NewIntColumn("MonthlyIncome", income, nil),
		table.NewIntColumn("Passport", passport, nil),
		table.NewIntColumn(DefaultTarget, target, nil),
	)
	require.NoError(t, err)
	return tbl
}

func TestScalePosWeight(t *testing.T) {
	tests := []struct {
		name    string
		labels  []float64
		want    float64
		wantErr bool
	}{
		{"twenty percent positive", []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0}, 4.0, false},
		{"balanced", []float64{1, 0, 1, 0}, 1.0, false},
		{"all positive", []float64{1, 1, 1}, 0.0, false},
		{"no positives", []float64{0, 0, 0}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := mat.NewDense(len(tt.labels), 1, tt.labels)
			got, err := ScalePosWeight(y)
			if tt.wantErr {
				var ve *perrors.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureTransformerTransform(t *testing.T) {
	tbl := cleanedTable(t, 50)
	ft := NewFeatureTransformer()
	assert.Nil(t, ft.Dataset())

	ds, err := ft.Transform(tbl)
	require.NoError(t, err)
	assert.Same(t, ds, ft.Dataset())

	assert.Equal(t, 40, ds.XTrain.NumRows())
	assert.Equal(t, 10, ds.XTest.NumRows())
	r, c := ds.YTrain.Dims()
	assert.Equal(t, 40, r)
	assert.Equal(t, 1, c)
	r, _ = ds.YTest.Dims()
	assert.Equal(t, 10, r)

	assert.False(t, ds.XTrain.HasColumn(DefaultTarget))
	assert.False(t, ds.XTest.HasColumn(DefaultTarget))
	assert.Equal(t, []string{"Designation"}, ds.Categorical)
	assert.Equal(t, []string{"Age", "MonthlyIncome", "Passport"}, ds.Numeric)
	assert.True(t, ds.Transformer.IsFitted())

	// input untouched
	assert.True(t, tbl.HasColumn(DefaultTarget))
	assert.Equal(t, 50, tbl.NumRows())
}

func TestFeatureTransformerDeterministic(t *testing.T) {
	tbl := cleanedTable(t, 60)
	a, err := NewFeatureTransformer().Transform(tbl)
	require.NoError(t, err)
	b, err := NewFeatureTransformer().Transform(tbl)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.YTrain, b.YTrain))
	assert.Equal(t, a.XTest.Row(0), b.XTest.Row(0))

	c, err := NewFeatureTransformer().WithRandomState(7).Transform(tbl)
	require.NoError(t, err)
	assert.Equal(t, 48, c.XTrain.NumRows())
}

func TestFeatureTransformerErrors(t *testing.T) {
	tbl := cleanedTable(t, 20)

	tests := []struct {
		name string
		ft   *FeatureTransformer
		in   *table.Table
	}{
		{"missing target", NewFeatureTransformer().WithTarget("Purchased"), tbl},
		{"categorical target", NewFeatureTransformer().WithTarget("Designation"), tbl},
		{"bad test size", NewFeatureTransformer().WithTestSize(1.5), tbl},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ft.Transform(tt.in)
			require.Error(t, err)
			assert.Nil(t, tt.ft.Dataset())
			assert.True(t, perrors.IsPrecondition(err))
		})
	}

	nonBinary := tbl.Clone()
	vals := make([]int64, 20)
	vals[3] = 2
	require.NoError(t, nonBinary.ReplaceColumn(table.NewIntColumn(DefaultTarget, vals, nil)))
	_, err := NewFeatureTransformer().Transform(nonBinary)
	var ve *perrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestModelTrainerRequiresTransform(t *testing.T) {
	logger, buf := log.NewTestLogger(log.LevelDebug)
	path := filepath.Join(t.TempDir(), "model.gob")

	res, err := NewModelTrainer(NewFeatureTransformer(), path).WithLogger(logger).Train(context.Background())
	assert.Nil(t, res)
	var nf *perrors.NotFittedError
	require.ErrorAs(t, err, &nf)
	assert.True(t, perrors.IsPrecondition(err))
	assert.Contains(t, buf.String(), "Training precondition failed")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no artifact may be written")
}

func TestModelTrainerTrain(t *testing.T) {
	tbl := cleanedTable(t, 100)
	ft := NewFeatureTransformer()
	_, err := ft.Transform(tbl)
	require.NoError(t, err)

	logger, buf := log.NewTestLogger(log.LevelInfo)
	path := filepath.Join(t.TempDir(), "models", "model.gob")
	params := DefaultClassifierParams()
	params.NEstimators = 20

	mt := NewModelTrainer(ft, path).WithParams(params).WithRunID("run-1").WithLogger(logger)
	res, err := mt.Train(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Greater(t, res.ScalePosWeight, 0.0)
	assert.Equal(t, 20, res.Report.Support)
	assert.GreaterOrEqual(t, res.Report.Accuracy, 0.0)
	assert.LessOrEqual(t, res.Report.Accuracy, 1.0)
	assert.Equal(t, path+MetricsSuffix, res.MetadataPath)

	out := buf.String()
	assert.Contains(t, out, "Computed class imbalance factor")
	assert.Contains(t, out, "Model evaluated")
	assert.Contains(t, out, "Pipeline saved")
	assert.Contains(t, out, `"pipeline.run_id":"run-1"`)

	loaded, err := pipeline.Load(path)
	require.NoError(t, err)
	want, err := res.Pipeline.PredictProba(ft.Dataset().XTest)
	require.NoError(t, err)
	got, err := loaded.PredictProba(ft.Dataset().XTest)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))

	meta, err := model.ReadMetadata(res.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, "LGBMClassifier", meta.ModelType)
	assert.Equal(t, res.Report.Accuracy, meta.Metrics["accuracy"])
	assert.InDelta(t, 0.1, meta.Hyperparameters["reg_alpha"], 1e-12)
	assert.InDelta(t, 5.0, meta.Hyperparameters["reg_lambda"], 1e-12)
	assert.InDelta(t, res.ScalePosWeight, meta.Hyperparameters["scale_pos_weight"], 1e-12)
	assert.True(t, meta.IsFitted)
}

func TestModelTrainerPersistenceFailure(t *testing.T) {
	ft := NewFeatureTransformer()
	_, err := ft.Transform(cleanedTable(t, 40))
	require.NoError(t, err)

	// a regular file where the artifact directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	params := DefaultClassifierParams()
	params.NEstimators = 3
	_, err = NewModelTrainer(ft, filepath.Join(blocker, "model.gob")).WithParams(params).Train(context.Background())
	var pe *perrors.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, perrors.IsTransient(err))
}

func TestModelTrainerSidecarFailureKeepsArtifact(t *testing.T) {
	ft := NewFeatureTransformer()
	_, err := ft.Transform(cleanedTable(t, 40))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob")
	// a directory where the sidecar file should go
	require.NoError(t, os.MkdirAll(path+MetricsSuffix, 0o755))

	params := DefaultClassifierParams()
	params.NEstimators = 3
	_, err = NewModelTrainer(ft, path).WithParams(params).Train(context.Background())
	var pe *perrors.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "pipeline saved to "+path)
	assert.Contains(t, err.Error(), "metadata sidecar not written")

	p, err := pipeline.Load(path)
	require.NoError(t, err)
	assert.True(t, p.IsFitted())
}

func TestModelTrainerCancelled(t *testing.T) {
	ft := NewFeatureTransformer()
	_, err := ft.Transform(cleanedTable(t, 40))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "model.gob")
	_, err = NewModelTrainer(ft, path).Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDefaultClassifierParams(t *testing.T) {
	clf := DefaultClassifierParams().build(4)
	params := clf.GetParams()
	for key, want := range map[string]interface{}{
		"n_estimators":     100,
		"learning_rate":    0.3,
		"max_depth":        6,
		"reg_alpha":        0.1,
		"reg_lambda":       5.0,
		"scale_pos_weight": 4.0,
		"random_state":     42,
	} {
		assert.Equal(t, want, params[key], key)
	}
	assert.True(t, strings.HasPrefix(clf.String(), "LGBMClassifier"))
}
