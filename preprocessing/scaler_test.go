package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	tests := []struct {
		name       string
		X          *mat.Dense
		centering  string
		wantCenter []float64
		wantScale  []float64
	}{
		{
			name:       "mean centering",
			X:          mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40}),
			centering:  CenterMean,
			wantCenter: []float64{2.5, 25},
			wantScale:  []float64{math.Sqrt(1.25), math.Sqrt(125)},
		},
		{
			name:       "median centering",
			X:          mat.NewDense(3, 1, []float64{1, 2, 9}),
			centering:  CenterMedian,
			wantCenter: []float64{2},
			wantScale:  []float64{math.Sqrt(38.0 / 3.0)},
		},
		{
			name:       "constant column keeps unit scale",
			X:          mat.NewDense(3, 1, []float64{5, 5, 5}),
			centering:  CenterMean,
			wantCenter: []float64{5},
			wantScale:  []float64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStandardScalerDefault().WithCentering(tt.centering)
			require.NoError(t, s.Fit(tt.X))
			assert.InDeltaSlice(t, tt.wantCenter, s.Center, 1e-9)
			assert.InDeltaSlice(t, tt.wantScale, s.Scale, 1e-9)

			out, err := s.Transform(tt.X)
			require.NoError(t, err)
			back, err := s.InverseTransform(out)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(tt.X, back, 1e-9))
		})
	}
}

func TestStandardScalerStandardizesTrainingData(t *testing.T) {
	X := mat.NewDense(5, 1, []float64{2, 4, 4, 5, 10})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	col := mat.Col(nil, 0, out)
	var sum, sq float64
	for _, v := range col {
		sum += v
		sq += v * v
	}
	assert.InDelta(t, 0, sum/5, 1e-9)
	assert.InDelta(t, 1, sq/5, 1e-9)
}

func TestStandardScalerErrors(t *testing.T) {
	s := NewStandardScalerDefault()

	_, err := s.Transform(mat.NewDense(1, 1, []float64{1}))
	var nf *perrors.NotFittedError
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(1, 3, []float64{1, 2, 3}))
	var dim *perrors.DimensionError
	assert.ErrorAs(t, err, &dim)

	bad := NewStandardScalerDefault().WithCentering("mode")
	err = bad.Fit(mat.NewDense(1, 1, []float64{1}))
	var ve *perrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMedianAndMode(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median(nil)))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input must not be reordered")

	level, ok := Mode(map[string]int{"b": 2, "a": 2, "c": 1})
	assert.True(t, ok)
	assert.Equal(t, "a", level, "ties go to the smallest level")

	_, ok = Mode(map[string]int{})
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b", "c"}, SortedLevels(map[string]int{"c": 1, "a": 1, "b": 1}))
}
