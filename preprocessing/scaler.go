package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/letstravel/prospensity/core/model"
	perrors "github.com/letstravel/prospensity/pkg/errors"
)

var (
	_ model.Transformer     = (*StandardScaler)(nil)
	_ model.ParameterGetter = (*StandardScaler)(nil)
)

// Centering strategies for StandardScaler.
const (
	CenterMean   = "mean"
	CenterMedian = "median"
)

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを中心0、標準偏差1に変換する
type StandardScaler struct {
	model.StateManager

	// Center は各特徴量の中心（平均または中央値）
	Center []float64

	// Scale は各特徴量の標準偏差
	Scale []float64

	// WithMean は中心を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	// Centering は中心の計算方法 ("mean" または "median")
	Centering string
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// パラメータ:
//   - withMean: 中心を引くかどうか (デフォルト: true)
//   - withStd: 標準偏差で割るかどうか (デフォルト: true)
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean:  withMean,
		WithStd:   withStd,
		Centering: CenterMean,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// WithCentering は中心の計算方法を設定する
func (s *StandardScaler) WithCentering(centering string) *StandardScaler {
	s.Centering = centering
	return s
}

// Fit は訓練データから統計情報（中心、標準偏差）を計算する
//
// 標準偏差は中心に関係なく母分散（自由度 n）から計算する。
// 標準偏差が0に近い特徴量はスケール1として扱う。
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer perrors.Recover(&err, "StandardScaler.Fit")
	s.Reset()

	r, c := X.Dims()
	if r == 0 || c == 0 {
		return perrors.NewModelError("StandardScaler.Fit", "empty data", perrors.ErrEmptyData)
	}
	if s.Centering != CenterMean && s.Centering != CenterMedian {
		return perrors.NewValidationError("centering", "must be \"mean\" or \"median\"", s.Centering)
	}

	s.Center = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)

		if s.WithMean {
			if s.Centering == CenterMedian {
				s.Center[j] = Median(col)
			} else {
				s.Center[j] = stat.Mean(col, nil)
			}
		}

		s.Scale[j] = 1.0
		if s.WithStd {
			sd := math.Sqrt(stat.PopVariance(col, nil))
			if sd >= 1e-8 {
				s.Scale[j] = sd
			}
		}
	}

	if err := perrors.CheckNumericalStability("StandardScaler.Fit", s.Center, 0); err != nil {
		return err
	}
	if err := perrors.CheckNumericalStability("StandardScaler.Fit", s.Scale, 0); err != nil {
		return err
	}

	s.SetDimensions(c, r)
	s.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := s.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Center[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	if err := s.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Center[j]
	}, X)
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
		"centering": s.Centering,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, centering=%s)", s.WithMean, s.WithStd, s.Centering)
	}
	nFeatures, _ := s.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, centering=%s, n_features=%d)",
		s.WithMean, s.WithStd, s.Centering, nFeatures)
}
