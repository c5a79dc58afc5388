// Package model provides the estimator interfaces, fitted-state tracking and gob
// persistence shared by the transformers and classifiers of the training pipeline.
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/table"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Transformer は数値行列を変換するインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// TableTransformer はテーブルを数値の計画行列に変換するインターフェース
type TableTransformer interface {
	// Fit は訓練テーブルから統計量と語彙を学習する
	Fit(t *table.Table) error

	// Transform はテーブルを計画行列に変換する
	Transform(t *table.Table) (*mat.Dense, error)

	// FeatureNames は出力列の名前を返す
	FeatureNames() []string
}

// Classifier is a binary probabilistic classifier.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns an (n, 2) matrix of class probabilities.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// IsFitted reports whether Fit completed successfully.
	IsFitted() bool
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}
