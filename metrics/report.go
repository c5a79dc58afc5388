package metrics

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// BinaryReport は2値分類の評価結果をまとめたもの
//
// 陽性クラス（1）に対する Precision / Recall / F1 と、陽性確率に対する ROC AUC を含む。
// 評価は情報提供のみを目的とし、モデルの保存可否を左右しない。
type BinaryReport struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AUC       float64 `json:"auc"`

	// ConfusionMatrix は [[TN, FP], [FN, TP]]
	ConfusionMatrix [2][2]int `json:"confusion_matrix"`

	Support int `json:"support"`
}

// NewBinaryReport はラベル・予測ラベル・陽性確率から評価結果を計算する
//
// yProb が nil の場合 AUC は計算しない（0のまま）。
func NewBinaryReport(yTrue, yPred, yProb *mat.VecDense) (BinaryReport, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return BinaryReport{}, err
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return BinaryReport{}, err
	}

	r := BinaryReport{
		Accuracy:        acc,
		Precision:       precisionFrom(cm),
		Recall:          recallFrom(cm),
		F1:              f1From(cm),
		ConfusionMatrix: cm,
		Support:         yTrue.Len(),
	}

	if yProb != nil {
		auc, err := AUC(yTrue, yProb)
		if err != nil {
			return BinaryReport{}, err
		}
		r.AUC = auc
	}
	return r, nil
}

// NewBinaryReportFromMatrix は (n,1) のラベル行列と (n,2) の確率行列から評価結果を計算する
//
// 予測ラベルは陽性確率が0.5以上なら1とする。
func NewBinaryReportFromMatrix(yTrue, proba mat.Matrix) (BinaryReport, error) {
	n, _ := yTrue.Dims()
	pr, pc := proba.Dims()
	if pr != n {
		return BinaryReport{}, perrors.NewDimensionError("NewBinaryReportFromMatrix", n, pr, 0)
	}
	if pc != 2 {
		return BinaryReport{}, perrors.NewDimensionError("NewBinaryReportFromMatrix", 2, pc, 1)
	}
	if n == 0 {
		return BinaryReport{}, perrors.NewValueError("NewBinaryReportFromMatrix", "empty data")
	}

	yt := mat.NewVecDense(n, mat.Col(nil, 0, yTrue))
	yp := mat.NewVecDense(n, mat.Col(nil, 1, proba))
	pred := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if yp.AtVec(i) >= 0.5 {
			pred.SetVec(i, 1)
		}
	}
	return NewBinaryReport(yt, pred, yp)
}

// ToMap はメタデータ保存用に数値指標をマップで返す
func (r BinaryReport) ToMap() map[string]float64 {
	return map[string]float64{
		"accuracy":  r.Accuracy,
		"precision": r.Precision,
		"recall":    r.Recall,
		"f1":        r.F1,
		"auc":       r.AUC,
		"tn":        float64(r.ConfusionMatrix[0][0]),
		"fp":        float64(r.ConfusionMatrix[0][1]),
		"fn":        float64(r.ConfusionMatrix[1][0]),
		"tp":        float64(r.ConfusionMatrix[1][1]),
		"support":   float64(r.Support),
	}
}

// MarshalZerologObject はzerologのイベントに評価指標を追加する
func (r BinaryReport) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("accuracy", r.Accuracy).
		Float64("precision", r.Precision).
		Float64("recall", r.Recall).
		Float64("f1", r.F1).
		Float64("auc", r.AUC).
		Ints("confusion_matrix", []int{
			r.ConfusionMatrix[0][0], r.ConfusionMatrix[0][1],
			r.ConfusionMatrix[1][0], r.ConfusionMatrix[1][1],
		}).
		Int("support", r.Support)
}

// String は人が読める形式の評価レポートを返す
func (r BinaryReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "accuracy:  %.4f\n", r.Accuracy)
	fmt.Fprintf(&sb, "precision: %.4f\n", r.Precision)
	fmt.Fprintf(&sb, "recall:    %.4f\n", r.Recall)
	fmt.Fprintf(&sb, "f1:        %.4f\n", r.F1)
	fmt.Fprintf(&sb, "roc_auc:   %.4f\n", r.AUC)
	fmt.Fprintf(&sb, "confusion matrix (rows=true, cols=pred):\n")
	fmt.Fprintf(&sb, "  [[%d %d]\n   [%d %d]]\n",
		r.ConfusionMatrix[0][0], r.ConfusionMatrix[0][1],
		r.ConfusionMatrix[1][0], r.ConfusionMatrix[1][1])
	return sb.String()
}
