package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// checkPair は2つのベクトルが空でなく同じ長さであることを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, perrors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, perrors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, perrors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinaryLabels はラベルが0または1のみであることを検証する
func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return perrors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は2値分類の混同行列 [[TN, FP], [FN, TP]] を計算する
func ConfusionMatrix(yTrue, yPred *mat.VecDense) ([2][2]int, error) {
	var cm [2][2]int
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return cm, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yTrue); err != nil {
		return cm, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yPred); err != nil {
		return cm, err
	}
	for i := 0; i < n; i++ {
		cm[int(yTrue.AtVec(i))][int(yPred.AtVec(i))]++
	}
	return cm, nil
}

// Precision は陽性クラスの適合率 TP / (TP + FP) を計算する
//
// 陽性と予測されたサンプルがない場合は0を返し、UndefinedMetricWarning を発生させる。
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return precisionFrom(cm), nil
}

// Recall は陽性クラスの再現率 TP / (TP + FN) を計算する
//
// 陽性サンプルがない場合は0を返し、UndefinedMetricWarning を発生させる。
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return recallFrom(cm), nil
}

// F1Score は適合率と再現率の調和平均を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return f1From(cm), nil
}

func precisionFrom(cm [2][2]int) float64 {
	tp, fp := cm[1][1], cm[0][1]
	if tp+fp == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("precision", "no predicted positive samples", 0))
		return 0
	}
	return float64(tp) / float64(tp+fp)
}

func recallFrom(cm [2][2]int) float64 {
	tp, fn := cm[1][1], cm[1][0]
	if tp+fn == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("recall", "no true positive samples", 0))
		return 0
	}
	return float64(tp) / float64(tp+fn)
}

func f1From(cm [2][2]int) float64 {
	tp, fp, fn := cm[1][1], cm[0][1], cm[1][0]
	if 2*tp+fp+fn == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("f1", "no positive samples", 0))
		return 0
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn)
}

// AUC はROC曲線下面積を計算する
//
// 同順位のスコアは0.5として数える（Mann-Whitney U 統計量）。
// 片方のクラスしか存在しない場合は未定義のため0.5を返し、UndefinedMetricWarning を発生させる。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	// 平均順位（1始まり）で陽性サンプルの順位和を求める
	var nPos, nNeg int
	rankSumPos := 0.0
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				nPos++
				rankSumPos += avgRank
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		perrors.Warn(perrors.NewUndefinedMetricWarning("auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	if yTrue == nil || yScore == nil {
		return 0, perrors.NewValueError("AUCMatrix", "nil matrix")
	}
	yt, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	ys, err := firstColumn("AUCMatrix", yScore)
	if err != nil {
		return 0, err
	}
	return AUC(yt, ys)
}

func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, perrors.NewValueError(op, "empty matrix")
	}
	return mat.NewVecDense(r, mat.Col(nil, 0, m)), nil
}

// BinaryLogLoss は2値分類の対数損失を計算する
//
// 予測確率は log(0) を避けるため [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	const eps = 1e-15
	sum := 0.0
	for i := 0; i < n; i++ {
		p := perrors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		y := yTrue.AtVec(i)
		sum += -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return sum / float64(n), nil
}
