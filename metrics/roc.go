package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// ROC はROC曲線の点列
//
// FPR と TPR は (0, 0) から始まり (1, 1) で終わる。Thresholds[i] は i 番目の点を
// 与えるスコアの閾値（スコア >= 閾値 を陽性と予測）で、先頭は +Inf 相当として
// 最大スコアより大きい値を持つ。
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ROCCurve はラベルと陽性スコアからROC曲線を計算する
//
// 片方のクラスしか存在しない場合はエラーを返す。
func ROCCurve(yTrue, yScore *mat.VecDense) (*ROC, error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, err
	}
	if err := checkBinaryLabels("ROCCurve", yTrue); err != nil {
		return nil, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b])
	})

	var nPos, nNeg int
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, perrors.NewValueError("ROCCurve", "ROC curve is undefined when only one class is present")
	}

	roc := &ROC{
		FPR:        []float64{0},
		TPR:        []float64{0},
		Thresholds: []float64{yScore.AtVec(idx[0]) + 1},
	}
	var tp, fp int
	for i := 0; i < n; i++ {
		if yTrue.AtVec(idx[i]) == 1 {
			tp++
		} else {
			fp++
		}
		// 同じスコアは1点にまとめる
		if i+1 < n && yScore.AtVec(idx[i+1]) == yScore.AtVec(idx[i]) {
			continue
		}
		roc.FPR = append(roc.FPR, float64(fp)/float64(nNeg))
		roc.TPR = append(roc.TPR, float64(tp)/float64(nPos))
		roc.Thresholds = append(roc.Thresholds, yScore.AtVec(idx[i]))
	}
	return roc, nil
}

// Area は台形則で曲線下面積を計算する
func (r *ROC) Area() float64 {
	area := 0.0
	for i := 1; i < len(r.FPR); i++ {
		area += (r.FPR[i] - r.FPR[i-1]) * (r.TPR[i] + r.TPR[i-1]) / 2
	}
	return area
}
