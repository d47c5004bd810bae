package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// logLossEps は log(0) を避けるためのクリップ幅
const logLossEps = 1e-15

// checkBinaryTruth は yTrue が 0 と 1 だけで構成されていることを確認する
func checkBinaryTruth(op string, yTrue *mat.VecDense) (nPos int, err error) {
	for i := 0; i < yTrue.Len(); i++ {
		switch yTrue.AtVec(i) {
		case 1:
			nPos++
		case 0:
		default:
			return 0, errors.NewValueError(op, "yTrue must contain only 0 and 1")
		}
	}
	return nPos, nil
}

// AUC は ROC 曲線下面積を計算する
//
// 同点のスコアは平均順位で扱う（Mann-Whitney の U 統計量と同値）。
// yTrue が片方のクラスしか含まない場合 AUC は定義されないため、
// UndefinedMetricWarning を出して 0.5 を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	nPos, err := checkBinaryTruth("AUC", yTrue)
	if err != nil {
		return 0, err
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}

	scores := mat.Col(nil, 0, yPred)
	inds := make([]int, n)
	floats.Argsort(scores, inds)

	// 同点グループに平均順位（1始まり）を割り当てて正例の順位和を求める
	var rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[j+1] == scores[i] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(inds[k]) == 1 {
				rankSumPos += avgRank
			}
		}
		i = j + 1
	}

	u := rankSumPos - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列入力に対して AUC を計算する（各行列の先頭列を使う）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	a, b, err := firstColumns("AUCMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return AUC(a, b)
}

// BinaryLogLoss は二値交差エントロピーを計算する
//
// yPred は P(class 1)。[eps, 1-eps] にクリップしてから対数を取る。
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if _, err := checkBinaryTruth("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// BrierScore は P(class 1) と正解ラベルの平均二乗誤差
func BrierScore(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := checkPair("BrierScore", yTrue, yPred); err != nil {
		return 0, err
	}
	if _, err := checkBinaryTruth("BrierScore", yTrue); err != nil {
		return 0, err
	}
	return MSE(yTrue, yPred)
}

// ClassificationError は誤分類率を計算する。多クラスのラベルも受け付ける
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
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

// ConfusionMatrix は二値分類の混同行列 [[TN, FP], [FN, TP]] を返す
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if _, err := checkBinaryTruth("ConfusionMatrix", yTrue); err != nil {
		return nil, err
	}
	if _, err := checkBinaryTruth("ConfusionMatrix", yPred); err != nil {
		return nil, err
	}
	cm := mat.NewDense(2, 2, nil)
	for i := 0; i < n; i++ {
		r, c := int(yTrue.AtVec(i)), int(yPred.AtVec(i))
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, nil
}
