// Package model は全分類器が共有する契約（インターフェース）、学習状態、
// 入力検証、確率出力のヘルパーを提供する
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対するクラスラベル（n×1）を返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter はハイパーパラメータを公開するモデルのインターフェース
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter はハイパーパラメータを変更できるモデルのインターフェース
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// BinaryClassifier は {0, 1} の二値分類器の共通契約
//
// 実装は以下を満たす:
//   - Fit は X が2次元、y のラベルがちょうど {0, 1}、行数が一致することを検証してから学習する
//   - 予測系メソッドは Fit 前なら NotFittedError、特徴量数が異なれば DimensionError を返す
//   - PredictProba は n×2 行列を返し、各行の和は 1（列0 = P(0)、列1 = P(1)）
//   - 予測系メソッドは内部状態を変更しない（同じ X に対して同じ出力）
type BinaryClassifier interface {
	Fitter
	Predictor
	ParameterGetter
	ParameterSetter

	// PredictProba はクラス確率（n×2）を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// DecisionFunction はサンプルごとの実数スコア（n×1）を返す
	DecisionFunction(X mat.Matrix) (mat.Matrix, error)

	// Score は正解率を返す
	Score(X, y mat.Matrix) (float64, error)

	// Classes は学習済みのクラスラベル（常に [0 1]）を返す
	Classes() []int

	// Clone は同じハイパーパラメータを持つ未学習のインスタンスを返す
	Clone() BinaryClassifier
}

// BinaryClasses はこのモジュールの分類器が受け付けるラベル集合
var BinaryClasses = []int{0, 1}
