package model

import "gonum.org/v1/gonum/mat"

// Transformer はデータ変換のインターフェース（Pipeline の前処理段で使う）
type Transformer interface {
	// Fit は変換に必要な統計量を学習する
	Fit(X mat.Matrix) error

	// Transform は学習済みの統計量でデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)

	// Clone は同じ設定を持つ未学習の Transformer を返す
	Clone() Transformer
}
