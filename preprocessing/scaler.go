// Package preprocessing は分類器の前段で使う特徴量スケーラーを提供する
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// constantTol 以下の広がりは定数特徴量とみなしてスケール1にする
const constantTol = 1e-8

var (
	_ model.Transformer = (*StandardScaler)(nil)
	_ model.Transformer = (*MinMaxScaler)(nil)
)

// affine は x' = (x - shift) / scale を列ごとに持つ学習済み状態
type affine struct {
	shift []float64
	scale []float64
}

func (a *affine) apply(X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		floats.SubTo(row, X.RawRowView(i), a.shift)
		floats.Div(row, a.scale)
	}
	return out
}

func (a *affine) invert(X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		floats.MulTo(row, X.RawRowView(i), a.scale)
		floats.Add(row, a.shift)
	}
	return out
}

// StandardScaler はデータを平均0、標準偏差1に変換する
type StandardScaler struct {
	state *model.StateManager[affine]

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager[affine](),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は各特徴量の平均と母標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	s.state.Reset()
	Xd, err := model.CheckArray("StandardScaler.Fit", X)
	if err != nil {
		return err
	}
	r, c := Xd.Dims()
	st := &affine{shift: make([]float64, c), scale: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, Xd)
		mean, variance := stat.PopMeanVariance(col, nil)
		if s.WithMean {
			st.shift[j] = mean
		}
		st.scale[j] = 1
		if sd := math.Sqrt(variance); s.WithStd && sd >= constantTol {
			st.scale[j] = sd
		}
	}
	s.state.SetFitted(st, c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	st, Xd, err := fitted(s.state, "StandardScaler", "Transform", X)
	if err != nil {
		return nil, err
	}
	return st.apply(Xd), nil
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
	st, Xd, err := fitted(s.state, "StandardScaler", "InverseTransform", X)
	if err != nil {
		return nil, err
	}
	return st.invert(Xd), nil
}

// Mean は学習した平均（WithMean=false なら0）を返す
func (s *StandardScaler) Mean() ([]float64, error) {
	st, _, err := s.state.Fitted("StandardScaler", "Mean")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.shift...), nil
}

// Scale は学習した標準偏差（WithStd=false または定数列なら1）を返す
func (s *StandardScaler) Scale() ([]float64, error) {
	st, _, err := s.state.Fitted("StandardScaler", "Scale")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.scale...), nil
}

// IsFitted はスケーラーが学習済みかを返す
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// SetParams はスケーラーのパラメータを設定する
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "with_mean":
			s.WithMean, err = model.ParamBool(key, value)
		case "with_std":
			s.WithStd, err = model.ParamBool(key, value)
		default:
			return model.UnknownParam("StandardScaler", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone は同じ設定の未学習スケーラーを返す
func (s *StandardScaler) Clone() model.Transformer {
	return NewStandardScaler(s.WithMean, s.WithStd)
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if nFeatures, _ := s.state.GetDimensions(); s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
			s.WithMean, s.WithStd, nFeatures)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

// MinMaxScaler はデータを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	state *model.StateManager[affine]

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager[affine](),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0, 1})
}

// Fit は各特徴量の最小値・最大値を計算する
//
// x' = (x - min) / (max - min) · (hi - lo) + lo を
// shift = min - lo·s, scale = s = (max - min) / (hi - lo) の形で保持する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	m.state.Reset()
	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	if !(hi > lo) {
		return errors.NewValidationError("feature_range", "max must be greater than min", m.FeatureRange)
	}
	Xd, err := model.CheckArray("MinMaxScaler.Fit", X)
	if err != nil {
		return err
	}
	r, c := Xd.Dims()
	st := &affine{shift: make([]float64, c), scale: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, Xd)
		dataMin, dataMax := floats.Min(col), floats.Max(col)
		span := dataMax - dataMin
		if span < constantTol {
			span = 1
		}
		st.scale[j] = span / (hi - lo)
		st.shift[j] = dataMin - lo*st.scale[j]
	}
	m.state.SetFitted(st, c, r)
	return nil
}

// Transform は学習済みの範囲でデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	st, Xd, err := fitted(m.state, "MinMaxScaler", "Transform", X)
	if err != nil {
		return nil, err
	}
	return st.apply(Xd), nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	st, Xd, err := fitted(m.state, "MinMaxScaler", "InverseTransform", X)
	if err != nil {
		return nil, err
	}
	return st.invert(Xd), nil
}

// IsFitted はスケーラーが学習済みかを返す
func (m *MinMaxScaler) IsFitted() bool {
	return m.state.IsFitted()
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": []float64{m.FeatureRange[0], m.FeatureRange[1]},
	}
}

// SetParams はスケーラーのパラメータを設定する
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "feature_range":
			r, err := model.ParamFloatSlice(key, value)
			if err != nil {
				return err
			}
			if len(r) != 2 {
				return errors.NewValidationError(key, "expected [min, max]", value)
			}
			m.FeatureRange = [2]float64{r[0], r[1]}
		default:
			return model.UnknownParam("MinMaxScaler", key)
		}
	}
	return nil
}

// Clone は同じ設定の未学習スケーラーを返す
func (m *MinMaxScaler) Clone() model.Transformer {
	return NewMinMaxScaler(m.FeatureRange)
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	if nFeatures, _ := m.state.GetDimensions(); m.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_features=%d)",
			m.FeatureRange[0], m.FeatureRange[1], nFeatures)
	}
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])", m.FeatureRange[0], m.FeatureRange[1])
}

func fitted(state *model.StateManager[affine], name, method string, X mat.Matrix) (*affine, *mat.Dense, error) {
	st, nFeatures, err := state.Fitted(name, method)
	if err != nil {
		return nil, nil, err
	}
	Xd, err := model.CheckNFeatures(name+"."+method, X, nFeatures)
	if err != nil {
		return nil, nil, err
	}
	return st, Xd, nil
}
