package nonparametric

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/core/model/modeltest"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// sine は y = sin(x) + ノイズ の1次元データ
func sine(n int, noise float64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(11, 12))
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := -3 + 6*float64(i)/float64(n-1)
		X.Set(i, 0, x)
		y[i] = math.Sin(x) + noise*rng.NormFloat64()
	}
	return X, y
}

func TestKernelRegRecoversSmoothFunction(t *testing.T) {
	X, y := sine(80, 0.1)
	for _, regType := range []string{LocalConstant, LocalLinear} {
		t.Run(regType, func(t *testing.T) {
			k, err := NewKernelReg(y, X, regType, BandwidthRule(RuleCVLS))
			require.NoError(t, err)
			assert.Greater(t, k.Bandwidth()[0], 0.0)

			Xq := mat.NewDense(3, 1, []float64{-1.5, 0, 1.5})
			mean, mfx, err := k.Fit(Xq)
			require.NoError(t, err)
			for i, x := range []float64{-1.5, 0, 1.5} {
				assert.InDelta(t, math.Sin(x), mean[i], 0.15, "x=%v", x)
			}
			// d/dx sin(x) = cos(x), 0 で 1
			assert.InDelta(t, 1.0, mfx.At(1, 0), 0.35)

			r2, err := k.RSquared()
			require.NoError(t, err)
			assert.Greater(t, r2, 0.9)
		})
	}
}

func TestKernelRegBandwidthRules(t *testing.T) {
	X, y := sine(60, 0.2)

	ref, err := NewKernelReg(y, X, LocalLinear, BandwidthRule(RuleNormalReference))
	require.NoError(t, err)
	// 1.06 σ n^(-1/5)
	sd := math.Sqrt(mat.Sum(func() *mat.Dense {
		var sq mat.Dense
		mean := mat.Sum(X) / 60
		sq.Apply(func(_, _ int, v float64) float64 { return (v - mean) * (v - mean) }, X)
		return &sq
	}()) / 59)
	assert.InDelta(t, 1.06*sd*math.Pow(60, -0.2), ref.Bandwidth()[0], 1e-9)

	cv, err := NewKernelReg(y, X, LocalLinear, BandwidthRule(RuleCVLS))
	require.NoError(t, err)
	assert.LessOrEqual(t, cv.LeaveOneOutMSE(), ref.LeaveOneOutMSE()+1e-12)

	aic, err := NewKernelReg(y, X, LocalLinear, BandwidthRule(RuleAIC))
	require.NoError(t, err)
	df, err := aic.EffectiveDF()
	require.NoError(t, err)
	assert.Greater(t, df, 1.0)
	assert.Less(t, df, 60.0)
}

func TestKernelRegValidation(t *testing.T) {
	X, y := sine(10, 0)

	var valErr *errors.ValidationError
	_, err := NewKernelReg(y, X, "lq", FixedBandwidth(1))
	assert.True(t, errors.As(err, &valErr))
	_, err = NewKernelReg(y, X, LocalLinear, BandwidthRule("silverman"))
	assert.True(t, errors.As(err, &valErr))
	_, err = NewKernelReg(y, X, LocalLinear, FixedBandwidth(-1))
	assert.True(t, errors.As(err, &valErr))
	_, err = NewKernelReg(y, X, LocalLinear, FixedBandwidth(1, 2))
	assert.True(t, errors.As(err, &valErr))

	var dimErr *errors.DimensionError
	_, err = NewKernelReg(y[:5], X, LocalLinear, FixedBandwidth(1))
	assert.True(t, errors.As(err, &dimErr))

	k, err := NewKernelReg(y, X, LocalLinear, FixedBandwidth(1))
	require.NoError(t, err)
	_, _, err = k.Fit(mat.NewDense(1, 2, nil))
	assert.True(t, errors.As(err, &dimErr))
}

func TestKernelRegDegenerateLocalDesign(t *testing.T) {
	// 2つの離れたクラスタしかない特徴量に極小の帯域幅を使うと、局所線形の
	// 計画行列は x=0 の2点だけで決まり階数1になる。最小ノルム解は
	// β = z·y/|z|² = [1,-1]·(-1)/2
	X := mat.NewDense(4, 1, []float64{0, 0, 10, 10})
	y := []float64{-1, -1, 1, 1}
	k, err := NewKernelReg(y, X, LocalLinear, FixedBandwidth(1e-3))
	require.NoError(t, err)
	mean, mfx, err := k.Fit(mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, -0.5, mean[0], 1e-9)
	assert.InDelta(t, 0.5, mfx.At(0, 0), 1e-9)
}

func TestKernelRegFarQuery(t *testing.T) {
	X, yy := modeltest.Separable(50, 2, 21)
	y := make([]float64, 50)
	for i := range y {
		y[i] = 2*yy.At(i, 0) - 1
	}
	for _, rt := range []string{LocalLinear, LocalConstant} {
		t.Run(rt, func(t *testing.T) {
			k, err := NewKernelReg(y, X, rt, FixedBandwidth(1, 1))
			require.NoError(t, err)
			mean, _, err := k.Fit(mat.NewDense(4, 2, []float64{3, 3, 10, 10, 40, 40, -40, -40}))
			require.NoError(t, err)
			for i, m := range mean {
				assert.False(t, math.IsNaN(m) || math.IsInf(m, 0), "row %d", i)
				if rt == LocalConstant {
					// 局所定数推定は目的変数の凸結合
					assert.LessOrEqual(t, math.Abs(m), 1.0+1e-9, "row %d", i)
				}
			}
		})
	}

	l := NewLocalLogistic(WithBandwidth(1, 1))
	require.NoError(t, l.Fit(X, yy))
	proba, err := l.PredictProba(mat.NewDense(1, 2, []float64{40, 40}))
	require.NoError(t, err)
	modeltest.AssertProba(t, proba, 1)
}

func TestPinvRankDeficient(t *testing.T) {
	A := mat.NewSymDense(2, []float64{2, -2, -2, 2})
	inv, err := pinv(A)
	require.NoError(t, err)
	// A A⁺ A = A
	var AP, APA mat.Dense
	AP.Mul(A, inv)
	APA.Mul(&AP, A)
	assert.True(t, mat.EqualApprox(&APA, A, 1e-12))
}

func TestLocalLogisticConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier {
		return NewLocalLogistic(WithBandwidthRule(RuleNormalReference))
	})
}

func TestLocalLogisticFixedBandwidth(t *testing.T) {
	X, y := modeltest.Separable(50, 2, 21)
	l := NewLocalLogistic(WithBandwidth(1, 1))
	require.NoError(t, l.Fit(X, y))

	target, err := l.Target()
	require.NoError(t, err)
	require.Len(t, target, 50)
	for i, v := range target {
		assert.Contains(t, []float64{-1, 1}, v)
		assert.Equal(t, 2*y.At(i, 0)-1, v)
	}

	reg, err := l.Regressor()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, reg.Bandwidth())

	pred, err := l.Predict(X)
	require.NoError(t, err)
	modeltest.AssertLabels(t, pred, 50)

	mfx, err := l.MarginalEffects(mat.NewDense(1, 2, []float64{0, 0}))
	require.NoError(t, err)
	// 境界 x0 + x1 = 0 を横切る方向にスコアが増える
	assert.Greater(t, mfx.At(0, 0), 0.0)
	assert.Greater(t, mfx.At(0, 1), 0.0)
}

func TestLocalLogisticDefaultCVLS(t *testing.T) {
	X, y := modeltest.Noisy(50, 2, 0.05, 22)
	l := NewLocalLogistic()
	require.NoError(t, l.Fit(X, y))
	acc, err := l.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.8)
}

func TestLocalLogisticParams(t *testing.T) {
	l := NewLocalLogistic()
	assert.Equal(t, map[string]interface{}{"reg_type": "ll", "bw": "cv_ls"}, l.GetParams())

	require.NoError(t, l.SetParams(map[string]interface{}{"bw": []interface{}{1, 2}, "reg_type": "lc"}))
	assert.Equal(t, []float64{1, 2}, l.GetParams()["bw"])
	assert.Equal(t, "lc", l.GetParams()["reg_type"])

	require.NoError(t, l.SetParams(map[string]interface{}{"bw": 0.5}))
	assert.Equal(t, 0.5, l.GetParams()["bw"])

	X, y := modeltest.Separable(20, 2, 23)
	require.NoError(t, l.SetParams(map[string]interface{}{"reg_type": "nw"}))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(l.Fit(X, y), &valErr))
}
