package svm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/core/model/modeltest"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

func init() {
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(error) {})
}

func TestSVCConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier {
		return NewSVC(WithProbability(true))
	})
}

func TestSVMClassifierConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier {
		return NewSVMClassifier()
	})
}

func TestSVCProbabilityDisabled(t *testing.T) {
	X, y := modeltest.Separable(40, 2, 51)
	s := NewSVC()
	require.NoError(t, s.Fit(X, y))

	_, err := s.PredictProba(X)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProbabilityDisabled))

	// SVMClassifier は probability に関係なく確率を返す
	c := NewSVMClassifier()
	require.NoError(t, c.Fit(X, y))
	proba, err := c.PredictProba(X)
	require.NoError(t, err)
	modeltest.AssertProba(t, proba, 40)
}

func TestSVCTwoPointLinear(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{-1, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	s := NewSVC(WithKernel(KernelLinear), WithC(10))
	require.NoError(t, s.Fit(X, y))

	coef, err := s.DualCoef()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.5, 0.5}, coef, 1e-9)

	b, err := s.Intercept()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, b, 1e-9)

	support, err := s.Support()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, support)

	d, err := s.DecisionFunction(mat.NewDense(3, 1, []float64{-2, 0, 0.5}))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-2, 0, 0.5}, mat.Col(nil, 0, d), 1e-9)
}

func TestSVCLinearKernelMatchesPrimal(t *testing.T) {
	X, y := modeltest.Noisy(80, 2, 0.05, 52)
	s := NewSVC(WithKernel(KernelLinear), WithC(0.5))
	require.NoError(t, s.Fit(X, y))

	sv, err := s.SupportVectors()
	require.NoError(t, err)
	coef, err := s.DualCoef()
	require.NoError(t, err)
	b, err := s.Intercept()
	require.NoError(t, err)

	// yᵀα = 0
	assert.InDelta(t, 0.0, floats.Sum(coef), 1e-6)
	for _, c := range coef {
		assert.LessOrEqual(t, c*c, 0.25+1e-9)
	}

	// w = Σ α_i y_i x_i
	var w mat.VecDense
	w.MulVec(sv.T(), mat.NewVecDense(len(coef), coef))
	assert.Greater(t, w.AtVec(0), 0.0)
	assert.Greater(t, w.AtVec(1), 0.0)

	d, err := s.DecisionFunction(X)
	require.NoError(t, err)
	r, _ := X.Dims()
	for i := 0; i < r; i++ {
		want := w.AtVec(0)*X.At(i, 0) + w.AtVec(1)*X.At(i, 1) + b
		assert.InDelta(t, want, d.At(i, 0), 1e-9)
	}
}

func TestSVCKernels(t *testing.T) {
	X, y := modeltest.Separable(60, 2, 53)
	tests := []struct {
		name string
		opts []SVCOption
	}{
		{"linear", []SVCOption{WithKernel(KernelLinear)}},
		{"poly", []SVCOption{WithKernel(KernelPoly), WithDegree(3), WithCoef0(1)}},
		{"rbf auto", []SVCOption{WithGammaRule(GammaAuto)}},
		{"rbf numeric gamma", []SVCOption{WithGamma(0.5)}},
		{"sigmoid", []SVCOption{WithKernel(KernelSigmoid), WithGamma(0.1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSVC(tt.opts...)
			require.NoError(t, s.Fit(X, y))
			sv, err := s.SupportVectors()
			require.NoError(t, err)
			n, _ := sv.Dims()
			assert.Greater(t, n, 0)
			if tt.name != "sigmoid" {
				acc, err := s.Score(X, y)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, acc, 0.9)
			}
		})
	}
}

func TestSVCPlattOrdering(t *testing.T) {
	X, y := modeltest.Noisy(100, 2, 0.05, 54)
	s := NewSVC(WithProbability(true), WithRandomState(7))
	require.NoError(t, s.Fit(X, y))

	Xq := mat.NewDense(3, 2, []float64{-2, -2, 0, 0, 2, 2})
	proba, err := s.PredictProba(Xq)
	require.NoError(t, err)
	modeltest.AssertProba(t, proba, 3)
	assert.Less(t, proba.At(0, 1), proba.At(1, 1))
	assert.Less(t, proba.At(1, 1), proba.At(2, 1))
	assert.Greater(t, proba.At(2, 1), 0.8)

	// 同じ random_state なら同じ確率
	again := NewSVC(WithProbability(true), WithRandomState(7))
	require.NoError(t, again.Fit(X, y))
	proba2, err := again.PredictProba(Xq)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(proba, proba2, 1e-12))
}

func TestFitSigmoid(t *testing.T) {
	dec := []float64{-3, -2, -1, -0.5, 0.5, 1, 2, 3}
	ys := []float64{-1, -1, -1, 1, -1, 1, 1, 1}
	A, B, err := fitSigmoid(dec, ys)
	require.NoError(t, err)
	// P(1|f) = 1/(1+exp(Af+B)) は f について増加
	assert.Less(t, A, 0.0)
	assert.InDelta(t, 0.0, B, 0.5)
}

func TestSVCInvalidHyperparameters(t *testing.T) {
	X, y := modeltest.Separable(20, 2, 55)
	for name, opt := range map[string]SVCOption{
		"C":        WithC(0),
		"tol":      WithTol(-1),
		"max_iter": WithMaxIter(0),
		"kernel":   WithKernel("laplacian"),
		"gamma":    WithGammaRule("median"),
		"gamma<0":  WithGamma(-1),
		"degree":   func(s *SVC) { s.kernel, s.degree = KernelPoly, -1 },
	} {
		t.Run(name, func(t *testing.T) {
			var valErr *errors.ValidationError
			err := NewSVC(opt).Fit(X, y)
			assert.True(t, errors.As(err, &valErr), "got %v", err)
		})
	}
}

func TestSVCParams(t *testing.T) {
	params := NewSVC().GetParams()
	assert.Equal(t, 1.0, params["C"])
	assert.Equal(t, "rbf", params["kernel"])
	assert.Equal(t, 3, params["degree"])
	assert.Equal(t, "scale", params["gamma"])
	assert.Equal(t, 0.0, params["coef0"])
	assert.Equal(t, 1e-3, params["tol"])
	assert.Equal(t, -1, params["max_iter"])
	assert.Equal(t, false, params["probability"])
	assert.Equal(t, int64(0), params["random_state"])

	s := NewSVC()
	require.NoError(t, s.SetParams(map[string]interface{}{"gamma": 2, "kernel": "poly", "random_state": 3}))
	assert.Equal(t, 2.0, s.GetParams()["gamma"])
	assert.Equal(t, int64(3), s.GetParams()["random_state"])

	clone := NewSVMClassifier(WithC(3)).Clone()
	_, ok := clone.(*SVMClassifier)
	assert.True(t, ok)
	assert.Equal(t, 3.0, clone.GetParams()["C"])
}

func TestSVCMaxIterWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	X, y := modeltest.Noisy(60, 2, 0.2, 56)
	s := NewSVC(WithMaxIter(2))
	require.NoError(t, s.Fit(X, y))

	require.NotEmpty(t, warnings)
	var conv *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &conv))
}
