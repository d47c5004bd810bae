package gam

import (
	"math"
	"sort"
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
	// 収束警告はテスト出力に不要
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(error) {})
}

func TestLogisticGAMConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier {
		return NewLogisticGAM(WithNSplines(8), WithMaxIter(50))
	})
}

func TestLogisticGAMShapes(t *testing.T) {
	X, y := modeltest.Separable(100, 3, 1)
	Xq, _ := modeltest.Separable(10, 3, 2)

	g := NewLogisticGAM()
	require.NoError(t, g.Fit(X, y))

	pred, err := g.Predict(Xq)
	require.NoError(t, err)
	modeltest.AssertLabels(t, pred, 10)

	proba, err := g.PredictProba(Xq)
	require.NoError(t, err)
	modeltest.AssertProba(t, proba, 10)

	// Predict は P(1) > 0.5 と一致する
	for i := 0; i < 10; i++ {
		assert.Equal(t, proba.At(i, 1) > 0.5, pred.At(i, 0) == 1)
	}
}

func TestLogisticGAMDefaults(t *testing.T) {
	params := NewLogisticGAM().GetParams()
	assert.Equal(t, 0.6, params["lam"])
	assert.Equal(t, 100, params["max_iter"])
	assert.Equal(t, 25, params["n_splines"])
	assert.Equal(t, 3, params["spline_order"])
	assert.Equal(t, "auto", params["penalties"])
	assert.Equal(t, "auto", params["dtype"])
	assert.Equal(t, 1e-4, params["tol"])
	assert.Equal(t, []string{"deviance", "diffs", "accuracy"}, params["callbacks"])
	assert.Equal(t, true, params["fit_intercept"])
	assert.Equal(t, false, params["fit_linear"])
	assert.Equal(t, true, params["fit_splines"])
	assert.Nil(t, params["constraints"])
	assert.NotContains(t, params, "verbose")
}

func TestLogisticGAMSetParams(t *testing.T) {
	g := NewLogisticGAM()
	require.NoError(t, g.SetParams(map[string]interface{}{
		"lam":         []interface{}{1, 2.5},
		"max_iter":    20,
		"dtype":       []interface{}{"numerical", "categorical"},
		"constraints": "monotonic_inc",
	}))
	params := g.GetParams()
	assert.Equal(t, []float64{1, 2.5}, params["lam"])
	assert.Equal(t, 20, params["max_iter"])
	assert.Equal(t, []string{"numerical", "categorical"}, params["dtype"])
	assert.Equal(t, "monotonic_inc", params["constraints"])

	assert.Error(t, g.SetParams(map[string]interface{}{"max_iter": "ten"}))
}

func TestLogisticGAMInvalidHyperparameters(t *testing.T) {
	X, y := modeltest.Separable(40, 2, 3)
	tests := []struct {
		name string
		opt  Option
	}{
		{"n_splines not above order", WithNSplines(3)},
		{"negative lam", WithLam(-1)},
		{"lam length", WithLams([]float64{1, 2, 3})},
		{"penalty", WithPenalties("l1")},
		{"dtype", WithDtype("ordinal")},
		{"constraint", WithConstraints("wiggly")},
		{"callback", WithCallbacks("coef")},
		{"max_iter", WithMaxIter(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var valErr *errors.ValidationError
			err := NewLogisticGAM(tt.opt).Fit(X, y)
			assert.True(t, errors.As(err, &valErr), "got %v", err)
		})
	}
}

func TestLogisticGAMLogs(t *testing.T) {
	X, y := modeltest.Noisy(120, 2, 0.1, 4)
	g := NewLogisticGAM(WithNSplines(10))
	require.NoError(t, g.Fit(X, y))

	logs, err := g.Logs()
	require.NoError(t, err)
	for _, key := range []string{"deviance", "diffs", "accuracy"} {
		assert.Len(t, logs[key], g.NIter(), key)
	}
	dev := logs["deviance"]
	assert.LessOrEqual(t, dev[len(dev)-1], dev[0])

	total, err := g.Deviance(X, y)
	require.NoError(t, err)
	assert.InDelta(t, dev[len(dev)-1], total, 1e-6)

	acc, err := g.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, logs["accuracy"][len(dev)-1], acc, 1e-12)
}

func TestLogisticGAMCategorical(t *testing.T) {
	// 特徴量1は水準 {0,1,2}。水準 2 だけが正例
	n := 90
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		level := float64(i % 3)
		X.Set(i, 0, float64(i)/float64(n))
		X.Set(i, 1, level)
		if level == 2 {
			y.Set(i, 0, 1)
		}
	}
	g := NewLogisticGAM(WithDtype("numerical", "categorical"), WithNSplines(6))
	require.NoError(t, g.Fit(X, y))

	proba, err := g.PredictProba(mat.NewDense(3, 2, []float64{0.5, 0, 0.5, 1, 0.5, 2}))
	require.NoError(t, err)
	assert.Less(t, proba.At(0, 1), 0.5)
	assert.Less(t, proba.At(1, 1), 0.5)
	assert.Greater(t, proba.At(2, 1), 0.5)

	// 未知の水準でもエラーにならない
	_, err = g.Predict(mat.NewDense(1, 2, []float64{0.5, 7}))
	assert.NoError(t, err)
}

func TestLogisticGAMMonotonicConstraint(t *testing.T) {
	X, y := modeltest.Noisy(150, 1, 0.2, 5)
	g := NewLogisticGAM(WithConstraints("monotonic_inc"), WithNSplines(12), WithLam(0.01))
	require.NoError(t, g.Fit(X, y))
	assert.Less(t, g.NIter(), 100)

	grid := make([]float64, 50)
	floats.Span(grid, -2, 2)
	sort.Float64s(grid)
	pd, err := g.PartialDependence(0, mat.NewDense(len(grid), 1, grid))
	require.NoError(t, err)
	for i := 1; i < len(pd); i++ {
		assert.GreaterOrEqual(t, pd[i]-pd[i-1], -1e-4, "grid %v", grid[i])
	}

	_, err = g.PartialDependence(1, mat.NewDense(1, 1, nil))
	assert.Error(t, err)
}

func TestLogisticGAMShapeConstraints(t *testing.T) {
	X, y := modeltest.Noisy(150, 1, 0.2, 5)
	flipped := mat.DenseCopyOf(y)
	flipped.Apply(func(_, _ int, v float64) float64 { return 1 - v }, y)

	tests := []struct {
		constraint string
		y          *mat.Dense
		order      int
		sign       float64
	}{
		{"monotonic_inc", y, 1, 1},
		{"monotonic_dec", flipped, 1, -1},
		{"convex", y, 2, 1},
		{"concave", y, 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			g := NewLogisticGAM(WithConstraints(tt.constraint), WithNSplines(12), WithLam(0.01))
			require.NoError(t, g.Fit(X, tt.y))
			assert.Less(t, g.NIter(), 100, "PIRLS did not converge")

			coef, err := g.Coefficients()
			require.NoError(t, err)
			var d mat.VecDense
			d.MulVec(diffMatrix(12, tt.order), mat.NewVecDense(12, coef[1:13]))
			for i := 0; i < d.Len(); i++ {
				assert.GreaterOrEqual(t, tt.sign*d.AtVec(i), -1e-3, "difference %d", i)
			}
		})
	}
}

func TestLogisticGAMMaxIterWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	X, y := modeltest.Noisy(100, 2, 0.1, 7)
	g := NewLogisticGAM(WithNSplines(8), WithMaxIter(1))
	require.NoError(t, g.Fit(X, y))
	assert.Equal(t, 1, g.NIter())

	require.Len(t, warnings, 1)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
}

func TestActiveSetGrows(t *testing.T) {
	tm := newNumericalTerm(0, []float64{0, 1}, 4, 2, true, false)
	tm.offset = 0
	terms := []term{tm}
	set := newActiveSet(terms, []string{"monotonic_inc"})
	require.NotNil(t, set[0])

	assert.True(t, set.update(terms, []float64{0, 1, 0.5, 2}))
	assert.Equal(t, []bool{false, true, false}, set[0].active)
	// 既に有効な差分は残り、新しい違反がなければ変化なし
	assert.False(t, set.update(terms, []float64{0, 1, 1, 2}))
	assert.Equal(t, []bool{false, true, false}, set[0].active)

	assert.Nil(t, newActiveSet(terms, []string{""}))
}

func TestLogisticGAMClampsOutOfRange(t *testing.T) {
	X, y := modeltest.Separable(80, 2, 6)
	g := NewLogisticGAM(WithNSplines(8))
	require.NoError(t, g.Fit(X, y))

	far, err := g.DecisionFunction(mat.NewDense(2, 2, []float64{100, 100, -100, -100}))
	require.NoError(t, err)
	edge, err := g.DecisionFunction(mat.NewDense(2, 2, []float64{
		floats.Max(mat.Col(nil, 0, X)), floats.Max(mat.Col(nil, 1, X)),
		floats.Min(mat.Col(nil, 0, X)), floats.Min(mat.Col(nil, 1, X)),
	}))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		assert.False(t, math.IsNaN(far.At(i, 0)))
		assert.InDelta(t, edge.At(i, 0), far.At(i, 0), 1e-6)
	}
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	col := []float64{-1, 0, 0.3, 2}
	tm := newNumericalTerm(0, col, 10, 3, true, false)
	out := make([]float64, tm.width)
	for _, x := range []float64{-1, -0.5, 0, 0.99, 1.7, 2} {
		tm.fill(x, out)
		assert.InDelta(t, 1.0, floats.Sum(out), 1e-9, "x=%v", x)
		assert.GreaterOrEqual(t, floats.Min(out), 0.0)
	}
}

func TestDiffMatrix(t *testing.T) {
	D := diffMatrix(4, 2)
	r, c := D.Dims()
	assert.Equal(t, []int{2, 4}, []int{r, c})
	assert.Equal(t, []float64{1, -2, 1, 0}, mat.Row(nil, 0, D))
	assert.Nil(t, diffMatrix(2, 2))
}
