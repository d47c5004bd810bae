// Package modeltest provides fixtures and a shared conformance suite for
// BinaryClassifier implementations.
package modeltest

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// Separable returns n×p standard normal features and labels
// y = 1 if x0 + x1 > 0 (x0 > 0 when p == 1).
func Separable(n, p int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		s := X.At(i, 0)
		if p > 1 {
			s += X.At(i, 1)
		}
		if s > 0 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

// Noisy is Separable with each label flipped with probability flip.
func Noisy(n, p int, flip float64, seed uint64) (*mat.Dense, *mat.Dense) {
	X, y := Separable(n, p, seed)
	rng := rand.New(rand.NewPCG(seed+1, seed))
	for i := 0; i < n; i++ {
		if rng.Float64() < flip {
			y.Set(i, 0, 1-y.At(i, 0))
		}
	}
	return X, y
}

// AssertProba checks the n×2 probability invariants.
func AssertProba(t *testing.T, proba mat.Matrix, n int) {
	t.Helper()
	r, c := proba.Dims()
	require.Equal(t, n, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		p0, p1 := proba.At(i, 0), proba.At(i, 1)
		assert.InDelta(t, 1.0, p0+p1, 1e-9, "row %d", i)
		assert.True(t, p0 >= 0 && p0 <= 1, "row %d: P(0)=%v", i, p0)
		assert.True(t, p1 >= 0 && p1 <= 1, "row %d: P(1)=%v", i, p1)
	}
}

// AssertLabels checks that pred is n×1 with values in {0, 1}.
func AssertLabels(t *testing.T, pred mat.Matrix, n int) {
	t.Helper()
	r, c := pred.Dims()
	require.Equal(t, n, r)
	require.Equal(t, 1, c)
	for i := 0; i < r; i++ {
		v := pred.At(i, 0)
		assert.True(t, v == 0 || v == 1, "row %d: label %v", i, v)
	}
}

// RunConformance exercises the BinaryClassifier contract on newClf.
// newClf must return a fresh, unfitted, reasonably fast configuration.
func RunConformance(t *testing.T, newClf func() model.BinaryClassifier) {
	X, y := Separable(60, 2, 7)
	Xq, _ := Separable(10, 2, 8)

	t.Run("not fitted", func(t *testing.T) {
		clf := newClf()
		var notFitted *errors.NotFittedError

		_, err := clf.Predict(Xq)
		assert.True(t, errors.As(err, &notFitted), "Predict: %v", err)
		_, err = clf.PredictProba(Xq)
		assert.True(t, errors.As(err, &notFitted), "PredictProba: %v", err)
		_, err = clf.DecisionFunction(Xq)
		assert.True(t, errors.As(err, &notFitted), "DecisionFunction: %v", err)
		_, err = clf.Score(Xq, mat.NewDense(10, 1, nil))
		assert.True(t, errors.As(err, &notFitted), "Score: %v", err)
	})

	t.Run("labels outside {0,1}", func(t *testing.T) {
		clf := newClf()
		bad := mat.DenseCopyOf(y)
		bad.Set(0, 0, 2)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(clf.Fit(X, bad), &valErr))

		X3 := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 2})
		y3 := mat.NewDense(3, 1, []float64{0, 1, 2})
		assert.True(t, errors.As(clf.Fit(X3, y3), &valErr))
	})

	t.Run("sample count mismatch", func(t *testing.T) {
		clf := newClf()
		var dimErr *errors.DimensionError
		err := clf.Fit(X, y.Slice(0, 59, 0, 1))
		require.True(t, errors.As(err, &dimErr), "%v", err)
		assert.Equal(t, 0, dimErr.Axis)
	})

	clf := newClf()
	require.NoError(t, clf.Fit(X, y))

	t.Run("feature count mismatch", func(t *testing.T) {
		var dimErr *errors.DimensionError
		_, err := clf.Predict(mat.NewDense(4, 3, nil))
		require.True(t, errors.As(err, &dimErr), "%v", err)
		assert.Equal(t, 1, dimErr.Axis)
		_, err = clf.PredictProba(mat.NewDense(4, 1, nil))
		assert.True(t, errors.As(err, &dimErr), "%v", err)
	})

	t.Run("shapes and invariants", func(t *testing.T) {
		pred, err := clf.Predict(Xq)
		require.NoError(t, err)
		AssertLabels(t, pred, 10)

		proba, err := clf.PredictProba(Xq)
		require.NoError(t, err)
		AssertProba(t, proba, 10)

		scores, err := clf.DecisionFunction(Xq)
		require.NoError(t, err)
		r, c := scores.Dims()
		assert.Equal(t, []int{10, 1}, []int{r, c})
		for i := 0; i < r; i++ {
			assert.False(t, math.IsNaN(scores.At(i, 0)))
		}
		assert.Equal(t, model.BinaryClasses, clf.Classes())
	})

	t.Run("repeated predictions are identical", func(t *testing.T) {
		a, err := clf.Predict(Xq)
		require.NoError(t, err)
		b, err := clf.Predict(Xq)
		require.NoError(t, err)
		assert.True(t, mat.Equal(a, b))

		pa, err := clf.PredictProba(Xq)
		require.NoError(t, err)
		pb, err := clf.PredictProba(Xq)
		require.NoError(t, err)
		assert.True(t, mat.Equal(pa, pb))
	})

	t.Run("learns separable data", func(t *testing.T) {
		acc, err := clf.Score(X, y)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, acc, 0.85)
	})

	t.Run("clone is unfitted with same params", func(t *testing.T) {
		c := clf.Clone()
		assert.Equal(t, clf.GetParams(), c.GetParams())
		_, err := c.Predict(Xq)
		var notFitted *errors.NotFittedError
		assert.True(t, errors.As(err, &notFitted))
	})

	t.Run("unknown parameter", func(t *testing.T) {
		var valErr *errors.ValidationError
		assert.True(t, errors.As(newClf().SetParams(map[string]interface{}{"no_such_param": 1}), &valErr))
	})

	t.Run("failed refit leaves the model unfitted", func(t *testing.T) {
		c := newClf()
		require.NoError(t, c.Fit(X, y))
		bad := mat.DenseCopyOf(y)
		bad.Set(0, 0, -1)
		require.Error(t, c.Fit(X, bad))
		_, err := c.Predict(Xq)
		var notFitted *errors.NotFittedError
		assert.True(t, errors.As(err, &notFitted))
	})
}
