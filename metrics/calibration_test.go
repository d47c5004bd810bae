package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

func TestBrierScore(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})

	got, err := BrierScore(yTrue, mat.NewVecDense(4, []float64{0.1, 0.2, 0.8, 0.9}))
	require.NoError(t, err)
	// (0.01 + 0.04 + 0.04 + 0.01) / 4
	assert.InDelta(t, 0.025, got, 1e-12)

	_, err = BrierScore(mat.NewVecDense(2, []float64{0, 2}), mat.NewVecDense(2, []float64{0.1, 0.2}))
	assert.Error(t, err)
}

func TestConfusionMatrix(t *testing.T) {
	cm, err := ConfusionMatrix(
		mat.NewVecDense(5, []float64{0, 0, 1, 1, 1}),
		mat.NewVecDense(5, []float64{0, 1, 1, 0, 1}),
	)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, mat.Row(nil, 0, cm))
	assert.Equal(t, []float64{1, 2}, mat.Row(nil, 1, cm))
}

func TestAUCWarnsOnSingleClass(t *testing.T) {
	var warned []error
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(nil)

	got, err := AUC(mat.NewVecDense(3, []float64{1, 1, 1}), mat.NewVecDense(3, []float64{0.2, 0.5, 0.9}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
	require.Len(t, warned, 1)

	var undefined *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warned[0], &undefined))
}
