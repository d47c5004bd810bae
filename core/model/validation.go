package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// CheckArray validates a feature matrix: non-nil, two dimensional with at
// least one row and one column, all values finite. It returns a dense copy
// the caller may keep.
func CheckArray(op string, X mat.Matrix) (*mat.Dense, error) {
	if X == nil {
		return nil, errors.NewValueError(op, "X is nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewValueError(op, fmt.Sprintf("X contains NaN or Inf at (%d, %d)", i, j))
			}
		}
	}
	return mat.DenseCopyOf(X), nil
}

// CheckTarget flattens y (n×1 column or 1×n row) into a slice of length nSamples.
func CheckTarget(op string, y mat.Matrix, nSamples int) ([]float64, error) {
	if y == nil {
		return nil, errors.NewValueError(op, "y is nil")
	}
	r, c := y.Dims()
	var out []float64
	switch {
	case c == 1:
		out = make([]float64, r)
		for i := range out {
			out[i] = y.At(i, 0)
		}
	case r == 1:
		out = make([]float64, c)
		for j := range out {
			out[j] = y.At(0, j)
		}
	default:
		return nil, errors.NewValueError(op, fmt.Sprintf("y must be a vector: got shape (%d, %d)", r, c))
	}
	if len(out) != nSamples {
		return nil, errors.NewDimensionError(op, nSamples, len(out), 0)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewValueError(op, fmt.Sprintf("y contains NaN or Inf at %d", i))
		}
	}
	return out, nil
}

// CheckBinaryLabels requires the distinct labels of y to be exactly {0, 1}.
// A target with a single class is rejected as well.
func CheckBinaryLabels(y []float64) error {
	seen := make(map[float64]struct{}, 2)
	for _, v := range y {
		seen[v] = struct{}{}
	}
	_, has0 := seen[0]
	_, has1 := seen[1]
	if len(seen) == 2 && has0 && has1 {
		return nil
	}
	labels := make([]float64, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Float64s(labels)
	return errors.NewValidationError("y", "labels must be exactly {0, 1}", labels)
}

// CheckXy runs CheckArray, CheckTarget and CheckBinaryLabels in that order.
func CheckXy(op string, X, y mat.Matrix) (*mat.Dense, []float64, error) {
	Xd, err := CheckArray(op, X)
	if err != nil {
		return nil, nil, err
	}
	n, _ := Xd.Dims()
	yv, err := CheckTarget(op, y, n)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckBinaryLabels(yv); err != nil {
		return nil, nil, err
	}
	return Xd, yv, nil
}

// CheckNFeatures validates a prediction matrix against the training feature count.
func CheckNFeatures(op string, X mat.Matrix, nFeatures int) (*mat.Dense, error) {
	Xd, err := CheckArray(op, X)
	if err != nil {
		return nil, err
	}
	if _, c := Xd.Dims(); c != nFeatures {
		return nil, errors.NewDimensionError(op, nFeatures, c, 1)
	}
	return Xd, nil
}
