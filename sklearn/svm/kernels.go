package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/binclf/core/parallel"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// Kernel names.
const (
	KernelLinear  = "linear"
	KernelPoly    = "poly"
	KernelRBF     = "rbf"
	KernelSigmoid = "sigmoid"
)

// Gamma rules.
const (
	GammaScale = "scale"
	GammaAuto  = "auto"
)

// kernel matrices with at most kernelMatrixThreshold rows are computed sequentially
const kernelMatrixThreshold = 128

// kernel is a resolved kernel function k(a, b).
type kernel struct {
	name   string
	gamma  float64
	degree int
	coef0  float64
}

func (k kernel) eval(a, b []float64) float64 {
	switch k.name {
	case KernelLinear:
		return floats.Dot(a, b)
	case KernelPoly:
		return math.Pow(k.gamma*floats.Dot(a, b)+k.coef0, float64(k.degree))
	case KernelSigmoid:
		return math.Tanh(k.gamma*floats.Dot(a, b) + k.coef0)
	default:
		d := floats.Distance(a, b, 2)
		return math.Exp(-k.gamma * d * d)
	}
}

// resolveGamma turns "scale", "auto" or a number into the kernel coefficient.
// "scale" is 1 / (n_features · Var(X)), "auto" is 1 / n_features.
func resolveGamma(gamma interface{}, X *mat.Dense) (float64, error) {
	_, p := X.Dims()
	switch g := gamma.(type) {
	case string:
		switch g {
		case GammaAuto:
			return 1 / float64(p), nil
		case GammaScale:
			r, c := X.Dims()
			all := make([]float64, 0, r*c)
			for i := 0; i < r; i++ {
				all = append(all, X.RawRowView(i)...)
			}
			_, v := stat.PopMeanVariance(all, nil)
			if v == 0 {
				return 1, nil
			}
			return 1 / (float64(p) * v), nil
		}
	case float64:
		if g > 0 {
			return g, nil
		}
	}
	return 0, errors.NewValidationError("gamma", "must be scale, auto or a positive number", gamma)
}

func newKernel(name string, gamma interface{}, degree int, coef0 float64, X *mat.Dense) (kernel, error) {
	switch name {
	case KernelLinear, KernelPoly, KernelRBF, KernelSigmoid:
	default:
		return kernel{}, errors.NewValidationError("kernel", "must be linear, poly, rbf or sigmoid", name)
	}
	if name == KernelPoly && degree < 0 {
		return kernel{}, errors.NewValidationError("degree", "must be >= 0", degree)
	}
	g, err := resolveGamma(gamma, X)
	if err != nil {
		return kernel{}, err
	}
	return kernel{name: name, gamma: g, degree: degree, coef0: coef0}, nil
}

// gram computes K(A_i, B_j) for every pair of rows.
func (k kernel) gram(A, B *mat.Dense) *mat.Dense {
	ra, _ := A.Dims()
	rb, _ := B.Dims()
	K := mat.NewDense(ra, rb, nil)
	parallel.ParallelizeWithThreshold(ra, kernelMatrixThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			a := A.RawRowView(i)
			row := K.RawRowView(i)
			for j := 0; j < rb; j++ {
				row[j] = k.eval(a, B.RawRowView(j))
			}
		}
	})
	return K
}
