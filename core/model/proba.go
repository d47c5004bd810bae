package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sigmoid computes 1 / (1 + exp(-z)) without overflowing for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1.0 / (1.0 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1.0 + e)
}

// ProbaFromPositive builds the n×2 probability matrix from P(class 1).
// Values are clipped to [0, 1] so that both columns stay valid probabilities.
func ProbaFromPositive(p []float64) *mat.Dense {
	out := mat.NewDense(len(p), 2, nil)
	for i, v := range p {
		v = math.Min(1, math.Max(0, v))
		out.Set(i, 0, 1-v)
		out.Set(i, 1, v)
	}
	return out
}

// SigmoidProba maps raw scores through the logistic sigmoid into an n×2
// probability matrix. The result is monotone in the score but is not a
// calibrated probability.
func SigmoidProba(scores []float64) *mat.Dense {
	p := make([]float64, len(scores))
	for i, s := range scores {
		p[i] = Sigmoid(s)
	}
	return ProbaFromPositive(p)
}

// Threshold returns an n×1 label matrix: 1 where score > t, else 0.
func Threshold(scores []float64, t float64) *mat.Dense {
	out := mat.NewDense(len(scores), 1, nil)
	for i, s := range scores {
		if s > t {
			out.Set(i, 0, 1)
		}
	}
	return out
}

// ColumnVector wraps v as an n×1 matrix.
func ColumnVector(v []float64) *mat.Dense {
	if len(v) == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(len(v), 1, v)
}

// Column copies column j of m.
func Column(m mat.Matrix, j int) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, j)
	}
	return out
}

// MeanAccuracy validates X and y, predicts with p and returns the fraction
// of matching labels.
func MeanAccuracy(op string, p Predictor, X, y mat.Matrix) (float64, error) {
	Xd, err := CheckArray(op, X)
	if err != nil {
		return 0, err
	}
	n, _ := Xd.Dims()
	yv, err := CheckTarget(op, y, n)
	if err != nil {
		return 0, err
	}
	pred, err := p.Predict(Xd)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, v := range yv {
		if pred.At(i, 0) == v {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}
