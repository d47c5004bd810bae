package svm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// tau は二次項が 0 以下になった場合の下限（libsvm と同じ）
	tau = 1e-12

	// defaultIterLimit は max_iter = -1 のときの安全上限
	defaultIterLimit = 10_000_000
)

// smoResult is the solution of the dual problem.
type smoResult struct {
	alpha     []float64
	b         float64
	nIter     int
	converged bool
}

// solveSMO solves
//
//	min ½ αᵀQα - eᵀα  s.t.  yᵀα = 0, 0 <= α_i <= C
//
// with Q_ij = y_i y_j K_ij, picking the maximal violating pair each step.
// y must be in {-1, +1}.
func solveSMO(K *mat.Dense, y []float64, C, tol float64, maxIter int) smoResult {
	n := len(y)
	alpha := make([]float64, n)
	G := make([]float64, n) // ∇f(α) = Qα - e
	for i := range G {
		G[i] = -1
	}
	if maxIter < 0 {
		maxIter = defaultIterLimit
	}

	inUp := func(i int) bool {
		return (y[i] > 0 && alpha[i] < C) || (y[i] < 0 && alpha[i] > 0)
	}
	inLow := func(i int) bool {
		return (y[i] > 0 && alpha[i] > 0) || (y[i] < 0 && alpha[i] < C)
	}

	res := smoResult{}
	for res.nIter < maxIter {
		i, j := -1, -1
		gMax, gMin := math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			v := -y[t] * G[t]
			if inUp(t) && v > gMax {
				gMax, i = v, t
			}
			if inLow(t) && v < gMin {
				gMin, j = v, t
			}
		}
		if i < 0 || j < 0 || gMax-gMin < tol {
			res.converged = true
			break
		}
		res.nIter++

		// α_i += y_i·t, α_j -= y_j·t で目的関数を最小化
		eta := K.At(i, i) + K.At(j, j) - 2*K.At(i, j)
		if eta <= 0 {
			eta = tau
		}
		step := (gMax - gMin) / eta

		if y[i] > 0 {
			step = math.Min(step, C-alpha[i])
		} else {
			step = math.Min(step, alpha[i])
		}
		if y[j] > 0 {
			step = math.Min(step, alpha[j])
		} else {
			step = math.Min(step, C-alpha[j])
		}

		dI := y[i] * step
		dJ := -y[j] * step
		alpha[i] = clip(alpha[i]+dI, C)
		alpha[j] = clip(alpha[j]+dJ, C)

		for t := 0; t < n; t++ {
			G[t] += y[t] * (y[i]*K.At(t, i)*dI + y[j]*K.At(t, j)*dJ)
		}
	}

	res.alpha = alpha
	res.b = intercept(alpha, y, G, C)
	return res
}

func clip(a, C float64) float64 {
	const eps = 1e-12
	if a < eps {
		return 0
	}
	if a > C-eps*C {
		return C
	}
	return a
}

// intercept averages -y_i G_i over free support vectors, or takes the middle
// of the feasible interval when there are none.
func intercept(alpha, y, G []float64, C float64) float64 {
	var sum float64
	nFree := 0
	ub, lb := math.Inf(1), math.Inf(-1)
	for i, a := range alpha {
		v := -y[i] * G[i]
		switch {
		case a > 0 && a < C:
			sum += v
			nFree++
		case (y[i] > 0 && a == 0) || (y[i] < 0 && a == C):
			// I_up のみ
			lb = math.Max(lb, v)
		default:
			ub = math.Min(ub, v)
		}
	}
	if nFree > 0 {
		return sum / float64(nFree)
	}
	if math.IsInf(ub, 0) || math.IsInf(lb, 0) {
		if math.IsInf(ub, 0) {
			return lb
		}
		return ub
	}
	return (ub + lb) / 2
}
