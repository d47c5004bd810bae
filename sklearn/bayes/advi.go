package bayes

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8

	// 初期の log σ
	initialLogSigma = -1.0
)

// adviFit is a mean-field Gaussian approximation q(β) = Π N(mu_j, exp(omega_j)).
type adviFit struct {
	mu    []float64
	omega []float64
	elbo  []float64
}

// runADVI maximizes the ELBO with single-sample reparameterized gradients
// and Adam.
func runADVI(post *posterior, iterations int, lr float64, rng *rand.Rand) (*adviFit, error) {
	p := post.dim()
	fit := &adviFit{
		mu:    make([]float64, p),
		omega: make([]float64, p),
		elbo:  make([]float64, 0, iterations),
	}
	for j := range fit.omega {
		fit.omega[j] = initialLogSigma
	}

	// Adam のモーメント。パラメータは [mu, omega] の順
	m := make([]float64, 2*p)
	v := make([]float64, 2*p)
	g := make([]float64, 2*p)
	eps := make([]float64, p)
	beta := make([]float64, p)
	grad := make([]float64, p)

	for it := 1; it <= iterations; it++ {
		for j := 0; j < p; j++ {
			eps[j] = rng.NormFloat64()
			beta[j] = fit.mu[j] + math.Exp(fit.omega[j])*eps[j]
		}
		lp := post.gradLogProb(grad, beta)

		// ELBO = E_q[log p(β)] + H[q]; H = Σ omega + const
		elbo := lp
		for j := 0; j < p; j++ {
			elbo += fit.omega[j]
			g[j] = grad[j]
			g[p+j] = grad[j]*eps[j]*math.Exp(fit.omega[j]) + 1
		}
		if math.IsNaN(elbo) || math.IsInf(elbo, 0) {
			return nil, errors.NewNumericalInstabilityError("advi", []float64{elbo}, it)
		}
		fit.elbo = append(fit.elbo, elbo)

		// 勾配上昇
		c1 := 1 - math.Pow(adamBeta1, float64(it))
		c2 := 1 - math.Pow(adamBeta2, float64(it))
		for k := range g {
			m[k] = adamBeta1*m[k] + (1-adamBeta1)*g[k]
			v[k] = adamBeta2*v[k] + (1-adamBeta2)*g[k]*g[k]
			step := lr * (m[k] / c1) / (math.Sqrt(v[k]/c2) + adamEps)
			if k < p {
				fit.mu[k] += step
			} else {
				fit.omega[k-p] += step
			}
		}
	}
	if err := errors.CheckNumericalStability("advi", fit.mu, iterations); err != nil {
		return nil, err
	}
	return fit, nil
}

// sample draws n vectors from q.
func (f *adviFit) sample(n int, src distuvSource) [][]float64 {
	p := len(f.mu)
	dists := make([]distuv.Normal, p)
	for j := range dists {
		dists[j] = distuv.Normal{Mu: f.mu[j], Sigma: math.Exp(f.omega[j]), Src: src}
	}
	out := make([][]float64, n)
	for s := range out {
		out[s] = make([]float64, p)
		for j := range dists {
			out[s][j] = dists[j].Rand()
		}
	}
	return out
}
