// Package bayes implements Bayesian logistic regression with a Gaussian
// prior, fitted by MCMC (HMC or random-walk Metropolis) or mean-field ADVI.
package bayes

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// posterior is the unnormalized log posterior of
//
//	β_j ~ Normal(0, sd)
//	y_i ~ Bernoulli(invlogit(x_i·β))
//
// There is no intercept term.
type posterior struct {
	X     *mat.Dense
	y     []float64
	prior distuv.Normal
}

func newPosterior(X *mat.Dense, y []float64, sd float64) *posterior {
	return &posterior{X: X, y: y, prior: distuv.Normal{Mu: 0, Sigma: sd}}
}

func (p *posterior) dim() int {
	_, c := p.X.Dims()
	return c
}

// eta returns Xβ.
func (p *posterior) eta(beta []float64) []float64 {
	r, _ := p.X.Dims()
	out := make([]float64, r)
	var v mat.VecDense
	v.MulVec(p.X, mat.NewVecDense(len(beta), beta))
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// logProb returns log p(β | X, y) up to a constant.
func (p *posterior) logProb(beta []float64) float64 {
	var lp float64
	for _, b := range beta {
		lp += p.prior.LogProb(b)
	}
	for i, e := range p.eta(beta) {
		// y·η - log(1 + e^η)
		lp += p.y[i]*e - errors.Softplus(e)
	}
	return lp
}

// gradLogProb writes ∇ log p(β | X, y) into grad and returns log p.
func (p *posterior) gradLogProb(grad, beta []float64) float64 {
	eta := p.eta(beta)
	resid := make([]float64, len(eta))
	var lp float64
	for i, e := range eta {
		resid[i] = p.y[i] - model.Sigmoid(e)
		lp += p.y[i]*e - errors.Softplus(e)
	}
	var g mat.VecDense
	g.MulVec(p.X.T(), mat.NewVecDense(len(resid), resid))
	invVar := 1 / (p.prior.Sigma * p.prior.Sigma)
	for j, b := range beta {
		grad[j] = g.AtVec(j) - b*invVar
		lp += p.prior.LogProb(b)
	}
	return lp
}

// PosteriorPredictive returns, for each row of X, the mean of invlogit(x·β)
// over nsamples draws picked uniformly with replacement from trace.
// The query matrix is the only data input; the labels play no part.
func PosteriorPredictive(X mat.Matrix, trace *Trace, nsamples int, src distuvSource) ([]float64, error) {
	if trace == nil || trace.Len() == 0 {
		return nil, errors.NewValueError("PosteriorPredictive", "empty trace")
	}
	if nsamples < 1 {
		return nil, errors.NewValidationError("nsamplesPredict", "must be >= 1", nsamples)
	}
	r, c := X.Dims()
	if c != trace.NFeatures() {
		return nil, errors.NewDimensionError("PosteriorPredictive", trace.NFeatures(), c, 1)
	}

	pick := distuv.Uniform{Min: 0, Max: float64(trace.Len()), Src: src}
	draws := make([]int, nsamples)
	for s := range draws {
		k := int(pick.Rand())
		if k >= trace.Len() {
			k = trace.Len() - 1
		}
		draws[s] = k
	}

	out := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, k := range draws {
			sum += model.Sigmoid(floats.Dot(row, trace.draws.RawRowView(k)))
		}
		out[i] = sum / float64(nsamples)
	}
	return out, nil
}
