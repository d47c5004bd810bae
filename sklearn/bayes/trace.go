package bayes

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// distuvSource is the random source type accepted by gonum's distuv.
type distuvSource = rand.Source

// Trace holds posterior draws, one row per draw, chains stacked in order.
type Trace struct {
	draws    *mat.Dense
	chains   int
	perChain int
	// tuned は各チェーン先頭に残したチューニング中の draw 数
	tuned       int
	acceptRates []float64
}

func newTrace(chains [][][]float64, tuned int, acceptRates []float64) *Trace {
	perChain := len(chains[0])
	p := len(chains[0][0])
	draws := mat.NewDense(len(chains)*perChain, p, nil)
	for c, chain := range chains {
		for s, beta := range chain {
			draws.SetRow(c*perChain+s, beta)
		}
	}
	return &Trace{draws: draws, chains: len(chains), perChain: perChain, tuned: tuned, acceptRates: acceptRates}
}

// Len returns the total number of draws.
func (t *Trace) Len() int {
	r, _ := t.draws.Dims()
	return r
}

// NFeatures returns the dimension of β.
func (t *Trace) NFeatures() int {
	_, c := t.draws.Dims()
	return c
}

// NChains returns the number of chains.
func (t *Trace) NChains() int { return t.chains }

// NTuned returns the number of tuning draws kept at the start of each chain.
func (t *Trace) NTuned() int { return t.tuned }

// Draws returns a copy of all draws (Len × NFeatures).
func (t *Trace) Draws() *mat.Dense {
	return mat.DenseCopyOf(t.draws)
}

// Chain returns a copy of the draws of chain c.
func (t *Trace) Chain(c int) *mat.Dense {
	_, p := t.draws.Dims()
	return mat.DenseCopyOf(t.draws.Slice(c*t.perChain, (c+1)*t.perChain, 0, p))
}

// AcceptRates returns the post-tuning acceptance rate of each chain.
// It is nil for a trace drawn from a variational approximation.
func (t *Trace) AcceptRates() []float64 {
	return append([]float64(nil), t.acceptRates...)
}

// Mean returns the posterior mean of each coefficient.
func (t *Trace) Mean() []float64 {
	_, p := t.draws.Dims()
	out := make([]float64, p)
	for j := range out {
		out[j] = stat.Mean(mat.Col(nil, j, t.draws), nil)
	}
	return out
}

// StdDev returns the posterior standard deviation of each coefficient.
func (t *Trace) StdDev() []float64 {
	_, p := t.draws.Dims()
	out := make([]float64, p)
	for j := range out {
		out[j] = stat.StdDev(mat.Col(nil, j, t.draws), nil)
	}
	return out
}

// RHat returns the Gelman-Rubin potential scale reduction factor of each
// coefficient, computed on the draws after the kept tuning draws. It
// returns nil for fewer than two chains.
func (t *Trace) RHat() []float64 {
	if t.chains < 2 {
		return nil
	}
	_, p := t.draws.Dims()
	n := t.perChain - t.tuned
	if n < 2 {
		return nil
	}
	out := make([]float64, p)
	means := make([]float64, t.chains)
	vars := make([]float64, t.chains)
	for j := 0; j < p; j++ {
		for c := 0; c < t.chains; c++ {
			start := c*t.perChain + t.tuned
			col := mat.Col(nil, j, t.draws.Slice(start, start+n, 0, p))
			means[c], vars[c] = stat.MeanVariance(col, nil)
		}
		W := stat.Mean(vars, nil)
		B := float64(n) * stat.Variance(means, nil)
		if W == 0 {
			out[j] = math.NaN()
			continue
		}
		varPlus := (float64(n-1)/float64(n))*W + B/float64(n)
		out[j] = math.Sqrt(varPlus / W)
	}
	return out
}
