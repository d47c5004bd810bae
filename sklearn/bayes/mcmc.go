package bayes

import (
	"context"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// Sampler step methods.
const (
	StepAuto       = "auto"
	StepHMC        = "hmc"
	StepMetropolis = "metropolis"
)

// Chain initialization methods.
const (
	InitAuto   = "auto"
	InitZero   = "zero"
	InitJitter = "jitter"
	InitMAP    = "map"
	InitADVI   = "advi"
)

const (
	// HMC
	leapfrogSteps = 10
	initialStep   = 0.1
	targetAccept  = 0.8

	// Metropolis のスケール調整間隔
	tuneInterval = 50
)

// sampleConfig is the input of runChains.
type sampleConfig struct {
	step         string
	init         string
	chains       int
	tune         int
	draws        int
	discardTuned bool
	seed         uint64

	// init == InitADVI のときの ADVI 設定
	adviIterations int
	adviLR         float64
}

// chainResult is the output of one chain.
type chainResult struct {
	draws      [][]float64
	acceptRate float64
}

// chainRNG returns the generator of chain c. Streams differ by chain.
func chainRNG(seed uint64, c int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(c)+1))
}

// runChains runs cfg.chains independent chains concurrently and stacks them in a Trace.
func runChains(ctx context.Context, post *posterior, cfg sampleConfig) (*Trace, error) {
	starts, err := initialPoints(post, cfg)
	if err != nil {
		return nil, err
	}

	results := make([]chainResult, cfg.chains)
	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < cfg.chains; c++ {
		g.Go(func() error {
			rng := chainRNG(cfg.seed, c)
			var (
				res chainResult
				err error
			)
			switch cfg.step {
			case StepMetropolis:
				res, err = metropolisChain(gctx, post, starts[c], cfg, rng)
			default:
				res, err = hmcChain(gctx, post, starts[c], cfg, rng)
			}
			if err != nil {
				return errors.Wrapf(err, "chain %d", c)
			}
			results[c] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chains := make([][][]float64, cfg.chains)
	rates := make([]float64, cfg.chains)
	for c, r := range results {
		chains[c] = r.draws
		rates[c] = r.acceptRate
	}
	tuned := 0
	if !cfg.discardTuned {
		tuned = cfg.tune
	}
	return newTrace(chains, tuned, rates), nil
}

// initialPoints returns one starting β per chain.
func initialPoints(post *posterior, cfg sampleConfig) ([][]float64, error) {
	p := post.dim()
	starts := make([][]float64, cfg.chains)

	var center []float64
	switch cfg.init {
	case InitZero, InitAuto, InitJitter:
		center = make([]float64, p)
	case InitMAP:
		m, err := mapEstimate(post)
		if err != nil {
			return nil, err
		}
		center = m
	case InitADVI:
		fit, err := runADVI(post, cfg.adviIterations, cfg.adviLR, rand.New(rand.NewPCG(cfg.seed, 0)))
		if err != nil {
			return nil, err
		}
		center = fit.mu
	default:
		return nil, errors.NewValidationError("samplerInit", "must be auto, zero, jitter, map or advi", cfg.init)
	}

	for c := range starts {
		starts[c] = append([]float64(nil), center...)
		if cfg.init == InitAuto || cfg.init == InitJitter {
			rng := chainRNG(cfg.seed^0xa5a5a5a5, c)
			for j := range starts[c] {
				starts[c][j] += 2*rng.Float64() - 1
			}
		}
	}
	return starts, nil
}

// mapEstimate maximizes the log posterior with L-BFGS.
func mapEstimate(post *posterior) ([]float64, error) {
	p := post.dim()
	problem := optimize.Problem{
		Func: func(x []float64) float64 { return -post.logProb(x) },
		Grad: func(grad, x []float64) {
			post.gradLogProb(grad, x)
			floats.Scale(-1, grad)
		},
	}
	result, err := optimize.Minimize(problem, make([]float64, p), nil, &optimize.LBFGS{})
	if result == nil {
		return nil, errors.Wrap(err, "map estimate")
	}
	if err := errors.CheckNumericalStability("map", result.X, result.Stats.MajorIterations); err != nil {
		return nil, err
	}
	return result.X, nil
}

// hmcChain runs Hamiltonian Monte Carlo with an identity mass matrix.
// The step size is adapted during tuning by dual averaging towards
// targetAccept and frozen afterwards.
func hmcChain(ctx context.Context, post *posterior, start []float64, cfg sampleConfig, rng *rand.Rand) (chainResult, error) {
	p := len(start)
	q := append([]float64(nil), start...)
	grad := make([]float64, p)
	lp := post.gradLogProb(grad, q)

	// dual averaging (Hoffman & Gelman 2014)
	eps := initialStep
	mu := math.Log(10 * eps)
	var hBar, logEpsBar float64
	const gamma, t0, kappa = 0.05, 10.0, 0.75

	qNew := make([]float64, p)
	gradNew := make([]float64, p)
	mom := make([]float64, p)

	var res chainResult
	accepted := 0
	total := cfg.tune + cfg.draws
	for it := 0; it < total; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		for j := range mom {
			mom[j] = rng.NormFloat64()
		}
		h0 := lp - 0.5*floats.Dot(mom, mom)

		copy(qNew, q)
		copy(gradNew, grad)
		lpNew := lp
		for l := 0; l < leapfrogSteps; l++ {
			floats.AddScaled(mom, 0.5*eps, gradNew)
			floats.AddScaled(qNew, eps, mom)
			lpNew = post.gradLogProb(gradNew, qNew)
			floats.AddScaled(mom, 0.5*eps, gradNew)
		}
		h1 := lpNew - 0.5*floats.Dot(mom, mom)

		alpha := 0.0
		if !math.IsNaN(h1) && !math.IsInf(h1, 0) {
			alpha = math.Min(1, math.Exp(h1-h0))
		}
		if rng.Float64() < alpha {
			copy(q, qNew)
			copy(grad, gradNew)
			lp = lpNew
			if it >= cfg.tune {
				accepted++
			}
		}

		if it < cfg.tune {
			m := float64(it + 1)
			hBar = (1-1/(m+t0))*hBar + (targetAccept-alpha)/(m+t0)
			logEps := mu - math.Sqrt(m)/gamma*hBar
			eta := math.Pow(m, -kappa)
			logEpsBar = eta*logEps + (1-eta)*logEpsBar
			eps = math.Exp(logEps)
			if it == cfg.tune-1 {
				eps = math.Exp(logEpsBar)
			}
		}

		if it >= cfg.tune || !cfg.discardTuned {
			res.draws = append(res.draws, append([]float64(nil), q...))
		}
	}
	if err := errors.CheckNumericalStability("hmc", q, total); err != nil {
		return res, err
	}
	if cfg.draws > 0 {
		res.acceptRate = float64(accepted) / float64(cfg.draws)
	}
	return res, nil
}

// metropolisChain runs random-walk Metropolis with a per-chain proposal
// scale tuned every tuneInterval steps during tuning.
func metropolisChain(ctx context.Context, post *posterior, start []float64, cfg sampleConfig, rng *rand.Rand) (chainResult, error) {
	p := len(start)
	q := append([]float64(nil), start...)
	lp := post.logProb(q)
	prop := make([]float64, p)
	scale := 1.0

	var res chainResult
	accepted, windowAccepted := 0, 0
	total := cfg.tune + cfg.draws
	for it := 0; it < total; it++ {
		if it%100 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		for j := range prop {
			prop[j] = q[j] + scale*rng.NormFloat64()
		}
		lpProp := post.logProb(prop)
		if !math.IsNaN(lpProp) && math.Log(rng.Float64()) < lpProp-lp {
			copy(q, prop)
			lp = lpProp
			windowAccepted++
			if it >= cfg.tune {
				accepted++
			}
		}

		if it < cfg.tune && (it+1)%tuneInterval == 0 {
			scale = tuneScale(scale, float64(windowAccepted)/tuneInterval)
			windowAccepted = 0
		}

		if it >= cfg.tune || !cfg.discardTuned {
			res.draws = append(res.draws, append([]float64(nil), q...))
		}
	}
	if cfg.draws > 0 {
		res.acceptRate = float64(accepted) / float64(cfg.draws)
	}
	return res, nil
}

// tuneScale adjusts the Metropolis proposal scale from the acceptance rate
// of the last window.
func tuneScale(scale, acc float64) float64 {
	switch {
	case acc < 0.001:
		return scale * 0.1
	case acc < 0.05:
		return scale * 0.5
	case acc < 0.2:
		return scale * 0.9
	case acc > 0.95:
		return scale * 10
	case acc > 0.75:
		return scale * 2
	case acc > 0.5:
		return scale * 1.1
	}
	return scale
}
