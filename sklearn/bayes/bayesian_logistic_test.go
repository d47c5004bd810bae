package bayes

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/core/model/modeltest"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

func init() {
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(error) {})
}

func fastMCMC(opts ...BayesianOption) *BayesianLogistic {
	return NewBayesianLogistic(append([]BayesianOption{
		WithNSamplesFit(100),
		WithNSampleTune(100),
		WithNSamplesPredict(50),
		WithFeaturesSd(3),
	}, opts...)...)
}

func TestBayesianLogisticConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier { return fastMCMC() })
}

func TestBayesianLogisticADVIConformance(t *testing.T) {
	modeltest.RunConformance(t, func() model.BinaryClassifier {
		return NewBayesianLogistic(WithMCMC(false), WithNSamplesFit(50), WithADVI(2000, 0.05))
	})
}

func TestBayesianLogisticVariationalDecisionFunction(t *testing.T) {
	X, y := modeltest.Separable(100, 3, 31)
	b := NewBayesianLogistic(WithNSamplesFit(50), WithMCMC(false))
	require.NoError(t, b.Fit(X, y))

	scores, err := b.DecisionFunction(X)
	require.NoError(t, err)
	r, _ := scores.Dims()
	for i := 0; i < r; i++ {
		s := scores.At(i, 0)
		assert.True(t, s >= 0 && s <= 1, "row %d: %v", i, s)
	}

	trace, err := b.Trace()
	require.NoError(t, err)
	assert.Equal(t, 50, trace.Len())
	assert.Equal(t, 3, trace.NFeatures())
	assert.Nil(t, trace.AcceptRates())

	elbo, err := b.ELBO()
	require.NoError(t, err)
	require.Len(t, elbo, 10000)
	// 後半の ELBO は序盤より高い
	assert.Greater(t, floats.Sum(elbo[9000:])/1000, floats.Sum(elbo[:100])/100)
}

func TestBayesianLogisticTraceLayout(t *testing.T) {
	X, y := modeltest.Noisy(80, 2, 0.1, 32)

	tests := []struct {
		name     string
		opts     []BayesianOption
		wantLen  int
		wantTune int
	}{
		{"discard tuned", []BayesianOption{WithChains(3)}, 300, 0},
		{"keep tuned", []BayesianOption{WithDiscardTuned(false)}, 400, 100},
		{"metropolis", []BayesianOption{WithSamplerStep(StepMetropolis), WithChains(1)}, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := fastMCMC(tt.opts...)
			require.NoError(t, b.Fit(X, y))
			trace, err := b.Trace()
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, trace.Len())
			assert.Equal(t, tt.wantTune, trace.NTuned())
			for _, rate := range trace.AcceptRates() {
				assert.Greater(t, rate, 0.0)
			}
		})
	}
}

func TestBayesianLogisticPosteriorAgreesAcrossSamplers(t *testing.T) {
	X, y := modeltest.Noisy(150, 2, 0.1, 33)
	mean := func(opts ...BayesianOption) []float64 {
		b := fastMCMC(append(opts, WithNSamplesFit(400), WithNSampleTune(300))...)
		require.NoError(t, b.Fit(X, y))
		trace, err := b.Trace()
		require.NoError(t, err)
		return trace.Mean()
	}
	hmc := mean(WithSamplerStep(StepHMC), WithSamplerInit(InitMAP))
	metro := mean(WithSamplerStep(StepMetropolis), WithSamplerInit(InitMAP))
	for j := range hmc {
		// y = 1 if x0 + x1 > 0 なので両係数とも正
		assert.Greater(t, hmc[j], 0.0)
		assert.InDelta(t, hmc[j], metro[j], 0.5*math.Abs(hmc[j])+0.3)
	}
}

func TestBayesianLogisticInitMethods(t *testing.T) {
	X, y := modeltest.Separable(40, 2, 34)
	for _, init := range []string{InitAuto, InitZero, InitJitter, InitMAP, InitADVI} {
		t.Run(init, func(t *testing.T) {
			b := fastMCMC(WithSamplerInit(init), WithADVI(500, 0.05))
			require.NoError(t, b.Fit(X, y))
		})
	}
}

func TestBayesianLogisticInvalidHyperparameters(t *testing.T) {
	X, y := modeltest.Separable(20, 2, 35)
	for name, opt := range map[string]BayesianOption{
		"featuresSd":  WithFeaturesSd(0),
		"nsamplesFit": WithNSamplesFit(0),
		"samplerStep": WithSamplerStep("nuts"),
		"samplerInit": WithSamplerInit("adapt_diag"),
		"chains":      WithChains(0),
	} {
		t.Run(name, func(t *testing.T) {
			var valErr *errors.ValidationError
			err := NewBayesianLogistic(opt).Fit(X, y)
			assert.True(t, errors.As(err, &valErr), "got %v", err)
		})
	}
}

func TestBayesianLogisticEngineErrorsReturnedAsIs(t *testing.T) {
	// 学習率が大きすぎると2反復目で ELBO が発散する
	X, y := modeltest.Separable(30, 2, 36)
	b := NewBayesianLogistic(WithMCMC(false), WithADVI(5, 1e300))
	err := b.Fit(X, y)
	require.Error(t, err)

	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &numErr), "got %v", err)
	var modelErr *errors.ModelError
	assert.False(t, errors.As(err, &modelErr))

	_, err = b.Trace()
	var nfErr *errors.NotFittedError
	assert.True(t, errors.As(err, &nfErr))
}

func TestBayesianLogisticDefaults(t *testing.T) {
	params := NewBayesianLogistic().GetParams()
	assert.Equal(t, 10.0, params["featuresSd"])
	assert.Equal(t, 200, params["nsamplesFit"])
	assert.Equal(t, 100, params["nsamplesPredict"])
	assert.Equal(t, true, params["mcmc"])
	assert.Equal(t, 200, params["nsampleTune"])
	assert.Equal(t, true, params["discardTuned"])
	assert.Equal(t, "auto", params["samplerStep"])
	assert.Equal(t, "auto", params["samplerInit"])
}

func TestPosteriorGradient(t *testing.T) {
	X, y := modeltest.Noisy(30, 3, 0.2, 36)
	post := newPosterior(X, mat.Col(nil, 0, y), 2)
	beta := []float64{0.3, -0.7, 1.1}
	grad := make([]float64, 3)
	lp := post.gradLogProb(grad, beta)
	assert.InDelta(t, post.logProb(beta), lp, 1e-9)

	const h = 1e-6
	for j := range beta {
		up := append([]float64(nil), beta...)
		down := append([]float64(nil), beta...)
		up[j] += h
		down[j] -= h
		numeric := (post.logProb(up) - post.logProb(down)) / (2 * h)
		assert.InDelta(t, numeric, grad[j], 1e-4, "coefficient %d", j)
	}
}

func TestPosteriorPredictive(t *testing.T) {
	// β = (1, -1) と β = (-1, 1) の2点だけのトレース
	trace := newTrace([][][]float64{{{1, -1}, {-1, 1}}}, 0, nil)
	X := mat.NewDense(2, 2, []float64{0, 0, 2, 0})

	p, err := PosteriorPredictive(X, trace, 1000, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p[0], 1e-12)
	// 平均は (σ(2) + σ(-2)) / 2 = 0.5 付近
	assert.InDelta(t, 0.5, p[1], 0.05)

	again, err := PosteriorPredictive(X, trace, 1000, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, p, again)

	_, err = PosteriorPredictive(mat.NewDense(1, 3, nil), trace, 10, rand.NewPCG(1, 2))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestRHat(t *testing.T) {
	X, y := modeltest.Noisy(80, 2, 0.1, 37)
	post := newPosterior(X, mat.Col(nil, 0, y), 3)
	trace, err := runChains(context.Background(), post, sampleConfig{
		step: StepHMC, init: InitZero, chains: 4, tune: 200, draws: 300, discardTuned: true, seed: 3,
	})
	require.NoError(t, err)
	for _, r := range trace.RHat() {
		assert.Less(t, r, 1.1)
	}
	assert.Equal(t, 300, trace.Chain(2).RawMatrix().Rows)
}
