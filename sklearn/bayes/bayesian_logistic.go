package bayes

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

const modelName = "BayesianLogistic"

// An R-hat above rHatWarn raises a convergence warning.
const rHatWarn = 1.1

var _ model.BinaryClassifier = (*BayesianLogistic)(nil)

type bayesState struct {
	trace *Trace
	elbo  []float64
}

// BayesianLogistic is logistic regression with independent Normal(0, featuresSd)
// priors on the coefficients and no intercept. Predictions average
// invlogit(x·β) over posterior draws.
type BayesianLogistic struct {
	state *model.StateManager[bayesState]
	id    string

	featuresSd       float64
	nsamplesFit      int
	nsamplesPredict  int
	mcmc             bool
	nsampleTune      int
	discardTuned     bool
	samplerStep      string
	samplerInit      string
	chains           int
	adviIterations   int
	adviLearningRate float64
	randomState      int64
}

// BayesianOption is a functional option for BayesianLogistic.
type BayesianOption func(*BayesianLogistic)

// NewBayesianLogistic creates a BayesianLogistic with the given options.
func NewBayesianLogistic(opts ...BayesianOption) *BayesianLogistic {
	b := &BayesianLogistic{
		state:            model.NewStateManager[bayesState](),
		id:               uuid.NewString(),
		featuresSd:       10,
		nsamplesFit:      200,
		nsamplesPredict:  100,
		mcmc:             true,
		nsampleTune:      200,
		discardTuned:     true,
		samplerStep:      StepAuto,
		samplerInit:      InitAuto,
		chains:           2,
		adviIterations:   10000,
		adviLearningRate: 0.01,
		randomState:      0,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithFeaturesSd sets the prior standard deviation of each coefficient.
func WithFeaturesSd(sd float64) BayesianOption {
	return func(b *BayesianLogistic) { b.featuresSd = sd }
}

// WithNSamplesFit sets the number of posterior draws kept per chain.
func WithNSamplesFit(n int) BayesianOption {
	return func(b *BayesianLogistic) { b.nsamplesFit = n }
}

// WithNSamplesPredict sets the number of draws averaged per prediction.
func WithNSamplesPredict(n int) BayesianOption {
	return func(b *BayesianLogistic) { b.nsamplesPredict = n }
}

// WithMCMC selects MCMC (true) or ADVI (false).
func WithMCMC(mcmc bool) BayesianOption {
	return func(b *BayesianLogistic) { b.mcmc = mcmc }
}

// WithNSampleTune sets the number of tuning steps per chain.
func WithNSampleTune(n int) BayesianOption {
	return func(b *BayesianLogistic) { b.nsampleTune = n }
}

// WithDiscardTuned sets whether tuning draws are dropped from the trace.
func WithDiscardTuned(discard bool) BayesianOption {
	return func(b *BayesianLogistic) { b.discardTuned = discard }
}

// WithSamplerStep sets the MCMC step method: "auto", "hmc" or "metropolis".
func WithSamplerStep(step string) BayesianOption {
	return func(b *BayesianLogistic) { b.samplerStep = step }
}

// WithSamplerInit sets the chain initialization: "auto", "zero", "jitter", "map" or "advi".
func WithSamplerInit(init string) BayesianOption {
	return func(b *BayesianLogistic) { b.samplerInit = init }
}

// WithChains sets the number of MCMC chains.
func WithChains(n int) BayesianOption {
	return func(b *BayesianLogistic) { b.chains = n }
}

// WithADVI sets the ADVI iteration count and Adam learning rate.
func WithADVI(iterations int, learningRate float64) BayesianOption {
	return func(b *BayesianLogistic) {
		b.adviIterations = iterations
		b.adviLearningRate = learningRate
	}
}

// WithRandomState sets the seed of every random stream.
func WithRandomState(seed int64) BayesianOption {
	return func(b *BayesianLogistic) { b.randomState = seed }
}

func (b *BayesianLogistic) logger() log.Logger {
	return log.GetLoggerWithName("bayes").With(log.ModelNameKey, modelName, log.EstimatorIDKey, b.id)
}

func (b *BayesianLogistic) validate() error {
	switch {
	case !(b.featuresSd > 0):
		return errors.NewValidationError("featuresSd", "must be > 0", b.featuresSd)
	case b.nsamplesFit < 1:
		return errors.NewValidationError("nsamplesFit", "must be >= 1", b.nsamplesFit)
	case b.nsamplesPredict < 1:
		return errors.NewValidationError("nsamplesPredict", "must be >= 1", b.nsamplesPredict)
	case b.nsampleTune < 0:
		return errors.NewValidationError("nsampleTune", "must be >= 0", b.nsampleTune)
	case b.chains < 1:
		return errors.NewValidationError("chains", "must be >= 1", b.chains)
	case b.adviIterations < 1:
		return errors.NewValidationError("advi_iterations", "must be >= 1", b.adviIterations)
	case !(b.adviLearningRate > 0):
		return errors.NewValidationError("advi_learning_rate", "must be > 0", b.adviLearningRate)
	}
	switch b.samplerStep {
	case StepAuto, StepHMC, StepMetropolis:
	default:
		return errors.NewValidationError("samplerStep", "must be auto, hmc or metropolis", b.samplerStep)
	}
	switch b.samplerInit {
	case InitAuto, InitZero, InitJitter, InitMAP, InitADVI:
	default:
		return errors.NewValidationError("samplerInit", "must be auto, zero, jitter, map or advi", b.samplerInit)
	}
	return nil
}

// Fit draws from the posterior given X, y. Any previous fit is discarded first.
func (b *BayesianLogistic) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "BayesianLogistic.Fit")
	const op = "BayesianLogistic.Fit"

	b.state.Reset()
	Xd, yv, err := model.CheckXy(op, X, y)
	if err != nil {
		return err
	}
	if err := b.validate(); err != nil {
		return err
	}
	n, p := Xd.Dims()
	post := newPosterior(Xd, yv, b.featuresSd)
	seed := uint64(b.randomState)
	start := time.Now()

	st := &bayesState{}
	if b.mcmc {
		step := b.samplerStep
		if step == StepAuto {
			step = StepHMC
		}
		st.trace, err = runChains(context.Background(), post, sampleConfig{
			step:           step,
			init:           b.samplerInit,
			chains:         b.chains,
			tune:           b.nsampleTune,
			draws:          b.nsamplesFit,
			discardTuned:   b.discardTuned,
			seed:           seed,
			adviIterations: b.adviIterations,
			adviLR:         b.adviLearningRate,
		})
		if err != nil {
			return errors.WithStack(err)
		}
		for c, rate := range st.trace.AcceptRates() {
			b.logger().Debug("chain finished", log.ChainKey, c, log.AcceptRateKey, rate)
		}
		for j, r := range st.trace.RHat() {
			if r > rHatWarn {
				errors.Warn(errors.NewConvergenceWarning("mcmc", b.nsamplesFit,
					fmt.Sprintf("r_hat of coefficient %d is %.3f", j, r)))
			}
		}
	} else {
		fit, err := runADVI(post, b.adviIterations, b.adviLearningRate, rand.New(rand.NewPCG(seed, 0)))
		if err != nil {
			return errors.WithStack(err)
		}
		draws := fit.sample(b.nsamplesFit, rand.NewPCG(seed, 1))
		st.trace = newTrace([][][]float64{draws}, 0, nil)
		st.elbo = fit.elbo
	}

	b.state.SetFitted(st, p, n)
	b.logger().Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.DrawsKey, st.trace.Len(),
		log.RandomSeedKey, b.randomState,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// positive returns the posterior predictive mean of P(class 1) per row.
// The draw selection is reseeded from random_state on every call.
func (b *BayesianLogistic) positive(op string, X mat.Matrix) ([]float64, error) {
	st, nFeatures, err := b.state.Fitted(modelName, op)
	if err != nil {
		return nil, err
	}
	Xd, err := model.CheckNFeatures(modelName+"."+op, X, nFeatures)
	if err != nil {
		return nil, err
	}
	return PosteriorPredictive(Xd, st.trace, b.nsamplesPredict, rand.NewPCG(uint64(b.randomState), 0x5eed))
}

// DecisionFunction returns the posterior predictive mean of P(class 1) as an
// n×1 matrix. Values lie in [0, 1].
func (b *BayesianLogistic) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	p, err := b.positive("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	return model.ColumnVector(p), nil
}

// Predict returns 1 where the posterior predictive mean exceeds 0.5.
func (b *BayesianLogistic) Predict(X mat.Matrix) (mat.Matrix, error) {
	p, err := b.positive("Predict", X)
	if err != nil {
		return nil, err
	}
	return model.Threshold(p, 0.5), nil
}

// PredictProba returns [1-p, p] with p the posterior predictive mean.
func (b *BayesianLogistic) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	p, err := b.positive("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return model.ProbaFromPositive(p), nil
}

// Score returns the mean accuracy on X, y.
func (b *BayesianLogistic) Score(X, y mat.Matrix) (float64, error) {
	return model.MeanAccuracy(modelName+".Score", b, X, y)
}

// Trace returns the posterior draws of the last fit.
func (b *BayesianLogistic) Trace() (*Trace, error) {
	st, _, err := b.state.Fitted(modelName, "Trace")
	if err != nil {
		return nil, err
	}
	return st.trace, nil
}

// ELBO returns the per-iteration ELBO estimates of the last ADVI fit, or nil
// after an MCMC fit.
func (b *BayesianLogistic) ELBO() ([]float64, error) {
	st, _, err := b.state.Fitted(modelName, "ELBO")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.elbo...), nil
}

// Classes returns the class labels.
func (b *BayesianLogistic) Classes() []int {
	return append([]int(nil), model.BinaryClasses...)
}

// GetParams returns the hyperparameters.
func (b *BayesianLogistic) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"featuresSd":         b.featuresSd,
		"nsamplesFit":        b.nsamplesFit,
		"nsamplesPredict":    b.nsamplesPredict,
		"mcmc":               b.mcmc,
		"nsampleTune":        b.nsampleTune,
		"discardTuned":       b.discardTuned,
		"samplerStep":        b.samplerStep,
		"samplerInit":        b.samplerInit,
		"chains":             b.chains,
		"advi_iterations":    b.adviIterations,
		"advi_learning_rate": b.adviLearningRate,
		"random_state":       b.randomState,
	}
}

// SetParams sets hyperparameters. Values are checked at Fit.
func (b *BayesianLogistic) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "featuresSd":
			b.featuresSd, err = model.ParamFloat(key, value)
		case "nsamplesFit":
			b.nsamplesFit, err = model.ParamInt(key, value)
		case "nsamplesPredict":
			b.nsamplesPredict, err = model.ParamInt(key, value)
		case "mcmc":
			b.mcmc, err = model.ParamBool(key, value)
		case "nsampleTune":
			b.nsampleTune, err = model.ParamInt(key, value)
		case "discardTuned":
			b.discardTuned, err = model.ParamBool(key, value)
		case "samplerStep":
			b.samplerStep, err = model.ParamString(key, value)
		case "samplerInit":
			b.samplerInit, err = model.ParamString(key, value)
		case "chains":
			b.chains, err = model.ParamInt(key, value)
		case "advi_iterations":
			b.adviIterations, err = model.ParamInt(key, value)
		case "advi_learning_rate":
			b.adviLearningRate, err = model.ParamFloat(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			b.randomState = int64(seed)
		default:
			return model.UnknownParam(modelName, key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (b *BayesianLogistic) Clone() model.BinaryClassifier {
	c := NewBayesianLogistic()
	_ = c.SetParams(b.GetParams())
	return c
}
