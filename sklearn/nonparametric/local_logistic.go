package nonparametric

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

const modelName = "LocalLogistic"

var _ model.BinaryClassifier = (*LocalLogistic)(nil)

type localState struct {
	reg    *KernelReg
	target []float64
}

// LocalLogistic classifies by kernel regression on labels recoded to {-1, +1}.
//
// The regression surface is used as a score: positive means class 1. This is
// kernel regression of a recoded label treated as continuous, not an
// iteratively reweighted local logistic fit, so PredictProba is only a
// monotone squashing of the score.
type LocalLogistic struct {
	state *model.StateManager[localState]
	id    string

	regType string
	bw      Bandwidth
}

// LocalLogisticOption is a functional option for LocalLogistic.
type LocalLogisticOption func(*LocalLogistic)

// NewLocalLogistic creates a LocalLogistic. Defaults: local linear, cv_ls bandwidth.
func NewLocalLogistic(opts ...LocalLogisticOption) *LocalLogistic {
	l := &LocalLogistic{
		state:   model.NewStateManager[localState](),
		id:      uuid.NewString(),
		regType: LocalLinear,
		bw:      BandwidthRule(RuleCVLS),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithRegType sets "ll" (local linear) or "lc" (local constant).
func WithRegType(regType string) LocalLogisticOption {
	return func(l *LocalLogistic) { l.regType = regType }
}

// WithBandwidth sets explicit bandwidths; one value applies to every feature.
func WithBandwidth(bw ...float64) LocalLogisticOption {
	return func(l *LocalLogistic) { l.bw = FixedBandwidth(bw...) }
}

// WithBandwidthRule sets the bandwidth selection rule.
func WithBandwidthRule(rule string) LocalLogisticOption {
	return func(l *LocalLogistic) { l.bw = BandwidthRule(rule) }
}

func (l *LocalLogistic) logger() log.Logger {
	return log.GetLoggerWithName("nonparametric").With(log.ModelNameKey, modelName, log.EstimatorIDKey, l.id)
}

// Fit recodes y to {-1, +1} and fits the kernel regressor on it.
func (l *LocalLogistic) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LocalLogistic.Fit")
	const op = "LocalLogistic.Fit"

	l.state.Reset()
	Xd, yv, err := model.CheckXy(op, X, y)
	if err != nil {
		return err
	}
	n, p := Xd.Dims()

	target := make([]float64, n)
	for i, v := range yv {
		target[i] = 2*v - 1
	}

	start := time.Now()
	reg, err := NewKernelReg(target, Xd, l.regType, l.bw)
	if err != nil {
		return err
	}
	l.state.SetFitted(&localState{reg: reg, target: target}, p, n)

	l.logger().Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.BandwidthKey, reg.Bandwidth(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (l *LocalLogistic) scores(op string, X mat.Matrix) ([]float64, error) {
	st, nFeatures, err := l.state.Fitted(modelName, op)
	if err != nil {
		return nil, err
	}
	Xd, err := model.CheckNFeatures(modelName+"."+op, X, nFeatures)
	if err != nil {
		return nil, err
	}
	mean, _, err := st.reg.Fit(Xd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return mean, nil
}

// DecisionFunction returns the regression estimate on the {-1, +1} scale as an n×1 matrix.
// Far outside the training range the local linear estimate is the
// minimum-norm least squares solution and tends to 0 (P(1) ≈ 0.5).
func (l *LocalLogistic) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	s, err := l.scores("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	return model.ColumnVector(s), nil
}

// Predict returns 1 where the score is positive.
func (l *LocalLogistic) Predict(X mat.Matrix) (mat.Matrix, error) {
	s, err := l.scores("Predict", X)
	if err != nil {
		return nil, err
	}
	return model.Threshold(s, 0), nil
}

// PredictProba returns sigmoid(score) as P(class 1). The scores are not
// log-odds, so these are not calibrated probabilities.
func (l *LocalLogistic) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	s, err := l.scores("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return model.SigmoidProba(s), nil
}

// Score returns the mean accuracy on X, y.
func (l *LocalLogistic) Score(X, y mat.Matrix) (float64, error) {
	return model.MeanAccuracy(modelName+".Score", l, X, y)
}

// MarginalEffects returns ∂score/∂x_j at each row of X (n×p).
func (l *LocalLogistic) MarginalEffects(X mat.Matrix) (*mat.Dense, error) {
	st, nFeatures, err := l.state.Fitted(modelName, "MarginalEffects")
	if err != nil {
		return nil, err
	}
	Xd, err := model.CheckNFeatures(modelName+".MarginalEffects", X, nFeatures)
	if err != nil {
		return nil, err
	}
	_, mfx, err := st.reg.Fit(Xd)
	return mfx, err
}

// Target returns the recoded training target in {-1, +1}.
func (l *LocalLogistic) Target() ([]float64, error) {
	st, _, err := l.state.Fitted(modelName, "Target")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.target...), nil
}

// Regressor returns the fitted kernel regressor.
func (l *LocalLogistic) Regressor() (*KernelReg, error) {
	st, _, err := l.state.Fitted(modelName, "Regressor")
	if err != nil {
		return nil, err
	}
	return st.reg, nil
}

// Classes returns the class labels.
func (l *LocalLogistic) Classes() []int {
	return append([]int(nil), model.BinaryClasses...)
}

// GetParams returns the hyperparameters. "bw" is the rule name, a single
// float or a slice of floats.
func (l *LocalLogistic) GetParams() map[string]interface{} {
	var bw interface{}
	switch {
	case l.bw.Values == nil:
		bw = l.bw.Rule
	case len(l.bw.Values) == 1:
		bw = l.bw.Values[0]
	default:
		bw = append([]float64(nil), l.bw.Values...)
	}
	return map[string]interface{}{
		"reg_type": l.regType,
		"bw":       bw,
	}
}

// SetParams sets hyperparameters. Values are checked at Fit.
func (l *LocalLogistic) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "reg_type":
			s, err := model.ParamString(key, value)
			if err != nil {
				return err
			}
			l.regType = s
		case "bw":
			if s, ok := value.(string); ok {
				l.bw = BandwidthRule(s)
				continue
			}
			if f, err := model.ParamFloat(key, value); err == nil {
				l.bw = FixedBandwidth(f)
				continue
			}
			vals, err := model.ParamFloatSlice(key, value)
			if err != nil {
				return err
			}
			l.bw = FixedBandwidth(vals...)
		default:
			return model.UnknownParam(modelName, key)
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (l *LocalLogistic) Clone() model.BinaryClassifier {
	c := NewLocalLogistic()
	_ = c.SetParams(l.GetParams())
	return c
}
