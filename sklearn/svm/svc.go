// Package svm implements a kernel support vector classifier solved by SMO.
package svm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

// plattFolds is the number of CV folds used for Platt scaling.
const plattFolds = 5

var _ model.BinaryClassifier = (*SVC)(nil)

type svcState struct {
	kernel         kernel
	supportVectors *mat.Dense
	support        []int
	dualCoef       []float64 // α_i·y_i
	intercept      float64
	nIter          int

	// Platt scaling: P(1|f) = 1 / (1 + exp(A·f + B))
	hasProba bool
	plattA   float64
	plattB   float64
}

// SVC is a C-support vector classifier with labels {0, 1}.
type SVC struct {
	state *model.StateManager[svcState]
	id    string
	name  string

	C           float64
	kernel      string
	degree      int
	gamma       interface{} // "scale", "auto" or float64
	coef0       float64
	tol         float64
	maxIter     int
	probability bool
	randomState int64
}

// SVCOption is a functional option for SVC.
type SVCOption func(*SVC)

// NewSVC creates an SVC with the given options.
func NewSVC(opts ...SVCOption) *SVC {
	return newSVC("SVC", opts...)
}

func newSVC(name string, opts ...SVCOption) *SVC {
	s := &SVC{
		state:       model.NewStateManager[svcState](),
		id:          uuid.NewString(),
		name:        name,
		C:           1.0,
		kernel:      KernelRBF,
		degree:      3,
		gamma:       GammaScale,
		coef0:       0,
		tol:         1e-3,
		maxIter:     -1,
		probability: false,
		randomState: 0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithC sets the regularization parameter.
func WithC(c float64) SVCOption {
	return func(s *SVC) { s.C = c }
}

// WithKernel sets the kernel: "linear", "poly", "rbf" or "sigmoid".
func WithKernel(kernel string) SVCOption {
	return func(s *SVC) { s.kernel = kernel }
}

// WithDegree sets the polynomial kernel degree.
func WithDegree(degree int) SVCOption {
	return func(s *SVC) { s.degree = degree }
}

// WithGamma sets a numeric kernel coefficient.
func WithGamma(gamma float64) SVCOption {
	return func(s *SVC) { s.gamma = gamma }
}

// WithGammaRule sets the kernel coefficient rule: "scale" or "auto".
func WithGammaRule(rule string) SVCOption {
	return func(s *SVC) { s.gamma = rule }
}

// WithCoef0 sets the independent term of the poly and sigmoid kernels.
func WithCoef0(coef0 float64) SVCOption {
	return func(s *SVC) { s.coef0 = coef0 }
}

// WithTol sets the stopping tolerance on the maximal KKT violation.
func WithTol(tol float64) SVCOption {
	return func(s *SVC) { s.tol = tol }
}

// WithMaxIter limits SMO iterations; -1 means no limit.
func WithMaxIter(n int) SVCOption {
	return func(s *SVC) { s.maxIter = n }
}

// WithProbability enables Platt scaling in Fit.
func WithProbability(enabled bool) SVCOption {
	return func(s *SVC) { s.probability = enabled }
}

// WithRandomState seeds the cross-validation split used by Platt scaling.
func WithRandomState(seed int64) SVCOption {
	return func(s *SVC) { s.randomState = seed }
}

func (s *SVC) logger() log.Logger {
	return log.GetLoggerWithName("svm").With(log.ModelNameKey, s.name, log.EstimatorIDKey, s.id)
}

func (s *SVC) validate() error {
	if !(s.C > 0) {
		return errors.NewValidationError("C", "must be > 0", s.C)
	}
	if !(s.tol > 0) {
		return errors.NewValidationError("tol", "must be > 0", s.tol)
	}
	if s.maxIter == 0 || s.maxIter < -1 {
		return errors.NewValidationError("max_iter", "must be -1 or >= 1", s.maxIter)
	}
	return nil
}

// signs maps {0, 1} labels to {-1, +1}.
func signs(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = 2*v - 1
	}
	return out
}

// train solves the dual problem on X, ys ({-1, +1}).
func (s *SVC) train(X *mat.Dense, ys []float64, k kernel) (*svcState, error) {
	K := k.gram(X, X)
	res := solveSMO(K, ys, s.C, s.tol, s.maxIter)
	if !res.converged {
		errors.Warn(errors.NewConvergenceWarning("smo", res.nIter, "maximal KKT violation did not fall below tol"))
	}
	if err := errors.CheckNumericalStability("smo", res.alpha, res.nIter); err != nil {
		return nil, err
	}

	var support []int
	for i, a := range res.alpha {
		if a > 0 {
			support = append(support, i)
		}
	}
	_, p := X.Dims()
	st := &svcState{
		kernel:    k,
		support:   support,
		dualCoef:  make([]float64, len(support)),
		intercept: res.b,
		nIter:     res.nIter,
	}
	if len(support) > 0 {
		st.supportVectors = mat.NewDense(len(support), p, nil)
		for r, i := range support {
			st.supportVectors.SetRow(r, X.RawRowView(i))
			st.dualCoef[r] = res.alpha[i] * ys[i]
		}
	}
	return st, nil
}

// decision computes Σ α_i y_i k(sv_i, x) + b for every row of X.
func (st *svcState) decision(X *mat.Dense) []float64 {
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = st.intercept
	}
	if st.supportVectors == nil {
		return out
	}
	K := st.kernel.gram(X, st.supportVectors)
	var v mat.VecDense
	v.MulVec(K, mat.NewVecDense(len(st.dualCoef), st.dualCoef))
	for i := range out {
		out[i] += v.AtVec(i)
	}
	return out
}

// Fit trains the classifier. Any previous fit is discarded first.
func (s *SVC) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, s.name+".Fit")
	op := s.name + ".Fit"

	s.state.Reset()
	Xd, yv, err := model.CheckXy(op, X, y)
	if err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	n, p := Xd.Dims()
	k, err := newKernel(s.kernel, s.gamma, s.degree, s.coef0, Xd)
	if err != nil {
		return err
	}

	start := time.Now()
	ys := signs(yv)
	st, err := s.train(Xd, ys, k)
	if err != nil {
		return errors.WithStack(err)
	}
	if s.probability {
		if st.plattA, st.plattB, err = s.platt(Xd, ys, k); err != nil {
			return errors.WithStack(err)
		}
		st.hasProba = true
	}
	s.state.SetFitted(st, p, n)

	s.logger().Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.SupportVectorsKey, len(st.support),
		log.IterationKey, st.nIter,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// platt fits the sigmoid on cross-validated decision values
// (Platt 2000, with the targets of Lin, Lin and Weng 2007).
func (s *SVC) platt(X *mat.Dense, ys []float64, k kernel) (float64, float64, error) {
	n, p := X.Dims()
	folds := plattFolds
	if n < folds {
		folds = n
	}
	rng := rand.New(rand.NewPCG(uint64(s.randomState), 0x91a77))
	perm := rng.Perm(n)

	dec := make([]float64, n)
	for f := 0; f < folds; f++ {
		var trainIdx, testIdx []int
		for pos, i := range perm {
			if pos%folds == f {
				testIdx = append(testIdx, i)
			} else {
				trainIdx = append(trainIdx, i)
			}
		}
		Xtr := mat.NewDense(len(trainIdx), p, nil)
		ytr := make([]float64, len(trainIdx))
		nPos := 0
		for r, i := range trainIdx {
			Xtr.SetRow(r, X.RawRowView(i))
			ytr[r] = ys[i]
			if ys[i] > 0 {
				nPos++
			}
		}
		// a fold with a single class predicts that class's sign
		if nPos == 0 || nPos == len(trainIdx) {
			v := -1.0
			if nPos > 0 {
				v = 1
			}
			for _, i := range testIdx {
				dec[i] = v
			}
			continue
		}
		st, err := s.train(Xtr, ytr, k)
		if err != nil {
			return 0, 0, err
		}
		Xte := mat.NewDense(len(testIdx), p, nil)
		for r, i := range testIdx {
			Xte.SetRow(r, X.RawRowView(i))
		}
		for r, v := range st.decision(Xte) {
			dec[testIdx[r]] = v
		}
	}
	return fitSigmoid(dec, ys)
}

// fitSigmoid minimizes the regularized cross-entropy of
// P(1|f) = 1 / (1 + exp(A·f + B)) with L-BFGS.
func fitSigmoid(dec, ys []float64) (float64, float64, error) {
	var nPos, nNeg float64
	for _, v := range ys {
		if v > 0 {
			nPos++
		} else {
			nNeg++
		}
	}
	hi := (nPos + 1) / (nPos + 2)
	lo := 1 / (nNeg + 2)
	target := make([]float64, len(ys))
	for i, v := range ys {
		if v > 0 {
			target[i] = hi
		} else {
			target[i] = lo
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			var f float64
			for i, d := range dec {
				z := x[0]*d + x[1]
				f += target[i]*errors.Softplus(z) + (1-target[i])*errors.Softplus(-z)
			}
			return f
		},
		Grad: func(grad, x []float64) {
			grad[0], grad[1] = 0, 0
			for i, d := range dec {
				z := x[0]*d + x[1]
				g := model.Sigmoid(z) - (1 - target[i])
				grad[0] += g * d
				grad[1] += g
			}
		},
	}
	x0 := []float64{0, math.Log((nNeg + 1) / (nPos + 1))}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.LBFGS{})
	if result == nil {
		return 0, 0, errors.Wrap(err, "sigmoid fit")
	}
	if err := errors.CheckNumericalStability("platt", result.X, result.Stats.MajorIterations); err != nil {
		return 0, 0, err
	}
	return result.X[0], result.X[1], nil
}

func (s *SVC) decisionValues(op string, X mat.Matrix) (*svcState, []float64, error) {
	st, nFeatures, err := s.state.Fitted(s.name, op)
	if err != nil {
		return nil, nil, err
	}
	Xd, err := model.CheckNFeatures(s.name+"."+op, X, nFeatures)
	if err != nil {
		return nil, nil, err
	}
	return st, st.decision(Xd), nil
}

// DecisionFunction returns Σ α_i y_i k(sv_i, x) + b as an n×1 matrix.
// Positive values mean class 1.
func (s *SVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	_, d, err := s.decisionValues("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	return model.ColumnVector(d), nil
}

// Predict returns 1 where the decision value is positive.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	_, d, err := s.decisionValues("Predict", X)
	if err != nil {
		return nil, err
	}
	return model.Threshold(d, 0), nil
}

// PredictProba returns Platt-scaled probabilities. It requires probability=true at Fit.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	st, d, err := s.decisionValues("PredictProba", X)
	if err != nil {
		return nil, err
	}
	if !st.hasProba {
		return nil, errors.NewModelError(s.name+".PredictProba", "probability=false", errors.ErrProbabilityDisabled)
	}
	p := make([]float64, len(d))
	for i, v := range d {
		p[i] = model.Sigmoid(-(st.plattA*v + st.plattB))
	}
	return model.ProbaFromPositive(p), nil
}

// Score returns the mean accuracy on X, y.
func (s *SVC) Score(X, y mat.Matrix) (float64, error) {
	return model.MeanAccuracy(s.name+".Score", s, X, y)
}

// SupportVectors returns a copy of the support vectors.
func (s *SVC) SupportVectors() (*mat.Dense, error) {
	st, _, err := s.state.Fitted(s.name, "SupportVectors")
	if err != nil {
		return nil, err
	}
	if st.supportVectors == nil {
		return &mat.Dense{}, nil
	}
	return mat.DenseCopyOf(st.supportVectors), nil
}

// Support returns the training indices of the support vectors.
func (s *SVC) Support() ([]int, error) {
	st, _, err := s.state.Fitted(s.name, "Support")
	if err != nil {
		return nil, err
	}
	return append([]int(nil), st.support...), nil
}

// DualCoef returns α_i·y_i for each support vector.
func (s *SVC) DualCoef() ([]float64, error) {
	st, _, err := s.state.Fitted(s.name, "DualCoef")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.dualCoef...), nil
}

// Intercept returns the bias b.
func (s *SVC) Intercept() (float64, error) {
	st, _, err := s.state.Fitted(s.name, "Intercept")
	if err != nil {
		return 0, err
	}
	return st.intercept, nil
}

// Classes returns the class labels.
func (s *SVC) Classes() []int {
	return append([]int(nil), model.BinaryClasses...)
}

// GetParams returns the hyperparameters.
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":            s.C,
		"kernel":       s.kernel,
		"degree":       s.degree,
		"gamma":        s.gamma,
		"coef0":        s.coef0,
		"tol":          s.tol,
		"max_iter":     s.maxIter,
		"probability":  s.probability,
		"random_state": s.randomState,
	}
}

// SetParams sets hyperparameters. Values are checked at Fit.
func (s *SVC) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "C":
			s.C, err = model.ParamFloat(key, value)
		case "kernel":
			s.kernel, err = model.ParamString(key, value)
		case "degree":
			s.degree, err = model.ParamInt(key, value)
		case "gamma":
			if str, ok := value.(string); ok {
				s.gamma = str
			} else {
				var g float64
				g, err = model.ParamFloat(key, value)
				s.gamma = g
			}
		case "coef0":
			s.coef0, err = model.ParamFloat(key, value)
		case "tol":
			s.tol, err = model.ParamFloat(key, value)
		case "max_iter":
			s.maxIter, err = model.ParamInt(key, value)
		case "probability":
			s.probability, err = model.ParamBool(key, value)
		case "random_state":
			var seed int
			seed, err = model.ParamInt(key, value)
			s.randomState = int64(seed)
		default:
			return model.UnknownParam(s.name, key)
		}
		if err != nil {
			return fmt.Errorf("%s.SetParams: %w", s.name, err)
		}
	}
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (s *SVC) Clone() model.BinaryClassifier {
	c := NewSVC()
	_ = c.SetParams(s.GetParams())
	return c
}
