// Package gam implements an additive logistic classifier: one penalized
// B-spline (or indicator) term per feature, fitted by penalized IRLS.
package gam

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

const modelName = "LogisticGAM"

var _ model.BinaryClassifier = (*LogisticGAM)(nil)

// gamState is the fitted state.
type gamState struct {
	terms     []term
	intercept bool
	nCols     int
	coef      []float64
	logs      map[string][]float64
	nIter     int
}

// LogisticGAM is a binary classifier built on an additive logistic model.
//
// Each feature gets a penalized B-spline term (an indicator term for
// categorical features) and P(y=1|x) is modeled directly through the logit link.
type LogisticGAM struct {
	state *model.StateManager[gamState]
	id    string

	// Hyperparameters
	lam          []float64 // smoothing strength; one value is shared by all features
	maxIter      int
	nSplines     int
	splineOrder  int
	penalties    string   // "auto", "derivative", "l2", "none"
	dtype        []string // "auto", "numerical", "categorical"
	tol          float64
	callbacks    []string // "deviance", "diffs", "accuracy"
	fitIntercept bool
	fitLinear    bool
	fitSplines   bool
	constraints  []string // nil or "convex", "concave", "monotonic_inc", "monotonic_dec"
}

// Option is a functional option for LogisticGAM.
type Option func(*LogisticGAM)

// NewLogisticGAM creates a new LogisticGAM with the given options.
func NewLogisticGAM(opts ...Option) *LogisticGAM {
	g := &LogisticGAM{
		state:        model.NewStateManager[gamState](),
		id:           uuid.NewString(),
		lam:          []float64{0.6},
		maxIter:      100,
		nSplines:     25,
		splineOrder:  3,
		penalties:    penaltyAuto,
		dtype:        []string{"auto"},
		tol:          1e-4,
		callbacks:    []string{callbackDeviance, callbackDiffs, callbackAccuracy},
		fitIntercept: true,
		fitLinear:    false,
		fitSplines:   true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithLam sets one smoothing strength for every feature.
func WithLam(lam float64) Option {
	return func(g *LogisticGAM) { g.lam = []float64{lam} }
}

// WithLams sets a smoothing strength per feature.
func WithLams(lams []float64) Option {
	return func(g *LogisticGAM) { g.lam = append([]float64(nil), lams...) }
}

// WithMaxIter sets the maximum number of PIRLS iterations.
func WithMaxIter(n int) Option {
	return func(g *LogisticGAM) { g.maxIter = n }
}

// WithNSplines sets the number of basis functions per numerical feature.
func WithNSplines(n int) Option {
	return func(g *LogisticGAM) { g.nSplines = n }
}

// WithSplineOrder sets the polynomial degree of the splines.
func WithSplineOrder(order int) Option {
	return func(g *LogisticGAM) { g.splineOrder = order }
}

// WithPenalties sets the smoothing penalty type.
func WithPenalties(p string) Option {
	return func(g *LogisticGAM) { g.penalties = p }
}

// WithDtype sets the feature types, one value for all features or one per feature.
func WithDtype(dtype ...string) Option {
	return func(g *LogisticGAM) { g.dtype = append([]string(nil), dtype...) }
}

// WithTol sets the convergence tolerance.
func WithTol(tol float64) Option {
	return func(g *LogisticGAM) { g.tol = tol }
}

// WithCallbacks selects the per-iteration values recorded in Logs.
func WithCallbacks(callbacks ...string) Option {
	return func(g *LogisticGAM) { g.callbacks = append([]string(nil), callbacks...) }
}

// WithFitIntercept sets whether to fit an intercept.
func WithFitIntercept(fit bool) Option {
	return func(g *LogisticGAM) { g.fitIntercept = fit }
}

// WithFitLinear adds a linear column for each numerical feature.
func WithFitLinear(fit bool) Option {
	return func(g *LogisticGAM) { g.fitLinear = fit }
}

// WithFitSplines sets whether numerical features get a spline basis.
func WithFitSplines(fit bool) Option {
	return func(g *LogisticGAM) { g.fitSplines = fit }
}

// WithConstraints sets shape constraints, one value for all features or one per feature.
// An empty string leaves a feature unconstrained.
func WithConstraints(constraints ...string) Option {
	return func(g *LogisticGAM) { g.constraints = append([]string(nil), constraints...) }
}

func (g *LogisticGAM) logger() log.Logger {
	return log.GetLoggerWithName("gam").With(log.ModelNameKey, modelName, log.EstimatorIDKey, g.id)
}

// Fit trains the model. Any previous fit is discarded first.
func (g *LogisticGAM) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticGAM.Fit")
	const op = "LogisticGAM.Fit"

	g.state.Reset()
	Xd, yv, err := model.CheckXy(op, X, y)
	if err != nil {
		return err
	}
	n, p := Xd.Dims()

	cfg, err := g.resolve(p)
	if err != nil {
		return err
	}

	start := time.Now()
	terms := make([]term, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, Xd)
		if cfg.dtypes[j] == dtypeCategorical {
			terms[j] = newCategoricalTerm(j, col)
		} else {
			terms[j] = newNumericalTerm(j, col, g.nSplines, g.splineOrder, g.fitSplines, g.fitLinear)
		}
	}
	nCols := layout(terms, g.fitIntercept)
	if nCols == 0 {
		return errors.NewValidationError("fit_splines", "model has no terms: enable fit_intercept, fit_splines or fit_linear", false)
	}

	res, err := pirls(pirlsProblem{
		design:      designMatrix(Xd, terms, g.fitIntercept, nCols),
		y:           yv,
		terms:       terms,
		lams:        cfg.lams,
		penalty:     g.penalties,
		constraints: cfg.constraints,
		intercept:   g.fitIntercept,
		maxIter:     g.maxIter,
		tol:         g.tol,
		callbacks:   g.callbacks,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if !res.converged {
		errors.Warn(errors.NewConvergenceWarning("pirls", res.nIter, fmt.Sprintf("reached max_iter=%d before the coefficient change fell below tol=%g", g.maxIter, g.tol)))
	}

	g.state.SetFitted(&gamState{
		terms:     terms,
		intercept: g.fitIntercept,
		nCols:     nCols,
		coef:      res.coef,
		logs:      res.logs,
		nIter:     res.nIter,
	}, p, n)

	g.logger().Debug("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.IterationKey, res.nIter,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

type resolved struct {
	lams        []float64
	dtypes      []string
	constraints []string
}

// resolve validates the hyperparameters and broadcasts per-feature values to p features.
func (g *LogisticGAM) resolve(p int) (*resolved, error) {
	if g.maxIter < 1 {
		return nil, errors.NewValidationError("max_iter", "must be >= 1", g.maxIter)
	}
	if g.splineOrder < 0 {
		return nil, errors.NewValidationError("spline_order", "must be >= 0", g.splineOrder)
	}
	if g.nSplines <= g.splineOrder {
		return nil, errors.NewValidationError("n_splines", fmt.Sprintf("must be > spline_order (%d)", g.splineOrder), g.nSplines)
	}
	if g.tol <= 0 {
		return nil, errors.NewValidationError("tol", "must be > 0", g.tol)
	}
	switch g.penalties {
	case penaltyAuto, penaltyDerivative, penaltyL2, penaltyNone:
	default:
		return nil, errors.NewValidationError("penalties", "must be one of auto, derivative, l2, none", g.penalties)
	}
	for _, cb := range g.callbacks {
		switch cb {
		case callbackDeviance, callbackDiffs, callbackAccuracy:
		default:
			return nil, errors.NewValidationError("callbacks", "must be deviance, diffs or accuracy", cb)
		}
	}

	out := &resolved{}
	switch len(g.lam) {
	case 1:
		out.lams = make([]float64, p)
		for j := range out.lams {
			out.lams[j] = g.lam[0]
		}
	case p:
		out.lams = append([]float64(nil), g.lam...)
	default:
		return nil, errors.NewValidationError("lam", fmt.Sprintf("expected 1 or %d values", p), g.lam)
	}
	for _, l := range out.lams {
		if l < 0 {
			return nil, errors.NewValidationError("lam", "must be >= 0", g.lam)
		}
	}

	var err error
	if out.dtypes, err = broadcast("dtype", g.dtype, p, "auto"); err != nil {
		return nil, err
	}
	for j, d := range out.dtypes {
		switch d {
		case "auto", "":
			out.dtypes[j] = dtypeNumerical
		case dtypeNumerical, dtypeCategorical:
		default:
			return nil, errors.NewValidationError("dtype", "must be auto, numerical or categorical", d)
		}
	}

	if out.constraints, err = broadcast("constraints", g.constraints, p, ""); err != nil {
		return nil, err
	}
	for _, c := range out.constraints {
		switch c {
		case "", constraintConvex, constraintConcave, constraintMonotonicInc, constraintMonotonicDec:
		default:
			return nil, errors.NewValidationError("constraints", "must be convex, concave, monotonic_inc or monotonic_dec", c)
		}
	}
	return out, nil
}

// broadcast expands a scalar-or-per-feature setting to p values.
func broadcast(name string, values []string, p int, fallback string) ([]string, error) {
	out := make([]string, p)
	switch len(values) {
	case 0:
		for j := range out {
			out[j] = fallback
		}
	case 1:
		for j := range out {
			out[j] = values[0]
		}
	case p:
		copy(out, values)
	default:
		return nil, errors.NewValidationError(name, fmt.Sprintf("expected 1 or %d values", p), values)
	}
	return out, nil
}

// linearPredictor returns the log-odds for each row of X.
func (g *LogisticGAM) linearPredictor(op string, X mat.Matrix) ([]float64, error) {
	st, nFeatures, err := g.state.Fitted(modelName, op)
	if err != nil {
		return nil, err
	}
	Xd, err := model.CheckNFeatures(modelName+"."+op, X, nFeatures)
	if err != nil {
		return nil, err
	}
	return linearPredictor(designMatrix(Xd, st.terms, st.intercept, st.nCols), st.coef), nil
}

// DecisionFunction returns the linear predictor (log-odds of class 1) as an n×1 matrix.
func (g *LogisticGAM) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	eta, err := g.linearPredictor("DecisionFunction", X)
	if err != nil {
		return nil, err
	}
	return model.ColumnVector(eta), nil
}

// PredictProba returns the model's native probabilities as an n×2 matrix.
func (g *LogisticGAM) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	eta, err := g.linearPredictor("PredictProba", X)
	if err != nil {
		return nil, err
	}
	return model.SigmoidProba(eta), nil
}

// Predict returns 1 where P(class 1) > 0.5.
func (g *LogisticGAM) Predict(X mat.Matrix) (mat.Matrix, error) {
	eta, err := g.linearPredictor("Predict", X)
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(eta))
	for i, e := range eta {
		p[i] = model.Sigmoid(e)
	}
	return model.Threshold(p, 0.5), nil
}

// Score returns the mean accuracy on X, y.
func (g *LogisticGAM) Score(X, y mat.Matrix) (float64, error) {
	return model.MeanAccuracy(modelName+".Score", g, X, y)
}

// Deviance returns the binomial deviance of the fitted model on X, y.
func (g *LogisticGAM) Deviance(X, y mat.Matrix) (float64, error) {
	eta, err := g.linearPredictor("Deviance", X)
	if err != nil {
		return 0, err
	}
	yv, err := model.CheckTarget(modelName+".Deviance", y, len(eta))
	if err != nil {
		return 0, err
	}
	if err := model.CheckBinaryLabels(yv); err != nil {
		return 0, err
	}
	return binomialDeviance(yv, eta), nil
}

// PartialDependence returns the contribution of one feature's term to the
// log-odds for each row of X, without the intercept.
func (g *LogisticGAM) PartialDependence(feature int, X mat.Matrix) ([]float64, error) {
	st, nFeatures, err := g.state.Fitted(modelName, "PartialDependence")
	if err != nil {
		return nil, err
	}
	if feature < 0 || feature >= nFeatures {
		return nil, errors.NewValidationError("feature", fmt.Sprintf("must be in [0, %d)", nFeatures), feature)
	}
	Xd, err := model.CheckNFeatures(modelName+".PartialDependence", X, nFeatures)
	if err != nil {
		return nil, err
	}
	t := st.terms[feature]
	r, _ := Xd.Dims()
	row := make([]float64, st.nCols)
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		t.fill(Xd.At(i, feature), row)
		for k := t.offset; k < t.offset+t.width; k++ {
			out[i] += row[k] * st.coef[k]
		}
	}
	return out, nil
}

// Coefficients returns a copy of the fitted coefficients (intercept first when fitted).
func (g *LogisticGAM) Coefficients() ([]float64, error) {
	st, _, err := g.state.Fitted(modelName, "Coefficients")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.coef...), nil
}

// Logs returns the per-iteration values recorded by the enabled callbacks.
func (g *LogisticGAM) Logs() (map[string][]float64, error) {
	st, _, err := g.state.Fitted(modelName, "Logs")
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(st.logs))
	for k, v := range st.logs {
		out[k] = append([]float64(nil), v...)
	}
	return out, nil
}

// NIter returns the number of PIRLS iterations run by the last fit.
func (g *LogisticGAM) NIter() int {
	st, _, err := g.state.Fitted(modelName, "NIter")
	if err != nil {
		return 0
	}
	return st.nIter
}

// Classes returns the class labels.
func (g *LogisticGAM) Classes() []int {
	return append([]int(nil), model.BinaryClasses...)
}

// IsFitted reports whether Fit has completed successfully.
func (g *LogisticGAM) IsFitted() bool {
	return g.state.IsFitted()
}

// ID returns the estimator id assigned at construction.
func (g *LogisticGAM) ID() string {
	return g.id
}

// GetParams returns the hyperparameters.
func (g *LogisticGAM) GetParams() map[string]interface{} {
	params := map[string]interface{}{
		"max_iter":      g.maxIter,
		"n_splines":     g.nSplines,
		"spline_order":  g.splineOrder,
		"penalties":     g.penalties,
		"tol":           g.tol,
		"callbacks":     append([]string(nil), g.callbacks...),
		"fit_intercept": g.fitIntercept,
		"fit_linear":    g.fitLinear,
		"fit_splines":   g.fitSplines,
		"constraints":   nil,
	}
	if len(g.lam) == 1 {
		params["lam"] = g.lam[0]
	} else {
		params["lam"] = append([]float64(nil), g.lam...)
	}
	if len(g.dtype) == 1 {
		params["dtype"] = g.dtype[0]
	} else {
		params["dtype"] = append([]string(nil), g.dtype...)
	}
	switch len(g.constraints) {
	case 0:
	case 1:
		params["constraints"] = g.constraints[0]
	default:
		params["constraints"] = append([]string(nil), g.constraints...)
	}
	return params
}

// SetParams sets hyperparameters. Values are checked at Fit.
func (g *LogisticGAM) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "lam":
			if f, ferr := model.ParamFloat(key, value); ferr == nil {
				g.lam = []float64{f}
			} else {
				g.lam, err = model.ParamFloatSlice(key, value)
			}
		case "max_iter":
			g.maxIter, err = model.ParamInt(key, value)
		case "n_splines":
			g.nSplines, err = model.ParamInt(key, value)
		case "spline_order":
			g.splineOrder, err = model.ParamInt(key, value)
		case "penalties":
			g.penalties, err = model.ParamString(key, value)
		case "dtype":
			g.dtype, err = model.ParamStringSlice(key, value)
		case "tol":
			g.tol, err = model.ParamFloat(key, value)
		case "callbacks":
			g.callbacks, err = model.ParamStringSlice(key, value)
		case "fit_intercept":
			g.fitIntercept, err = model.ParamBool(key, value)
		case "fit_linear":
			g.fitLinear, err = model.ParamBool(key, value)
		case "fit_splines":
			g.fitSplines, err = model.ParamBool(key, value)
		case "constraints":
			g.constraints, err = model.ParamStringSlice(key, value)
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
func (g *LogisticGAM) Clone() model.BinaryClassifier {
	c := NewLogisticGAM()
	_ = c.SetParams(g.GetParams())
	return c
}
