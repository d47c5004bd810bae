// Package nonparametric provides Nadaraya-Watson style kernel regression
// (local constant and local linear) with data-driven bandwidth selection,
// and a binary classifier built on top of it.
package nonparametric

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/binclf/core/parallel"
	"github.com/YuminosukeSato/binclf/metrics"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// Estimator types.
const (
	LocalConstant = "lc"
	LocalLinear   = "ll"
)

// Bandwidth selection rules.
const (
	RuleCVLS            = "cv_ls"
	RuleAIC             = "aic"
	RuleNormalReference = "normal_reference"
)

const (
	// at most parallelThreshold points are processed sequentially
	parallelThreshold = 64

	// badObjective is returned for bandwidths that cannot be evaluated
	badObjective = 1e300

	// local designs with a condition number above maxCondition use the pseudo-inverse
	maxCondition = 1e14
)

// Bandwidth is either a selection rule or explicit per-feature values.
type Bandwidth struct {
	Rule   string
	Values []float64
}

// BandwidthRule selects the bandwidth with the named rule.
func BandwidthRule(rule string) Bandwidth { return Bandwidth{Rule: rule} }

// FixedBandwidth uses the given values. A single value applies to every feature.
func FixedBandwidth(values ...float64) Bandwidth {
	return Bandwidth{Values: append([]float64(nil), values...)}
}

// KernelReg is a kernel regression of a continuous endog on continuous exog
// variables with a Gaussian product kernel.
type KernelReg struct {
	endog   []float64
	exog    *mat.Dense
	regType string
	bw      []float64
}

// NewKernelReg validates the inputs and settles the bandwidth, running the
// selection rule when bw names one.
func NewKernelReg(endog []float64, exog mat.Matrix, regType string, bw Bandwidth) (*KernelReg, error) {
	if exog == nil {
		return nil, errors.NewValueError("KernelReg", "exog is nil")
	}
	n, q := exog.Dims()
	if n == 0 || q == 0 {
		return nil, errors.NewModelError("KernelReg", "empty data", errors.ErrEmptyData)
	}
	if len(endog) != n {
		return nil, errors.NewDimensionError("KernelReg", n, len(endog), 0)
	}
	switch regType {
	case LocalConstant, LocalLinear:
	default:
		return nil, errors.NewValidationError("reg_type", "must be lc or ll", regType)
	}

	k := &KernelReg{
		endog:   append([]float64(nil), endog...),
		exog:    mat.DenseCopyOf(exog),
		regType: regType,
	}

	if bw.Values != nil {
		vals, err := broadcastBandwidth(bw.Values, q)
		if err != nil {
			return nil, err
		}
		k.bw = vals
		return k, nil
	}

	switch bw.Rule {
	case RuleNormalReference:
		k.bw = k.normalReference()
	case RuleCVLS:
		k.bw = k.selectBandwidth(k.cvLS)
	case RuleAIC:
		k.bw = k.selectBandwidth(k.aicHurvich)
	default:
		return nil, errors.NewValidationError("bw", "must be cv_ls, aic, normal_reference or positive numbers", bw.Rule)
	}
	return k, nil
}

func broadcastBandwidth(values []float64, q int) ([]float64, error) {
	var out []float64
	switch len(values) {
	case 1:
		out = make([]float64, q)
		for j := range out {
			out[j] = values[0]
		}
	case q:
		out = append([]float64(nil), values...)
	default:
		return nil, errors.NewValidationError("bw", fmt.Sprintf("expected 1 or %d values", q), values)
	}
	for _, h := range out {
		if !(h > 0) || math.IsInf(h, 0) {
			return nil, errors.NewValidationError("bw", "bandwidths must be positive and finite", values)
		}
	}
	return out, nil
}

// Bandwidth returns the per-feature bandwidths in use.
func (k *KernelReg) Bandwidth() []float64 {
	return append([]float64(nil), k.bw...)
}

// normalReference is Scott's rule: 1.06·σ·n^(-1/(4+q)).
func (k *KernelReg) normalReference() []float64 {
	n, q := k.exog.Dims()
	bw := make([]float64, q)
	factor := 1.06 * math.Pow(float64(n), -1/(4+float64(q)))
	for j := range bw {
		sd := stat.StdDev(mat.Col(nil, j, k.exog), nil)
		if !(sd > 0) {
			sd = 1
		}
		bw[j] = factor * sd
	}
	return bw
}

// selectBandwidth minimizes objective over log-bandwidths with Nelder-Mead,
// starting from the normal reference rule.
func (k *KernelReg) selectBandwidth(objective func(bw []float64) float64) []float64 {
	start := k.normalReference()
	x0 := make([]float64, len(start))
	for j, h := range start {
		x0[j] = math.Log(h)
	}
	bw := make([]float64, len(x0))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for j, v := range x {
				bw[j] = math.Exp(v)
			}
			f := objective(bw)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return badObjective
			}
			return f
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 100 * (len(x0) + 1),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-6,
			Iterations: 25,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if result == nil || (err != nil && len(result.X) != len(x0)) {
		return start
	}
	if result.F >= objective(start) {
		return start
	}
	out := make([]float64, len(result.X))
	for j, v := range result.X {
		out[j] = math.Exp(v)
	}
	return out
}

// localFit is the estimate at one point.
type localFit struct {
	mean float64
	mfx  []float64
	// hat is the weight of training point self on itself (hat matrix diagonal)
	hat float64
}

// kernelWeights fills w with Gaussian product kernel weights of every
// training point around x. The weights are rescaled so the largest is 1;
// both estimators are invariant to that scale. skip is excluded (weight 0).
func (k *KernelReg) kernelWeights(x, bw []float64, skip int, w []float64) {
	n, q := k.exog.Dims()
	maxE := math.Inf(-1)
	for i := 0; i < n; i++ {
		if i == skip {
			w[i] = math.Inf(-1)
			continue
		}
		var e float64
		for j := 0; j < q; j++ {
			u := (k.exog.At(i, j) - x[j]) / bw[j]
			e -= 0.5 * u * u
		}
		w[i] = e
		if e > maxE {
			maxE = e
		}
	}
	for i := range w {
		w[i] = math.Exp(w[i] - maxE)
	}
}

// estimate computes the local fit at x. skip is left out (leave-one-out),
// self >= 0 additionally computes the hat value of that training point.
func (k *KernelReg) estimate(x, bw []float64, skip, self int) (localFit, error) {
	n, q := k.exog.Dims()
	w := make([]float64, n)
	k.kernelWeights(x, bw, skip, w)

	if k.regType == LocalConstant {
		var sw, swy float64
		dsw := make([]float64, q)
		dswy := make([]float64, q)
		for i := 0; i < n; i++ {
			if w[i] == 0 {
				continue
			}
			sw += w[i]
			swy += w[i] * k.endog[i]
			for j := 0; j < q; j++ {
				// ∂w_i/∂x_j = w_i (X_ij - x_j) / h_j²
				d := w[i] * (k.exog.At(i, j) - x[j]) / (bw[j] * bw[j])
				dsw[j] += d
				dswy[j] += d * k.endog[i]
			}
		}
		if sw == 0 {
			return localFit{}, errors.Wrap(errors.ErrSingularMatrix, "local constant: all kernel weights are zero")
		}
		fit := localFit{mean: swy / sw, mfx: make([]float64, q)}
		for j := range fit.mfx {
			fit.mfx[j] = (dswy[j]*sw - swy*dsw[j]) / (sw * sw)
		}
		if self >= 0 {
			fit.hat = w[self] / sw
		}
		return fit, nil
	}

	// local linear: weighted least squares on z_i = [1, X_i - x]
	d := q + 1
	A := mat.NewSymDense(d, nil)
	b := mat.NewVecDense(d, nil)
	z := make([]float64, d)
	for i := 0; i < n; i++ {
		if w[i] == 0 {
			continue
		}
		z[0] = 1
		for j := 0; j < q; j++ {
			z[j+1] = k.exog.At(i, j) - x[j]
		}
		for r := 0; r < d; r++ {
			b.SetVec(r, b.AtVec(r)+w[i]*z[r]*k.endog[i])
			for c := r; c < d; c++ {
				A.SetSym(r, c, A.At(r, c)+w[i]*z[r]*z[c])
			}
		}
	}

	solve, err := localSolver(A)
	if err != nil {
		return localFit{}, err
	}
	var beta mat.VecDense
	if err := solve(&beta, b); err != nil {
		return localFit{}, errors.Wrap(errors.ErrSingularMatrix, "local linear: solve")
	}
	fit := localFit{mean: beta.AtVec(0), mfx: make([]float64, q)}
	for j := range fit.mfx {
		fit.mfx[j] = beta.AtVec(j + 1)
	}
	if self >= 0 {
		e0 := mat.NewVecDense(d, nil)
		e0.SetVec(0, 1)
		var v mat.VecDense
		if err := solve(&v, e0); err != nil {
			return localFit{}, errors.Wrap(errors.ErrSingularMatrix, "local linear: hat value")
		}
		fit.hat = w[self] * v.AtVec(0)
	}
	return fit, nil
}

// localSolver returns a solver for the local design matrix A: Cholesky when
// its condition number is at most maxCondition, otherwise the minimum-norm
// solution through the pseudo-inverse (e.g. a far query where one point
// carries all the kernel weight).
func localSolver(A *mat.SymDense) (func(dst *mat.VecDense, b mat.Vector) error, error) {
	var chol mat.Cholesky
	if chol.Factorize(A) && chol.Cond() <= maxCondition {
		return chol.SolveVecTo, nil
	}
	inv, err := pinv(A)
	if err != nil {
		return nil, err
	}
	return func(dst *mat.VecDense, b mat.Vector) error {
		dst.MulVec(inv, b)
		return nil
	}, nil
}

// pinv returns V Σ⁺ Uᵀ, dropping singular values at or below s_max/maxCondition.
func pinv(A mat.Symmetric) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "local linear: svd")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	d := len(s)
	inv := mat.NewDense(d, d, nil)
	cut := s[0] / maxCondition
	for k, sk := range s {
		if sk == 0 || sk <= cut {
			continue
		}
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				inv.Set(i, j, inv.At(i, j)+v.At(i, k)*u.At(j, k)/sk)
			}
		}
	}
	return inv, nil
}

// inSample runs estimate at every training point in parallel.
func (k *KernelReg) inSample(bw []float64, leaveOneOut, hat bool) ([]localFit, error) {
	n, _ := k.exog.Dims()
	fits := make([]localFit, n)
	err := parallel.ParallelizeErr(context.Background(), n, parallelThreshold, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			skip, self := -1, -1
			if leaveOneOut {
				skip = i
			}
			if hat {
				self = i
			}
			fit, err := k.estimate(k.exog.RawRowView(i), bw, skip, self)
			if err != nil {
				return err
			}
			fits[i] = fit
		}
		return nil
	})
	return fits, err
}

// cvLS is the leave-one-out least squares criterion.
func (k *KernelReg) cvLS(bw []float64) float64 {
	fits, err := k.inSample(bw, true, false)
	if err != nil {
		return badObjective
	}
	pred := make([]float64, len(fits))
	for i, f := range fits {
		pred[i] = f.mean
	}
	mse, err := metrics.MSE(mat.NewVecDense(len(k.endog), k.endog), mat.NewVecDense(len(pred), pred))
	if err != nil {
		return badObjective
	}
	return mse
}

// aicHurvich is the corrected AIC of Hurvich, Simonoff and Tsai (1998).
func (k *KernelReg) aicHurvich(bw []float64) float64 {
	fits, err := k.inSample(bw, false, true)
	if err != nil {
		return badObjective
	}
	n := float64(len(fits))
	var rss, trH float64
	for i, f := range fits {
		r := k.endog[i] - f.mean
		rss += r * r
		trH += f.hat
	}
	sigma2 := rss / n
	den := 1 - (trH+2)/n
	if !(sigma2 > 0) || den <= 0 {
		return badObjective
	}
	return math.Log(sigma2) + (1+trH/n)/den
}

// Fit returns the conditional mean and marginal effects (n×q) at each row
// of dataPredict.
//
// For local linear fits an ill-conditioned local design (a query far outside
// the training data, where one point carries all the kernel weight) is solved
// with the pseudo-inverse, so the estimate shrinks toward 0 instead of failing.
func (k *KernelReg) Fit(dataPredict mat.Matrix) ([]float64, *mat.Dense, error) {
	if dataPredict == nil {
		return nil, nil, errors.NewValueError("KernelReg.Fit", "data_predict is nil")
	}
	m, q := dataPredict.Dims()
	if _, kq := k.exog.Dims(); q != kq {
		return nil, nil, errors.NewDimensionError("KernelReg.Fit", kq, q, 1)
	}
	Xq := mat.DenseCopyOf(dataPredict)
	mean := make([]float64, m)
	mfx := mat.NewDense(m, q, nil)
	err := parallel.ParallelizeErr(context.Background(), m, parallelThreshold, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			fit, err := k.estimate(Xq.RawRowView(i), k.bw, -1, -1)
			if err != nil {
				return errors.Wrapf(err, "KernelReg.Fit: row %d", i)
			}
			mean[i] = fit.mean
			mfx.SetRow(i, fit.mfx)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return mean, mfx, nil
}

// RSquared returns the in-sample R² of the regression.
func (k *KernelReg) RSquared() (float64, error) {
	mean, _, err := k.Fit(k.exog)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(mat.NewVecDense(len(k.endog), k.endog), mat.NewVecDense(len(mean), mean))
}

// LeaveOneOutMSE returns the cv_ls criterion at the current bandwidth.
func (k *KernelReg) LeaveOneOutMSE() float64 {
	return k.cvLS(k.bw)
}

// EffectiveDF returns the trace of the hat matrix at the current bandwidth.
func (k *KernelReg) EffectiveDF() (float64, error) {
	fits, err := k.inSample(k.bw, false, true)
	if err != nil {
		return 0, err
	}
	hats := make([]float64, len(fits))
	for i, f := range fits {
		hats[i] = f.hat
	}
	return floats.Sum(hats), nil
}
