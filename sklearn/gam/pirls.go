package gam

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
)

const (
	callbackDeviance = "deviance"
	callbackDiffs    = "diffs"
	callbackAccuracy = "accuracy"

	// muEps は IRLS の重み mu(1-mu) が 0 にならないためのクリップ幅
	muEps = 1e-10

	maxStepHalvings = 8
)

// pirlsProblem は罰則付き IRLS の入力
type pirlsProblem struct {
	design      *mat.Dense
	y           []float64
	terms       []term
	lams        []float64
	penalty     string
	constraints []string
	intercept   bool
	maxIter     int
	tol         float64
	callbacks   []string
}

type pirlsResult struct {
	coef      []float64
	logs      map[string][]float64
	nIter     int
	converged bool
}

// linearPredictor は eta = Dβ
func linearPredictor(D mat.Matrix, coef []float64) []float64 {
	r, _ := D.Dims()
	var eta mat.VecDense
	eta.MulVec(D, mat.NewVecDense(len(coef), coef))
	out := make([]float64, r)
	for i := range out {
		out[i] = eta.AtVec(i)
	}
	return out
}

// binomialDeviance は -2 Σ [y log mu + (1-y) log(1-mu)]
func binomialDeviance(y, eta []float64) float64 {
	var dev float64
	for i, e := range eta {
		mu := model.Sigmoid(e)
		if y[i] == 1 {
			dev -= 2 * errors.StabilizeLog(mu)
		} else {
			dev -= 2 * errors.StabilizeLog(1-mu)
		}
	}
	return dev
}

func quadForm(P mat.Symmetric, beta []float64) float64 {
	v := mat.NewVecDense(len(beta), beta)
	return mat.Inner(v, P, v)
}

// solvePenalized は (DᵀWD + P)β = DᵀWz を解く
func solvePenalized(D *mat.Dense, w, z []float64, P *mat.SymDense) ([]float64, error) {
	r, c := D.Dims()
	var WD mat.Dense
	WD.Apply(func(i, _ int, v float64) float64 { return w[i] * v }, D)

	var A mat.Dense
	A.Mul(D.T(), &WD)
	sym := mat.NewSymDense(c, nil)
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, A.At(i, j)+P.At(i, j))
		}
	}

	var b mat.VecDense
	b.MulVec(WD.T(), mat.NewVecDense(r, z))

	var beta mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(sym) {
		if err := chol.SolveVecTo(&beta, &b); err != nil {
			return nil, errors.Wrap(errors.ErrSingularMatrix, "pirls: cholesky solve")
		}
	} else if err := beta.SolveVec(sym, &b); err != nil {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "pirls: penalized normal equations")
	}
	return mat.Col(nil, 0, &beta), nil
}

// pirls は罰則付き反復再重み付け最小二乗法でロジスティック GAM を当てはめる
//
// 各反復では形状制約の有効集合が変わらなくなるまで重み付き最小二乗を解き直す。
// 罰則付き逸脱度（制約罰則を含む）が増えた場合はステップを半分にする。
// 相対係数変化 ||β_new-β|| / ||β_new|| が tol を下回り、かつその反復で
// 有効集合が変わらなかったときに収束とみなす。
func pirls(p pirlsProblem) (*pirlsResult, error) {
	_, nCols := p.design.Dims()
	coef := make([]float64, nCols)
	res := &pirlsResult{logs: make(map[string][]float64, len(p.callbacks))}

	active := newActiveSet(p.terms, p.constraints)
	eta := make([]float64, len(p.y))

	w := make([]float64, len(p.y))
	z := make([]float64, len(p.y))
	for it := 0; it < p.maxIter; it++ {
		for i, e := range eta {
			mu := errors.ClipValue(model.Sigmoid(e), muEps, 1-muEps)
			w[i] = mu * (1 - mu)
			z[i] = e + (p.y[i]-mu)/w[i]
		}

		var (
			P       *mat.SymDense
			next    []float64
			err     error
			changed bool
		)
		for {
			P = penaltyMatrix(p.terms, p.lams, p.penalty, p.intercept, nCols, active)
			next, err = solvePenalized(p.design, w, z, P)
			if err != nil {
				return nil, err
			}
			if err := errors.CheckNumericalStability("pirls", next, it); err != nil {
				return nil, err
			}
			if !active.update(p.terms, next) {
				break
			}
			changed = true
		}

		// step halving
		objective := binomialDeviance(p.y, eta) + quadForm(P, coef)
		step := make([]float64, nCols)
		floats.SubTo(step, next, coef)
		nextEta := linearPredictor(p.design, next)
		nextObj := binomialDeviance(p.y, nextEta) + quadForm(P, next)
		for h := 0; h < maxStepHalvings && nextObj > objective*(1+1e-12); h++ {
			floats.Scale(0.5, step)
			floats.AddTo(next, coef, step)
			nextEta = linearPredictor(p.design, next)
			nextObj = binomialDeviance(p.y, nextEta) + quadForm(P, next)
		}

		diff := floats.Distance(next, coef, 2) / math.Max(floats.Norm(next, 2), 1e-12)
		coef, eta = next, nextEta
		res.nIter = it + 1
		p.record(res.logs, eta, diff)

		if diff < p.tol && !changed {
			res.converged = true
			break
		}
	}
	res.coef = coef
	return res, nil
}

// record は有効なコールバックの値を logs に追記する
func (p *pirlsProblem) record(logs map[string][]float64, eta []float64, diff float64) {
	for _, cb := range p.callbacks {
		switch cb {
		case callbackDeviance:
			logs[cb] = append(logs[cb], binomialDeviance(p.y, eta))
		case callbackDiffs:
			logs[cb] = append(logs[cb], diff)
		case callbackAccuracy:
			correct := 0
			for i, e := range eta {
				if (e > 0) == (p.y[i] == 1) {
					correct++
				}
			}
			logs[cb] = append(logs[cb], float64(correct)/float64(len(eta)))
		}
	}
}
