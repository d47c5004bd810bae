package gam

import (
	"gonum.org/v1/gonum/mat"
)

const (
	penaltyAuto       = "auto"
	penaltyDerivative = "derivative"
	penaltyL2         = "l2"
	penaltyNone       = "none"

	constraintConvex       = "convex"
	constraintConcave      = "concave"
	constraintMonotonicInc = "monotonic_inc"
	constraintMonotonicDec = "monotonic_dec"

	// constraintLam は形状制約に違反する差分に掛ける罰則の重み
	constraintLam = 1e6

	// identRidge は切片以外の列に加える微小なリッジ（識別性の確保）
	identRidge = 1e-6
)

// diffMatrix は order 階の差分行列（(n-order)×n）を返す
func diffMatrix(n, order int) *mat.Dense {
	if n-order <= 0 {
		return nil
	}
	D := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		D.Set(i, i, 1)
	}
	for k := 0; k < order; k++ {
		r, c := D.Dims()
		next := mat.NewDense(r-1, c, nil)
		for i := 0; i < r-1; i++ {
			for j := 0; j < c; j++ {
				next.Set(i, j, D.At(i+1, j)-D.At(i, j))
			}
		}
		D = next
	}
	return D
}

// addBlock は P の [off, off+n) ブロックに scale·BᵀB を加える
func addBlock(P *mat.SymDense, off int, B *mat.Dense, scale float64) {
	if B == nil || scale == 0 {
		return
	}
	_, n := B.Dims()
	var BtB mat.Dense
	BtB.Mul(B.T(), B)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			P.SetSym(off+i, off+j, P.At(off+i, off+j)+scale*BtB.At(i, j))
		}
	}
}

// addWeightedBlock は P のブロックに scale·Bᵀ diag(w) B を加える
func addWeightedBlock(P *mat.SymDense, off int, B *mat.Dense, w []float64, scale float64) {
	r, n := B.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < r; k++ {
				if w[k] != 0 {
					s += w[k] * B.At(k, i) * B.At(k, j)
				}
			}
			if s != 0 {
				P.SetSym(off+i, off+j, P.At(off+i, off+j)+scale*s)
			}
		}
	}
}

// penaltyMatrix は平滑化罰則と形状制約罰則を合わせた対称行列を返す
//
// 形状制約の罰則は active で有効になっている差分にだけ掛かる。
// active が nil の場合は制約罰則を省く。
func penaltyMatrix(terms []term, lams []float64, penalty string, intercept bool, nCols int, active activeSet) *mat.SymDense {
	P := mat.NewSymDense(nCols, nil)
	start := 0
	if intercept {
		start = 1
	}
	for j := start; j < nCols; j++ {
		P.SetSym(j, j, identRidge)
	}

	for k := range terms {
		t := &terms[k]
		lam := lams[k]

		if t.dtype == dtypeCategorical {
			if penalty != penaltyNone {
				addBlock(P, t.offset, eye(t.width), lam)
			}
			continue
		}

		off := t.offset
		if t.splines {
			switch penalty {
			case penaltyAuto, penaltyDerivative:
				addBlock(P, off, diffMatrix(t.nSplines, 2), lam)
			case penaltyL2:
				addBlock(P, off, eye(t.nSplines), lam)
			}
			if active != nil && active[k] != nil {
				addWeightedBlock(P, off, active[k].diff, active[k].weights(), constraintLam)
			}
			off += t.nSplines
		}
		if t.linear && penalty != penaltyNone {
			P.SetSym(off, off, P.At(off, off)+lam)
		}
	}
	return P
}

// constraintShape は制約を差分の階数と符号に変換する。
// sign·(D β) < 0 の差分が違反。
func constraintShape(constraint string) (order int, sign float64, ok bool) {
	switch constraint {
	case constraintMonotonicInc:
		return 1, 1, true
	case constraintMonotonicDec:
		return 1, -1, true
	case constraintConvex:
		return 2, 1, true
	case constraintConcave:
		return 2, -1, true
	}
	return 0, 0, false
}

// constrainedTerm は1つの項の制約差分と、罰則が有効な差分の集合
type constrainedTerm struct {
	diff   *mat.Dense
	sign   float64
	active []bool
}

func (c *constrainedTerm) weights() []float64 {
	w := make([]float64, len(c.active))
	for i, on := range c.active {
		if on {
			w[i] = 1
		}
	}
	return w
}

// activeSet は項ごとの制約状態。制約のない項は nil。
//
// 有効な差分は一度入ると外れない。集合は単調に増えるだけなので、
// 解き直しの繰り返しは有限回で止まる。
type activeSet []*constrainedTerm

func newActiveSet(terms []term, constraints []string) activeSet {
	var set activeSet
	for k := range terms {
		t := &terms[k]
		order, sign, ok := constraintShape(constraints[k])
		if !ok || !t.splines || t.dtype == dtypeCategorical {
			continue
		}
		D := diffMatrix(t.nSplines, order)
		if D == nil {
			continue
		}
		if set == nil {
			set = make(activeSet, len(terms))
		}
		r, _ := D.Dims()
		set[k] = &constrainedTerm{diff: D, sign: sign, active: make([]bool, r)}
	}
	return set
}

// update は coef で違反している差分を有効にし、集合が変わったかを返す
func (s activeSet) update(terms []term, coef []float64) bool {
	changed := false
	for k, c := range s {
		if c == nil {
			continue
		}
		off, n := terms[k].offset, terms[k].nSplines
		var d mat.VecDense
		d.MulVec(c.diff, mat.NewVecDense(n, coef[off:off+n]))
		for i := range c.active {
			if !c.active[i] && c.sign*d.AtVec(i) < 0 {
				c.active[i] = true
				changed = true
			}
		}
	}
	return changed
}

func eye(n int) *mat.Dense {
	I := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		I.Set(i, i, 1)
	}
	return I
}
