package gam

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	dtypeNumerical   = "numerical"
	dtypeCategorical = "categorical"
)

// term は1つの特徴量に対応する基底関数のブロック
//
// 数値特徴量は等間隔ノットの B-spline（学習時の範囲にクランプ）と
// 任意の線形列、カテゴリ特徴量は水準ごとの指示関数を持つ。
type term struct {
	feature int
	dtype   string

	// numerical
	knots    []float64
	degree   int
	nSplines int
	lo, hi   float64
	splines  bool
	linear   bool

	// categorical
	levels []float64

	// 計画行列内の列位置
	offset int
	width  int
}

// newNumericalTerm は特徴量の学習範囲から一様 B-spline 基底を作る
//
// ノットは [lo, hi] を nSplines-degree 区間に等分し、両端に degree 個ずつ
// 外挿したもの。nSplines+degree+1 個のノットから nSplines 個の基底関数が得られる。
func newNumericalTerm(feature int, col []float64, nSplines, degree int, splines, linear bool) term {
	lo, hi := floats.Min(col), floats.Max(col)
	h := (hi - lo) / float64(nSplines-degree)
	if h == 0 {
		h = 1
	}
	knots := make([]float64, nSplines+degree+1)
	for j := range knots {
		knots[j] = lo + float64(j-degree)*h
	}
	t := term{
		feature:  feature,
		dtype:    dtypeNumerical,
		knots:    knots,
		degree:   degree,
		nSplines: nSplines,
		lo:       lo,
		hi:       hi,
		splines:  splines,
		linear:   linear,
	}
	if splines {
		t.width += nSplines
	}
	if linear {
		t.width++
	}
	return t
}

// newCategoricalTerm は学習データに現れた水準ごとに指示関数を作る
func newCategoricalTerm(feature int, col []float64) term {
	seen := make(map[float64]struct{})
	for _, v := range col {
		seen[v] = struct{}{}
	}
	levels := make([]float64, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Float64s(levels)
	return term{feature: feature, dtype: dtypeCategorical, levels: levels, width: len(levels)}
}

// fill は x に対する基底関数値を dst[t.offset : t.offset+t.width] に書き込む
func (t *term) fill(x float64, dst []float64) {
	out := dst[t.offset : t.offset+t.width]
	for i := range out {
		out[i] = 0
	}
	if t.dtype == dtypeCategorical {
		// 未知の水準はすべて 0（切片のみで予測）
		i := sort.SearchFloat64s(t.levels, x)
		if i < len(t.levels) && t.levels[i] == x {
			out[i] = 1
		}
		return
	}

	k := 0
	if t.splines {
		t.bspline(x, out[:t.nSplines])
		k = t.nSplines
	}
	if t.linear {
		out[k] = x
	}
}

// bspline は Cox-de Boor の漸化式で B-spline 基底を評価する
func (t *term) bspline(x float64, out []float64) {
	// 学習範囲外はクランプする。右端は半開区間に収まるよう少し内側へ
	h := t.knots[1] - t.knots[0]
	x = math.Max(t.lo, math.Min(x, t.hi))
	if x >= t.knots[len(t.knots)-t.degree-1] {
		x = t.knots[len(t.knots)-t.degree-1] - 1e-9*h
	}

	knots := t.knots
	b := make([]float64, len(knots)-1)
	for i := range b {
		if knots[i] <= x && x < knots[i+1] {
			b[i] = 1
		}
	}
	for d := 1; d <= t.degree; d++ {
		for i := 0; i < len(knots)-1-d; i++ {
			var v float64
			if den := knots[i+d] - knots[i]; den > 0 {
				v += (x - knots[i]) / den * b[i]
			}
			if den := knots[i+d+1] - knots[i+1]; den > 0 {
				v += (knots[i+d+1] - x) / den * b[i+1]
			}
			b[i] = v
		}
	}
	copy(out, b[:t.nSplines])
}

// layout は各 term の列位置を決め、計画行列の総列数を返す
func layout(terms []term, intercept bool) int {
	offset := 0
	if intercept {
		offset = 1
	}
	for i := range terms {
		terms[i].offset = offset
		offset += terms[i].width
	}
	return offset
}

// designMatrix は X から計画行列を組み立てる。先頭列は切片（有効な場合）
func designMatrix(X mat.Matrix, terms []term, intercept bool, nCols int) *mat.Dense {
	r, _ := X.Dims()
	D := mat.NewDense(r, nCols, nil)
	row := make([]float64, nCols)
	for i := 0; i < r; i++ {
		if intercept {
			row[0] = 1
		}
		for k := range terms {
			terms[k].fill(X.At(i, terms[k].feature), row)
		}
		D.SetRow(i, row)
	}
	return D
}
