// Package model_selection provides k-fold splitters and cross-validated
// scoring for binary classifiers.
package model_selection

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// Splitter generates train/test index pairs.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold is one train/test partition of the sample indices.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits samples into NSplits consecutive (optionally shuffled) folds.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewKFold creates a k-fold splitter. nSplits < 2 falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed int64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split returns NSplits folds. The first n % NSplits folds get one extra test sample.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	n, _ := X.Dims()
	if n < kf.NSplits {
		return nil, errors.NewValidationError("n_splits", "cannot be greater than the number of samples", kf.NSplits)
	}
	indices := permutation(n, kf.Shuffle, kf.RandomSeed)
	return partition(n, assignConsecutive(indices, kf.NSplits)), nil
}

// StratifiedKFold keeps the class ratio of y in every fold.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewStratifiedKFold creates a stratified k-fold splitter. nSplits < 2 falls back to 5.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split distributes each class round-robin over the folds.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	n, _ := X.Dims()
	if n < skf.NSplits {
		return nil, errors.NewValidationError("n_splits", "cannot be greater than the number of samples", skf.NSplits)
	}
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "y is required")
	}
	labels := flatten(y)
	if len(labels) != n {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", n, len(labels), 0)
	}

	indices := permutation(n, skf.Shuffle, skf.RandomSeed)
	fold := make([]int, n)
	seen := make(map[float64]int)
	for _, i := range indices {
		fold[i] = seen[labels[i]] % skf.NSplits
		seen[labels[i]]++
	}
	return partition(n, fold), nil
}

func permutation(n int, shuffle bool, seed int64) []int {
	if shuffle {
		r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
		return r.Perm(n)
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// assignConsecutive gives each position of indices a fold number, in blocks.
func assignConsecutive(indices []int, k int) []int {
	n := len(indices)
	fold := make([]int, n)
	size, rem := n/k, n%k
	pos := 0
	for f := 0; f < k; f++ {
		end := pos + size
		if f < rem {
			end++
		}
		for _, i := range indices[pos:end] {
			fold[i] = f
		}
		pos = end
	}
	return fold
}

// partition turns per-sample fold numbers into sorted train/test index lists.
func partition(n int, fold []int) []Fold {
	k := 0
	for _, f := range fold {
		if f+1 > k {
			k = f + 1
		}
	}
	folds := make([]Fold, k)
	for i := 0; i < n; i++ {
		for f := range folds {
			if fold[i] == f {
				folds[f].TestIndices = append(folds[f].TestIndices, i)
			} else {
				folds[f].TrainIndices = append(folds[f].TrainIndices, i)
			}
		}
	}
	return folds
}

func flatten(y mat.Matrix) []float64 {
	r, c := y.Dims()
	if c == 1 {
		return mat.Col(nil, 0, y)
	}
	if r == 1 {
		return mat.Row(nil, 0, y)
	}
	return nil
}

// subset copies the rows of X and y listed in indices.
func subset(X *mat.Dense, y []float64, indices []int) (*mat.Dense, *mat.Dense) {
	_, p := X.Dims()
	Xs := mat.NewDense(len(indices), p, nil)
	ys := mat.NewDense(len(indices), 1, nil)
	for r, i := range indices {
		Xs.SetRow(r, X.RawRowView(i))
		ys.Set(r, 0, y[i])
	}
	return Xs, ys
}
