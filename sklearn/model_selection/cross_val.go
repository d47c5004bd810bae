package model_selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/core/parallel"
	"github.com/YuminosukeSato/binclf/metrics"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

// Scoring names accepted by CrossValScore. Higher is always better.
const (
	ScoringAccuracy      = "accuracy"
	ScoringROCAUC        = "roc_auc"
	ScoringNegLogLoss    = "neg_log_loss"
	ScoringNegBrierScore = "neg_brier_score"
)

// Scorer evaluates a fitted classifier on held-out data.
type Scorer func(clf model.BinaryClassifier, X *mat.Dense, y *mat.VecDense) (float64, error)

// GetScorer returns the scorer registered under name.
func GetScorer(name string) (Scorer, error) {
	switch name {
	case ScoringAccuracy:
		return func(clf model.BinaryClassifier, X *mat.Dense, y *mat.VecDense) (float64, error) {
			pred, err := clf.Predict(X)
			if err != nil {
				return 0, err
			}
			return metrics.Accuracy(y, mat.NewVecDense(y.Len(), model.Column(pred, 0)))
		}, nil
	case ScoringROCAUC:
		return probaScorer(metrics.AUC, 1), nil
	case ScoringNegLogLoss:
		return probaScorer(metrics.BinaryLogLoss, -1), nil
	case ScoringNegBrierScore:
		return probaScorer(metrics.BrierScore, -1), nil
	default:
		return nil, errors.NewValidationError("scoring", "must be accuracy, roc_auc, neg_log_loss or neg_brier_score", name)
	}
}

// probaScorer applies metric to P(1) and multiplies by sign.
func probaScorer(metric func(yTrue, yPred *mat.VecDense) (float64, error), sign float64) Scorer {
	return func(clf model.BinaryClassifier, X *mat.Dense, y *mat.VecDense) (float64, error) {
		proba, err := clf.PredictProba(X)
		if err != nil {
			return 0, err
		}
		v, err := metric(y, mat.NewVecDense(y.Len(), model.Column(proba, 1)))
		if err != nil {
			return 0, err
		}
		return sign * v, nil
	}
}

// CVResult holds the per-fold scores of a cross-validation run.
type CVResult struct {
	TestScores []float64
	FitTimes   []time.Duration
}

// Mean returns the mean test score.
func (r *CVResult) Mean() float64 {
	return stat.Mean(r.TestScores, nil)
}

// Std returns the sample standard deviation of the test scores.
func (r *CVResult) Std() float64 {
	if len(r.TestScores) < 2 {
		return 0
	}
	return stat.StdDev(r.TestScores, nil)
}

// CrossValScore fits a Clone of clf on every training fold and scores it on
// the matching test fold. Folds run concurrently. A nil splitter means
// StratifiedKFold(5) without shuffling.
func CrossValScore(ctx context.Context, clf model.BinaryClassifier, X, y mat.Matrix, splitter Splitter, scoring string) (*CVResult, error) {
	const op = "CrossValScore"
	scorer, err := GetScorer(scoring)
	if err != nil {
		return nil, err
	}
	Xd, yv, err := model.CheckXy(op, X, y)
	if err != nil {
		return nil, err
	}
	if splitter == nil {
		splitter = NewStratifiedKFold(5, false, 0)
	}
	folds, err := splitter.Split(Xd, mat.NewVecDense(len(yv), yv))
	if err != nil {
		return nil, err
	}

	logger := log.GetLoggerWithName("model_selection")
	res := &CVResult{
		TestScores: make([]float64, len(folds)),
		FitTimes:   make([]time.Duration, len(folds)),
	}
	err = parallel.ParallelizeErr(ctx, len(folds), 1, func(ctx context.Context, start, end int) error {
		for f := start; f < end; f++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			Xtr, ytr := subset(Xd, yv, folds[f].TrainIndices)
			Xte, yte := subset(Xd, yv, folds[f].TestIndices)

			est := clf.Clone()
			begin := time.Now()
			if err := est.Fit(Xtr, ytr); err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			res.FitTimes[f] = time.Since(begin)

			score, err := scorer(est, Xte, mat.NewVecDense(len(folds[f].TestIndices), yte.RawMatrix().Data))
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			if math.IsNaN(score) {
				return errors.NewNumericalInstabilityError(op, []float64{score}, f)
			}
			res.TestScores[f] = score
			logger.Debug("fold scored",
				log.OperationKey, log.OperationScore,
				"cv.fold", f,
				"cv.scoring", scoring,
				"cv.score", score,
				log.DurationMsKey, res.FitTimes[f].Milliseconds(),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
