package svm

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

var _ model.BinaryClassifier = (*SVMClassifier)(nil)

// SVMClassifier is an SVC whose PredictProba is the logistic sigmoid of the
// margin, 1 / (1 + exp(-f(x))).
//
// This is much cheaper than Platt scaling (no cross-validation at Fit) but the
// probabilities are not calibrated: the margin scale depends on C and the
// kernel. Prefer SVC with WithProbability(true) when calibrated
// probabilities matter.
type SVMClassifier struct {
	*SVC
}

// NewSVMClassifier creates an SVMClassifier. It accepts the same options as NewSVC.
func NewSVMClassifier(opts ...SVCOption) *SVMClassifier {
	return &SVMClassifier{SVC: newSVC("SVMClassifier", opts...)}
}

// PredictProba returns [1-σ(f), σ(f)] for the decision value f.
func (s *SVMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	_, d, err := s.decisionValues("PredictProba", X)
	if err != nil {
		return nil, err
	}
	s.logger().Debug("sigmoid of margin", log.OperationKey, log.OperationPredictProba, log.SamplesKey, len(d))
	return model.SigmoidProba(d), nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (s *SVMClassifier) Clone() model.BinaryClassifier {
	c := NewSVMClassifier()
	_ = c.SetParams(s.GetParams())
	return c
}
