// Package pipeline chains a feature transformer and a binary classifier
// into a single BinaryClassifier.
package pipeline

import (
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
)

// Step name prefixes used by GetParams and SetParams ("clf__C").
const (
	TransformerStep = "transformer"
	ClassifierStep  = "clf"
	sep             = "__"
)

var _ model.BinaryClassifier = (*Pipeline)(nil)

type paramsHolder interface {
	model.ParameterGetter
	model.ParameterSetter
}

// Pipeline fits the transformer on X, then the classifier on the transformed X.
// Every prediction method transforms its input with the fitted transformer first.
type Pipeline struct {
	id          string
	transformer model.Transformer
	clf         model.BinaryClassifier
}

// New creates a Pipeline. transformer may be nil, in which case X is passed through.
func New(transformer model.Transformer, clf model.BinaryClassifier) *Pipeline {
	return &Pipeline{id: uuid.NewString(), transformer: transformer, clf: clf}
}

func (p *Pipeline) logger() log.Logger {
	return log.GetLoggerWithName("pipeline").With(log.ModelNameKey, "Pipeline", log.EstimatorIDKey, p.id)
}

// Fit fits the transformer and the classifier in order.
func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")
	if p.clf == nil {
		return errors.NewValueError("Pipeline.Fit", "classifier is nil")
	}
	Xt := X
	if p.transformer != nil {
		if Xt, err = p.transformer.FitTransform(X); err != nil {
			return err
		}
	}
	if err := p.clf.Fit(Xt, y); err != nil {
		return err
	}
	r, c := X.Dims()
	p.logger().Debug("fit completed", log.OperationKey, log.OperationFit, log.SamplesKey, r, log.FeaturesKey, c)
	return nil
}

func (p *Pipeline) transform(X mat.Matrix) (mat.Matrix, error) {
	if p.transformer == nil {
		return X, nil
	}
	return p.transformer.Transform(X)
}

// Predict returns class labels from the classifier.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.clf.Predict(Xt)
}

// PredictProba returns class probabilities from the classifier.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.clf.PredictProba(Xt)
}

// DecisionFunction returns the classifier's decision scores.
func (p *Pipeline) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.clf.DecisionFunction(Xt)
}

// Score returns the mean accuracy on X, y.
func (p *Pipeline) Score(X, y mat.Matrix) (float64, error) {
	return model.MeanAccuracy("Pipeline.Score", p, X, y)
}

// Classes returns the class labels.
func (p *Pipeline) Classes() []int {
	return p.clf.Classes()
}

// Classifier returns the final step.
func (p *Pipeline) Classifier() model.BinaryClassifier {
	return p.clf
}

// Transformer returns the first step, or nil.
func (p *Pipeline) Transformer() model.Transformer {
	return p.transformer
}

// GetParams returns the parameters of both steps, prefixed with "transformer__" and "clf__".
func (p *Pipeline) GetParams() map[string]interface{} {
	out := make(map[string]interface{})
	if h, ok := p.transformer.(paramsHolder); ok {
		for k, v := range h.GetParams() {
			out[TransformerStep+sep+k] = v
		}
	}
	for k, v := range p.clf.GetParams() {
		out[ClassifierStep+sep+k] = v
	}
	return out
}

// SetParams routes each prefixed key to its step.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	byStep := map[string]map[string]interface{}{}
	for key, value := range params {
		step, name, ok := strings.Cut(key, sep)
		if !ok || (step != TransformerStep && step != ClassifierStep) {
			return model.UnknownParam("Pipeline", key)
		}
		if byStep[step] == nil {
			byStep[step] = map[string]interface{}{}
		}
		byStep[step][name] = value
	}
	if ps, ok := byStep[TransformerStep]; ok {
		h, isHolder := p.transformer.(paramsHolder)
		if !isHolder {
			return errors.NewValidationError(TransformerStep, "step has no settable parameters", p.transformer)
		}
		if err := h.SetParams(ps); err != nil {
			return err
		}
	}
	if ps, ok := byStep[ClassifierStep]; ok {
		if err := p.clf.SetParams(ps); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an unfitted Pipeline with cloned steps.
func (p *Pipeline) Clone() model.BinaryClassifier {
	var t model.Transformer
	if p.transformer != nil {
		t = p.transformer.Clone()
	}
	return New(t, p.clf.Clone())
}
