// Package config builds classifiers from a name and a parameter map, or
// from a YAML document such as
//
//	classifier: LogisticGAM
//	log_level: debug
//	transformer: standard_scaler
//	params:
//	  lam: 0.6
//	  n_splines: 20
package config

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/binclf/core/model"
	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/pkg/log"
	"github.com/YuminosukeSato/binclf/preprocessing"
	"github.com/YuminosukeSato/binclf/sklearn/bayes"
	"github.com/YuminosukeSato/binclf/sklearn/gam"
	"github.com/YuminosukeSato/binclf/sklearn/nonparametric"
	"github.com/YuminosukeSato/binclf/sklearn/pipeline"
	"github.com/YuminosukeSato/binclf/sklearn/svm"
)

// Transformer names accepted in the transformer field.
const (
	StandardScaler = "standard_scaler"
	MinMaxScaler   = "min_max_scaler"
)

var registry = map[string]func() model.BinaryClassifier{
	"LogisticGAM":      func() model.BinaryClassifier { return gam.NewLogisticGAM() },
	"LocalLogistic":    func() model.BinaryClassifier { return nonparametric.NewLocalLogistic() },
	"BayesianLogistic": func() model.BinaryClassifier { return bayes.NewBayesianLogistic() },
	"SVC":              func() model.BinaryClassifier { return svm.NewSVC() },
	"SVMClassifier":    func() model.BinaryClassifier { return svm.NewSVMClassifier() },
}

// Names returns the registered classifier names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the classifier registered under name and applies params with SetParams.
func New(name string, params map[string]interface{}) (model.BinaryClassifier, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.NewValidationError("classifier", fmt.Sprintf("must be one of %v", Names()), name)
	}
	clf := factory()
	if len(params) > 0 {
		if err := clf.SetParams(params); err != nil {
			return nil, errors.Wrapf(err, "config: %s", name)
		}
	}
	return clf, nil
}

// Document is the YAML form of a classifier configuration.
type Document struct {
	Classifier        string                 `yaml:"classifier"`
	Params            map[string]interface{} `yaml:"params"`
	LogLevel          string                 `yaml:"log_level"`
	Transformer       string                 `yaml:"transformer"`
	TransformerParams map[string]interface{} `yaml:"transformer_params"`
}

// Parse decodes a YAML document.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "config: invalid YAML")
	}
	if doc.Classifier == "" {
		return nil, errors.NewValidationError("classifier", "is required", "")
	}
	return &doc, nil
}

// Load parses a YAML document and builds the classifier it describes. When
// log_level is set the global log level is changed, and when transformer is
// set the result is a Pipeline.
func Load(r io.Reader) (model.BinaryClassifier, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

// Build creates the classifier described by doc.
func (doc *Document) Build() (model.BinaryClassifier, error) {
	if doc.LogLevel != "" {
		level, err := log.ParseLevel(doc.LogLevel)
		if err != nil {
			return nil, errors.NewValidationError("log_level", err.Error(), doc.LogLevel)
		}
		log.SetLevel(level)
	}

	clf, err := New(doc.Classifier, doc.Params)
	if err != nil {
		return nil, err
	}
	if doc.Transformer == "" {
		if len(doc.TransformerParams) > 0 {
			return nil, errors.NewValidationError("transformer_params", "requires transformer", doc.TransformerParams)
		}
		return clf, nil
	}

	var t interface {
		model.Transformer
		SetParams(map[string]interface{}) error
	}
	switch doc.Transformer {
	case StandardScaler:
		t = preprocessing.NewStandardScalerDefault()
	case MinMaxScaler:
		t = preprocessing.NewMinMaxScalerDefault()
	default:
		return nil, errors.NewValidationError("transformer", "must be standard_scaler or min_max_scaler", doc.Transformer)
	}
	if len(doc.TransformerParams) > 0 {
		if err := t.SetParams(doc.TransformerParams); err != nil {
			return nil, errors.Wrapf(err, "config: %s", doc.Transformer)
		}
	}
	return pipeline.New(t, clf), nil
}
