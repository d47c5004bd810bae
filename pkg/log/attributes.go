// Package log defines standard attribute keys for classifier operations.
//
// Keys follow a hierarchical naming convention ("model.name",
// "data.samples") so that log lines from different classifiers can be
// filtered and aggregated the same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the classifier type, e.g. "LogisticGAM", "SVC".
	ModelNameKey = "model.name"

	// EstimatorIDKey is the uuid assigned to a classifier instance at construction.
	EstimatorIDKey = "estimator.id"

	// OperationKey is the contract method being executed.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase ("training", "inference").
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
)

// Performance and training progress.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
)

// Engine specific attributes.
const (
	// BandwidthKey records the kernel bandwidth vector chosen by KernelReg.
	BandwidthKey = "kernel.bandwidth"

	// ChainKey identifies an MCMC chain.
	ChainKey = "sampler.chain"

	// DrawsKey is the number of posterior draws kept in a trace.
	DrawsKey = "sampler.draws"

	// AcceptRateKey is the mean acceptance rate of an MCMC chain.
	AcceptRateKey = "sampler.accept_rate"

	// SupportVectorsKey is the number of support vectors found by SMO.
	SupportVectorsKey = "svm.n_support"

	// ThresholdKey is the decision threshold used by Predict.
	ThresholdKey = "preds.threshold"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and configuration.
const (
	HyperParamsKey = "model.hyperparams"
	RandomSeedKey  = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit              = "fit"
	OperationPredict          = "predict"
	OperationPredictProba     = "predict_proba"
	OperationDecisionFunction = "decision_function"
	OperationScore            = "score"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorInvalidLabels     = "INVALID_LABELS"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorSingularMatrix    = "SINGULAR_MATRIX"
)
