// Package binclf provides probabilistic binary classifiers for Go behind a
// single scikit-learn-like contract.
//
// Four model families are available, each implementing
// model.BinaryClassifier (Fit / Predict / PredictProba / DecisionFunction /
// Score / GetParams / SetParams / Clone):
//
//   - sklearn/gam: LogisticGAM, a generalized additive logistic model with
//     penalized B-spline terms fitted by PIRLS
//   - sklearn/nonparametric: LocalLogistic, kernel-weighted local regression
//     on the ±1-recoded target (KernelReg engine with cv_ls / aic /
//     normal_reference bandwidths)
//   - sklearn/bayes: BayesianLogistic, Gaussian-prior logistic regression
//     fitted by HMC / Metropolis or mean-field ADVI
//   - sklearn/svm: SVC (SMO, Platt scaling) and SVMClassifier (sigmoid of
//     the margin)
//
// Labels are always {0, 1}. PredictProba returns an n×2 matrix whose
// columns are P(0) and P(1).
//
// # Quick Start
//
//	X := mat.NewDense(4, 2, []float64{-2, -1, -1, -2, 1, 2, 2, 1})
//	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
//
//	clf := svm.NewSVMClassifier(svm.WithKernel(svm.KernelLinear))
//	if err := clf.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//	proba, err := clf.PredictProba(X)
//
// # Packages
//
//   - core/model: the BinaryClassifier contract, lifecycle, input validation
//   - core/parallel: chunked data parallelism used by the engines
//   - metrics: accuracy, AUC, log loss, Brier score, regression errors
//   - preprocessing: StandardScaler, MinMaxScaler
//   - sklearn/pipeline: transformer + classifier as one classifier
//   - sklearn/model_selection: KFold, StratifiedKFold, CrossValScore
//   - config: build classifiers from YAML
//   - diagnostics: MCMC trace plots and reliability diagrams
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Errors
//
// Fit validates its inputs before any computation: a ValidationError for
// labels other than {0, 1} or bad hyperparameters, a DimensionError when X
// and y disagree on the number of samples. Prediction methods return a
// NotFittedError before Fit and a DimensionError for a different feature
// count. Non-fatal conditions such as a solver that did not converge are
// reported as ConvergenceWarning through errors.Warn.
package binclf
