package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "not fitted",
			err:     NewNotFittedError("LogisticGAM", "PredictProba"),
			wantMsg: "binclf: LogisticGAM: this model is not fitted yet. Call Fit() before using PredictProba()",
		},
		{
			name:    "row mismatch",
			err:     NewDimensionError("SVC.Fit", 100, 99, 0),
			wantMsg: "binclf: SVC.Fit: dimension mismatch on axis 0 (rows). Expected 100, got 99",
		},
		{
			name:    "feature mismatch",
			err:     NewDimensionError("LocalLogistic.DecisionFunction", 2, 3, 1),
			wantMsg: "binclf: LocalLogistic.DecisionFunction: dimension mismatch on axis 1 (features). Expected 2, got 3",
		},
		{
			name:    "labels",
			err:     NewValidationError("y", "labels must be exactly {0, 1}", []int{0, 1, 2}),
			wantMsg: "binclf: validation failed for parameter 'y': labels must be exactly {0, 1} (got: [0 1 2])",
		},
		{
			name:    "value",
			err:     NewValueError("CheckArray", "X contains NaN or Inf"),
			wantMsg: "binclf: CheckArray: X contains NaN or Inf",
		},
		{
			name:    "model error with cause",
			err:     NewModelError("KernelReg.Fit", "local design matrix", ErrSingularMatrix),
			wantMsg: "binclf: KernelReg.Fit: local design matrix: singular matrix",
		},
		{
			name:    "model error without cause",
			err:     NewModelError("SVC.Fit", "solver stalled", nil),
			wantMsg: "binclf: SVC.Fit: solver stalled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", tt.err.Error(), tt.wantMsg)
			}
			// スタックトレースが付与されていること
			formatted := fmt.Sprintf("%+v", tt.err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}
		})
	}
}

func TestErrorTypesAreCastable(t *testing.T) {
	var notFitted *NotFittedError
	if !As(NewNotFittedError("SVC", "Predict"), &notFitted) {
		t.Error("Error should be castable to *NotFittedError")
	}

	var dimErr *DimensionError
	if !As(NewDimensionError("Predict", 3, 2, 1), &dimErr) || dimErr.Axis != 1 {
		t.Error("Error should be castable to *DimensionError with axis 1")
	}

	var valErr *ValidationError
	if !As(NewValidationError("bw", "must be positive", -1.0), &valErr) || valErr.ParamName != "bw" {
		t.Error("Error should be castable to *ValidationError")
	}

	// ModelError は原因のエラーまで辿れる
	if !Is(NewModelError("GAM.Fit", "cholesky", ErrSingularMatrix), ErrSingularMatrix) {
		t.Error("ModelError should unwrap to its cause")
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d rows, got %d", "Fit", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Fit: expected 10 rows, got 0") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestWarnRouting(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })

	// zerolog 関数が設定されていればハンドラは呼ばれない
	var structured []error
	SetZerologWarnFunc(func(w error) { structured = append(structured, w) })
	Warn(NewConvergenceWarning("PIRLS", 100, "coefficients still moving"))
	if len(structured) != 1 || len(got) != 0 {
		t.Fatalf("expected structured routing, got handler=%d structured=%d", len(got), len(structured))
	}

	SetZerologWarnFunc(nil)
	Warn(NewConvergenceWarning("SMO", 10, ""))
	if len(got) != 1 {
		t.Fatalf("expected fallback handler to be called once, got %d", len(got))
	}
	want := "SMO failed to converge after 10 iterations. Consider increasing max_iter or adjusting parameters."
	if got[0].Error() != want {
		t.Errorf("Error() = %v, want %v", got[0].Error(), want)
	}
}

func TestNumericalHelpers(t *testing.T) {
	if err := CheckNumericalStability("pirls", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	var numErr *NumericalInstabilityError
	err := CheckScalar("log_posterior", 0.0/zero(), 7)
	if !As(err, &numErr) || numErr.Iteration != 7 {
		t.Errorf("expected NumericalInstabilityError at iteration 7, got %v", err)
	}

	if v := Softplus(1000); v != 1000 {
		t.Errorf("Softplus(1000) = %v, want 1000", v)
	}
	if v := Softplus(-1000); v != 0 {
		t.Errorf("Softplus(-1000) = %v, want 0", v)
	}
	if v := ClipValue(1.5, 0, 1); v != 1 {
		t.Errorf("ClipValue = %v, want 1", v)
	}
	if v := SafeDivide(1, 0); v != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", v)
	}
}

func zero() float64 { return 0 }
