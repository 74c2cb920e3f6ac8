package spin

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := Invalid("geometry.thickness", "must be positive, got %g", -2.0)

	if !errors.Is(err, ErrConfiguration) {
		t.Error("ConfigError should match ErrConfiguration")
	}
	if !strings.Contains(err.Error(), "geometry.thickness") {
		t.Errorf("error should name the field: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "-2") {
		t.Errorf("error should carry the offending value: %q", err.Error())
	}
}

func TestSolveError(t *testing.T) {
	err := &SolveError{Node: 3, Cond: 4.2e13, Residual: 1e-3, Err: ErrSingularSystem}

	if !errors.Is(err, ErrSingularSystem) {
		t.Error("SolveError should unwrap to its sentinel")
	}
	if !strings.Contains(err.Error(), "node 3") {
		t.Errorf("error should name the node: %q", err.Error())
	}

	global := &SolveError{Node: -1, Cond: 1e15, Err: ErrSingularSystem}
	if strings.Contains(global.Error(), "node") {
		t.Errorf("global error should not name a node: %q", global.Error())
	}
}

func TestConvergenceError(t *testing.T) {
	err := &ConvergenceError{Iterations: 50, Residual: 3.1e-4, Tolerance: 1e-6}

	if !errors.Is(err, ErrConvergence) {
		t.Error("ConvergenceError should match ErrConvergence")
	}
	if !strings.Contains(err.Error(), "50 iterations") {
		t.Errorf("error should report the iteration count: %q", err.Error())
	}
}

func TestStepError(t *testing.T) {
	err := &StepError{Step: 120, Time: 2.5e-10, Err: ErrNumericalInstability}

	if !errors.Is(err, ErrNumericalInstability) {
		t.Error("StepError should unwrap to the wrapped error")
	}
	if !strings.Contains(err.Error(), "step 120") {
		t.Errorf("error should name the step: %q", err.Error())
	}
}
