package spin

import (
	"errors"
	"fmt"
)

// Domain errors for transport and dynamics operations.
var (
	// ErrConfiguration indicates invalid geometry, materials or boundary
	// conditions. The caller must fix the input; the run is never retried.
	ErrConfiguration = errors.New("spin: invalid configuration")

	// ErrSingularSystem indicates the reduced transport system is singular
	// or ill-conditioned beyond the configured threshold.
	ErrSingularSystem = errors.New("spin: singular transport system")

	// ErrNumericalInstability indicates an internal consistency check failed
	// (Kirchhoff residual, NaN state) after an otherwise valid solve/step.
	ErrNumericalInstability = errors.New("spin: numerical instability")

	// ErrConvergence indicates the fixed-point coupling loop exhausted its
	// iteration budget.
	ErrConvergence = errors.New("spin: coupling did not converge")

	// ErrNormDrift is diagnostic: a renormalization correction exceeded the
	// configured per-step threshold. Runs continue; the event is recorded.
	ErrNormDrift = errors.New("spin: magnetization norm drift")
)

// ConfigError reports a rejected input field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("spin: invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// Invalid is shorthand for constructing a *ConfigError.
func Invalid(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SolveError carries diagnostics from a failed transport solve. Node is the
// first offending node index, or -1 when the failure is global.
type SolveError struct {
	Node     int
	Cond     float64
	Residual float64
	Err      error
}

func (e *SolveError) Error() string {
	if e.Node >= 0 {
		return fmt.Sprintf("%v (node %d, cond %.3e, residual %.3e)", e.Err, e.Node, e.Cond, e.Residual)
	}
	return fmt.Sprintf("%v (cond %.3e, residual %.3e)", e.Err, e.Cond, e.Residual)
}

func (e *SolveError) Unwrap() error { return e.Err }

// ConvergenceError reports an exhausted fixed-point budget together with the
// last residual, so callers can decide whether a relaxed tolerance or a
// smaller outer step is worth retrying.
type ConvergenceError struct {
	Iterations int
	Residual   float64
	Tolerance  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v after %d iterations (residual %.3e, tolerance %.3e)",
		ErrConvergence, e.Iterations, e.Residual, e.Tolerance)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// StepError wraps a failure with the integration step context it occurred in.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4e): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
