package analysis

import (
	"math"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// MRRatio is the magnetoresistance ratio (rAP - rP) / rP. The parallel
// resistance is the reference, so a parallel-state measurement reports zero.
func MRRatio(rP, rAP float64) (float64, error) {
	if !(rP > 0) || math.IsInf(rP, 0) {
		return 0, spin.Invalid("analysis.mr", "parallel resistance must be positive and finite, got %g", rP)
	}
	if math.IsNaN(rAP) || math.IsInf(rAP, 0) {
		return 0, spin.Invalid("analysis.mr", "antiparallel resistance must be finite, got %g", rAP)
	}
	return (rAP - rP) / rP, nil
}

// Series extracts one magnetization component of one layer from a recorded
// trajectory. Components 0, 1, 2 select x, y, z.
func Series(traj []spin.State, layer, component int) ([]float64, error) {
	if layer < 0 || component < 0 || component > 2 {
		return nil, spin.Invalid("analysis.series", "layer %d component %d out of range", layer, component)
	}
	idx := 3*layer + component
	s := make([]float64, len(traj))
	for i, x := range traj {
		if idx >= len(x) {
			return nil, spin.Invalid("analysis.series", "layer %d not present in a %d-element state", layer, len(x))
		}
		s[i] = x[idx]
	}
	return s, nil
}

// SwitchingTime reports when a magnetization component first reaches level,
// interpolating linearly between the bracketing samples. The second result
// is false when the trajectory never crosses the level or the indices do not
// address a recorded component.
func SwitchingTime(times []float64, traj []spin.State, layer, component int, level float64) (float64, bool) {
	s, err := Series(traj, layer, component)
	if err != nil || len(s) != len(times) || len(s) == 0 {
		return 0, false
	}
	if s[0] == level {
		return times[0], true
	}
	for i := 1; i < len(s); i++ {
		if s[i] == level {
			return times[i], true
		}
		prev, curr := s[i-1]-level, s[i]-level
		if (prev > 0 && curr < 0) || (prev < 0 && curr > 0) {
			frac := -prev / (curr - prev)
			return times[i-1] + frac*(times[i]-times[i-1]), true
		}
	}
	return 0, false
}
