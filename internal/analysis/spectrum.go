package analysis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/alaweimm90/SpinCirc/internal/spin"
)

// PrecessionSpectrum computes the single-sided power spectrum of one
// magnetization component. The trajectory must be uniformly sampled. The
// series mean is removed before the transform, so the DC bin reflects drift
// rather than the static component. Power uses the mean-square convention: a
// sinusoid of amplitude A contributes A²/2 at its line.
func PrecessionSpectrum(times []float64, traj []spin.State, layer, component int) (freqs, power []float64, err error) {
	s, err := Series(traj, layer, component)
	if err != nil {
		return nil, nil, err
	}
	n := len(s)
	if len(times) != n {
		return nil, nil, spin.Invalid("analysis.spectrum", "%d times for %d samples", len(times), n)
	}
	if n < 8 {
		return nil, nil, spin.Invalid("analysis.spectrum", "need at least 8 samples, got %d", n)
	}
	dt := times[1] - times[0]
	if dt <= 0 {
		return nil, nil, spin.Invalid("analysis.spectrum", "sample spacing must be positive, got %g", dt)
	}
	for i := 2; i < n; i++ {
		if d := times[i] - times[i-1]; math.Abs(d-dt) > 1e-6*dt {
			return nil, nil, spin.Invalid("analysis.spectrum", "nonuniform sampling at index %d: %g vs %g", i, d, dt)
		}
	}

	mean := stat.Mean(s, nil)
	detrended := make([]float64, n)
	for i, v := range s {
		detrended[i] = v - mean
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, detrended)

	freqs = make([]float64, len(coeffs))
	power = make([]float64, len(coeffs))
	nf := float64(n)
	for k, c := range coeffs {
		freqs[k] = float64(k) / (nf * dt)
		p := (real(c)*real(c) + imag(c)*imag(c)) / (nf * nf)
		if k > 0 && (n%2 != 0 || k < len(coeffs)-1) {
			p *= 2 // interior bins carry both conjugate halves
		}
		power[k] = p
	}
	return freqs, power, nil
}

// DominantFrequency returns the strongest spectral line above DC. Small
// precession about a static field B puts this line at γB/2π.
func DominantFrequency(freqs, power []float64) (float64, float64) {
	if len(power) < 2 || len(freqs) != len(power) {
		return 0, 0
	}
	k := 1 + floats.MaxIdx(power[1:])
	return freqs[k], power[k]
}
