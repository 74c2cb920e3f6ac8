// Package analysis extracts figures of merit from transport solutions and
// magnetization trajectories.
//
//   - [MRRatio]: magnetoresistance ratio with the parallel state as reference
//   - [SwitchingTime]: first level crossing of a magnetization component
//   - [PrecessionSpectrum]: single-sided power spectrum of a component series
//   - [DominantFrequency]: strongest spectral line, for Larmor checks
//
// # Spectra
//
// Spectra need a uniformly sampled trajectory, as produced by a fixed-step
// run:
//
//	freqs, power, err := analysis.PrecessionSpectrum(res.Times, res.States, 0, 0)
//	f, _ := analysis.DominantFrequency(freqs, power)
package analysis
