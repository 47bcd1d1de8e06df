// Package dsp holds the signal primitives shared across the pipeline:
// RMS and peak measurement, the frequency transform behind [Transform],
// and helpers for reading magnitude spectra in Hz terms.
package dsp

import "math"

// RMS returns the root-mean-square level of the samples, 0 for an empty
// frame.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value, 0 for an empty frame.
func Peak(samples []float64) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// BinFrequency returns the center frequency in Hz of spectrum bin k for a
// frame of frameLen samples at sampleRate.
func BinFrequency(k, frameLen, sampleRate int) float64 {
	if frameLen <= 0 {
		return 0
	}
	return float64(k) * float64(sampleRate) / float64(frameLen)
}

// DominantFrequency returns the frequency in Hz of the largest-magnitude
// bin. The DC bin is skipped so a constant offset does not mask the actual
// spectral peak. Returns 0 for spectra with fewer than two bins.
func DominantFrequency(mags []float64, frameLen, sampleRate int) float64 {
	if len(mags) < 2 {
		return 0
	}
	maxBin := 1
	for k := 2; k < len(mags); k++ {
		if mags[k] > mags[maxBin] {
			maxBin = k
		}
	}
	return BinFrequency(maxBin, frameLen, sampleRate)
}

// BandEnergy sums squared magnitudes of the bins whose center frequency
// falls inside [lowHz, highHz].
func BandEnergy(mags []float64, frameLen, sampleRate int, lowHz, highHz float64) float64 {
	var sum float64
	for k, m := range mags {
		f := BinFrequency(k, frameLen, sampleRate)
		if f >= lowHz && f <= highHz {
			sum += m * m
		}
	}
	return sum
}

// TotalEnergy sums squared magnitudes over the whole spectrum.
func TotalEnergy(mags []float64) float64 {
	var sum float64
	for _, m := range mags {
		sum += m * m
	}
	return sum
}
