package dsp

import "math"

// Transform converts audio frames between the time and frequency domains.
// The pipeline only ever talks to this interface so the naive [DFT] can be
// swapped for a real FFT without touching callers.
//
// Implementations must be safe for concurrent use.
type Transform interface {
	// Spectrum returns the magnitude spectrum of frame: len(frame)/2 bins
	// covering [0, sampleRate/2). Bin k corresponds to frequency
	// k·sampleRate/len(frame).
	Spectrum(frame []float64) []float64

	// Forward returns the real and imaginary parts of the full transform,
	// one entry per input sample.
	Forward(frame []float64) (re, im []float64)

	// Inverse reconstructs time-domain samples from a full complex spectrum
	// produced by [Transform.Forward]. For spectra of real signals the
	// output is real up to rounding.
	Inverse(re, im []float64) []float64
}

// DFT is a textbook O(n²) discrete Fourier transform. Frame sizes in this
// pipeline stay small enough (≤ 4096 samples) that the quadratic cost fits
// inside the capture interval on commodity hardware.
type DFT struct{}

var _ Transform = DFT{}

// Spectrum implements [Transform]. Only the first half of the bins is
// returned; the upper half mirrors it for real input.
func (d DFT) Spectrum(frame []float64) []float64 {
	re, im := d.Forward(frame)
	mags := make([]float64, len(frame)/2)
	for k := range mags {
		mags[k] = math.Hypot(re[k], im[k])
	}
	return mags
}

// Forward implements [Transform].
func (DFT) Forward(frame []float64) (re, im []float64) {
	n := len(frame)
	re = make([]float64, n)
	im = make([]float64, n)
	for k := range n {
		var sumRe, sumIm float64
		for t, x := range frame {
			angle := 2 * math.Pi * float64(k) * float64(t) / float64(n)
			sumRe += x * math.Cos(angle)
			sumIm -= x * math.Sin(angle)
		}
		re[k] = sumRe
		im[k] = sumIm
	}
	return re, im
}

// Inverse implements [Transform].
func (DFT) Inverse(re, im []float64) []float64 {
	n := len(re)
	if n == 0 || len(im) != n {
		return nil
	}
	out := make([]float64, n)
	for t := range n {
		var sum float64
		for k := range n {
			angle := 2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += re[k]*math.Cos(angle) - im[k]*math.Sin(angle)
		}
		out[t] = sum / float64(n)
	}
	return out
}
