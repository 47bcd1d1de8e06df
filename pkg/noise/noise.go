// Package noise implements the noise cancellation engine of the voice
// pipeline: per-frame cleaning, noise analysis snapshots, and a registry
// of named noise profiles.
//
// Two cleaning strategies exist. Once a profile is current, frames are
// cleaned by spectral subtraction against the profile's stored spectrum.
// Without a profile the engine falls back to a simple noise gate with mild
// compression and low-pass smoothing. Profiles adapt to new observations
// through an exponential moving average, so the noise floor and adaptive
// threshold never jump discontinuously after creation.
package noise

import (
	"time"
)

// Spectral subtraction parameters. The over-subtraction factor is
// 2·aggressiveness; the spectral floor keeps a fraction of the signal
// power in every bin so full subtraction cannot ring.
const (
	overSubtractionScale = 2.0
	spectralFloor        = 0.01
)

// Profile adaptation parameters.
const (
	emaAlpha             = 0.1
	minAdaptiveThreshold = 0.005
	adaptiveFactor       = 1.5
)

// Noise gate parameters.
const (
	gateBaseThreshold   = 0.01
	gateAttenuation     = 0.05
	gateSoftAttenuation = 0.3
	gateCompression     = 0.9
	gateLowPassAlpha    = 0.1
)

// Analysis heuristics: a frame counts as carrying voice when the energy
// share inside the speech band exceeds the ratio; dominant noise bins are
// those above the peak ratio.
const (
	speechBandLowHz   = 80
	speechBandHighHz  = 3400
	voiceEnergyRatio  = 0.3
	dominantPeakRatio = 0.7
)

// Analysis is an immutable per-frame noise snapshot. It is produced by
// [Engine.Analyze] and never persisted.
type Analysis struct {
	// NoiseLevel is the frame's RMS level.
	NoiseLevel float64

	// SNR is the signal-to-noise ratio in dB relative to the current
	// profile's noise floor, 0 when no profile is set.
	SNR float64

	// DominantFrequencies lists the center frequencies in Hz of spectrum
	// bins exceeding 70% of the frame's peak magnitude, restricted to the
	// configured analysis band.
	DominantFrequencies []float64

	// VoicePresent reports whether the energy share inside [80, 3400] Hz
	// exceeds 30% of the total.
	VoicePresent bool

	// Confidence expresses how reliable the snapshot is, scaled from the
	// noise level.
	Confidence float64

	// Timestamp is the wall-clock time of the analysis.
	Timestamp time.Time
}

// Config tunes the engine. The zero value is completed by
// [Config.withDefaults].
type Config struct {
	// Aggressiveness in [0, 1] scales both the spectral over-subtraction
	// factor and the gate threshold. Default 0.5.
	Aggressiveness float64

	// PreserveVoiceQuality dampens gated samples instead of silencing
	// them, trading residual noise for fewer speech artifacts.
	PreserveVoiceQuality bool

	// SampleRate of processed frames in Hz. Default 44100.
	SampleRate int

	// AnalysisBandLowHz/AnalysisBandHighHz bound the band searched for
	// dominant noise frequencies. Defaults 20 and 8000.
	AnalysisBandLowHz  float64
	AnalysisBandHighHz float64
}

func (c Config) withDefaults() Config {
	if c.Aggressiveness <= 0 || c.Aggressiveness > 1 {
		c.Aggressiveness = 0.5
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.AnalysisBandLowHz <= 0 {
		c.AnalysisBandLowHz = 20
	}
	if c.AnalysisBandHighHz <= 0 {
		c.AnalysisBandHighHz = 8000
	}
	return c
}
