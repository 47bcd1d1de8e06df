// Package profile defines the persistent profile types of the voice
// pipeline — per-user voice profiles built by calibration and named noise
// profiles maintained by the noise cancellation engine — together with the
// [Store] abstraction that keeps them durable across restarts.
//
// The package is deliberately free of processing logic: pkg/noise and
// pkg/calibration own the algorithms that read and update these types.
package profile

import (
	"time"

	"github.com/kothalabs/kotha/pkg/language"
)

// VoiceProfile aggregates what calibration learned about one speaker. A
// profile is created once per user/voice and only updated by completing a
// calibration session.
type VoiceProfile struct {
	ID       string       `yaml:"id" json:"id"`
	Name     string       `yaml:"name" json:"name"`
	Language language.Tag `yaml:"language" json:"language"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`

	// Calibration holds the aggregated measurements from the most recent
	// completed calibration session.
	Calibration CalibrationData `yaml:"calibration" json:"calibration"`

	// RecognitionAccuracy is the fraction of calibration samples whose
	// recognized text matched the expected text, in [0, 1].
	RecognitionAccuracy float64 `yaml:"recognitionAccuracy" json:"recognitionAccuracy"`

	// SampleCount is the number of samples behind Calibration. Zero means
	// the profile has never been calibrated.
	SampleCount int `yaml:"sampleCount" json:"sampleCount"`
}

// CalibrationData holds the speaker measurements derived from calibration
// samples. All frequencies are in Hz, volumes are normalized RMS levels,
// durations are in seconds.
type CalibrationData struct {
	AverageVolume float64 `yaml:"averageVolume" json:"averageVolume"`
	MinFrequency  float64 `yaml:"minFrequency" json:"minFrequency"`
	MaxFrequency  float64 `yaml:"maxFrequency" json:"maxFrequency"`

	// SpeechRate in words per minute, derived from the expected prompt
	// texts and total sample duration.
	SpeechRate float64 `yaml:"speechRate" json:"speechRate"`

	// PauseDuration approximates the speaker's cadence as the mean sample
	// duration in seconds.
	PauseDuration float64 `yaml:"pauseDuration" json:"pauseDuration"`

	// NoiseFloor is the minimum observed sample volume.
	NoiseFloor float64 `yaml:"noiseFloor" json:"noiseFloor"`

	// Pitch statistics restricted to the [80, 500] Hz speech band.
	PitchMean float64 `yaml:"pitchMean" json:"pitchMean"`
	PitchMin  float64 `yaml:"pitchMin" json:"pitchMin"`
	PitchMax  float64 `yaml:"pitchMax" json:"pitchMax"`

	// Formants are crude estimates at 0.8x, 1.2x and 1.8x the mean
	// frequency.
	Formants []float64 `yaml:"formants" json:"formants"`

	// SpectralCentroid is the volume-weighted mean sample frequency.
	SpectralCentroid float64 `yaml:"spectralCentroid" json:"spectralCentroid"`
}

// NoiseProfile captures the spectral fingerprint of one acoustic
// environment. The noise cancellation engine keeps exactly one profile
// current and nudges it toward new observations with an exponential moving
// average, so the floor and threshold never jump discontinuously after
// creation.
type NoiseProfile struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Environment string `yaml:"environment" json:"environment"`

	// NoiseFloor is the smoothed RMS level of the environment.
	NoiseFloor float64 `yaml:"noiseFloor" json:"noiseFloor"`

	// FrequencyProfile is the smoothed magnitude spectrum of the
	// environment, one entry per analysis bin.
	FrequencyProfile []float64 `yaml:"frequencyProfile" json:"frequencyProfile"`

	// AdaptiveThreshold is recomputed on every update as
	// max(0.005, NoiseFloor*1.5).
	AdaptiveThreshold float64 `yaml:"adaptiveThreshold" json:"adaptiveThreshold"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// Clone returns a deep copy of the profile, decoupling the frequency
// spectrum from the original.
func (p NoiseProfile) Clone() NoiseProfile {
	spectrum := make([]float64, len(p.FrequencyProfile))
	copy(spectrum, p.FrequencyProfile)
	p.FrequencyProfile = spectrum
	return p
}
