package calibration

import (
	"context"
	"fmt"
	"strings"

	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/profile"
)

// Pitch statistics only consider sample frequencies inside the human pitch
// band.
const (
	pitchBandLowHz  = 80
	pitchBandHighHz = 500
)

// Formant estimates as multiples of the mean sample frequency.
var formantFactors = [...]float64{0.8, 1.2, 1.8}

// analyzeSamples aggregates the session's samples into calibration data
// and a recognition accuracy score. Empty sample sets yield zero values.
func analyzeSamples(samples []Sample, accuracyThreshold float64) (profile.CalibrationData, float64) {
	if len(samples) == 0 {
		return profile.CalibrationData{}, 0
	}

	var (
		volumeSum, freqSum    float64
		minFreq, maxFreq      float64
		durationSum           float64
		noiseFloor            float64
		expectedWords         int
		weightedFreqSum       float64
		pitchSum              float64
		pitchMin, pitchMax    float64
		pitchCount            int
		correct               int
	)

	noiseFloor = samples[0].Volume
	minFreq = samples[0].Frequency
	maxFreq = samples[0].Frequency

	for _, s := range samples {
		volumeSum += s.Volume
		freqSum += s.Frequency
		weightedFreqSum += s.Volume * s.Frequency
		durationSum += s.Duration.Seconds()
		expectedWords += len(strings.Fields(s.Expected))

		if s.Volume < noiseFloor {
			noiseFloor = s.Volume
		}
		if s.Frequency < minFreq {
			minFreq = s.Frequency
		}
		if s.Frequency > maxFreq {
			maxFreq = s.Frequency
		}

		if s.Frequency >= pitchBandLowHz && s.Frequency <= pitchBandHighHz {
			if pitchCount == 0 || s.Frequency < pitchMin {
				pitchMin = s.Frequency
			}
			if pitchCount == 0 || s.Frequency > pitchMax {
				pitchMax = s.Frequency
			}
			pitchSum += s.Frequency
			pitchCount++
		}

		if textSimilarity(s.Expected, s.Recognized) > accuracyThreshold {
			correct++
		}
	}

	n := float64(len(samples))
	data := profile.CalibrationData{
		AverageVolume: volumeSum / n,
		MinFrequency:  minFreq,
		MaxFrequency:  maxFreq,
		PauseDuration: durationSum / n,
		NoiseFloor:    noiseFloor,
	}
	if durationSum > 0 {
		data.SpeechRate = float64(expectedWords) / durationSum * 60
	}
	if pitchCount > 0 {
		data.PitchMean = pitchSum / float64(pitchCount)
		data.PitchMin = pitchMin
		data.PitchMax = pitchMax
	}
	meanFreq := freqSum / n
	data.Formants = make([]float64, len(formantFactors))
	for i, f := range formantFactors {
		data.Formants[i] = f * meanFreq
	}
	if volumeSum > 0 {
		data.SpectralCentroid = weightedFreqSum / volumeSum
	}

	return data, float64(correct) / n
}

// textSimilarity compares two utterances at word level: a normalized
// Levenshtein distance over word sequences, lowercased. Identical texts
// score 1, disjoint texts 0.
func textSimilarity(a, b string) float64 {
	aw := strings.Fields(strings.ToLower(a))
	bw := strings.Fields(strings.ToLower(b))
	if len(aw) == 0 && len(bw) == 0 {
		return 1
	}
	longest := max(len(aw), len(bw))
	if longest == 0 {
		return 1
	}
	return 1 - float64(wordDistance(aw, bw))/float64(longest)
}

// wordDistance is the Levenshtein distance over word sequences, computed
// with a single-row DP.
func wordDistance(a, b []string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, prev+cost)
			prev = cur
		}
	}
	return row[len(b)]
}

// Settings are the tuning values derived from a calibrated profile, ready
// to fan out to the other pipeline components.
type Settings struct {
	// VADThreshold is max(2·noiseFloor, 0.01).
	VADThreshold float64

	// SynthesisRate is the speech synthesis speed relative to normal,
	// clamped to [0.5, 2.0].
	SynthesisRate float64

	// RecognitionLanguage is the profile's language.
	RecognitionLanguage language.Tag

	// NoiseAggressiveness suggests a cancellation aggressiveness in
	// [0.3, 1.0], higher for noisier environments.
	NoiseAggressiveness float64
}

// referenceSpeechRate is a typical conversational words-per-minute rate;
// the synthesis rate scales relative to it.
const referenceSpeechRate = 150.0

// OptimalSettings derives tuning values from a calibrated profile.
// Returns nil when the profile has never been calibrated; unknown profile
// ids surface the store's [profile.ErrNotFound].
func (m *Manager) OptimalSettings(ctx context.Context, profileID string) (*Settings, error) {
	p, err := m.store.GetVoice(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("calibration: optimal settings for %q: %w", profileID, err)
	}
	if p.SampleCount == 0 {
		return nil, nil
	}

	rate := 1.0
	if p.Calibration.SpeechRate > 0 {
		rate = p.Calibration.SpeechRate / referenceSpeechRate
	}
	rate = min(max(rate, 0.5), 2.0)

	aggressiveness := min(0.3+p.Calibration.NoiseFloor*20, 1.0)

	return &Settings{
		VADThreshold:        max(2*p.Calibration.NoiseFloor, 0.01),
		SynthesisRate:       rate,
		RecognitionLanguage: p.Language,
		NoiseAggressiveness: aggressiveness,
	}, nil
}
