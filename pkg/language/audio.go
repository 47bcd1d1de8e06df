package language

import (
	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/dsp"
)

// Band edges in Hz for the audio heuristic.
const (
	audioLowHz  = 80
	audioMidHz  = 300
	audioHighHz = 2000
	audioMaxHz  = 8000
)

// audioBaseScore and audioBandWeight shape the deterministic band-affinity
// scores; audioConfidenceCap keeps audio results below the default text
// threshold so they steer, but never override, a confident text detection.
const (
	audioBaseScore     = 0.35
	audioBandWeight    = 0.3
	audioConfidenceCap = 0.6
)

// DetectAudio estimates the spoken language from one audio frame using the
// distribution of spectral energy across low/mid/high bands and the
// dominant frequency. This is a crude deterministic heuristic, not a
// trained classifier: vowel-dense speech concentrates energy in the mid
// band while fricative-heavy speech carries more high-band energy.
// Confidence never exceeds 0.6.
//
// Frames without usable signal yield the fallback result.
func (d *Detector) DetectAudio(transform dsp.Transform, frame audio.Frame) Result {
	cfg := d.Config()

	if len(frame.Samples) < 4 || frame.SampleRate <= 0 {
		return fallbackResult(cfg)
	}

	mags := transform.Spectrum(frame.Samples)
	n := len(frame.Samples)

	low := dsp.BandEnergy(mags, n, frame.SampleRate, audioLowHz, audioMidHz)
	mid := dsp.BandEnergy(mags, n, frame.SampleRate, audioMidHz, audioHighHz)
	high := dsp.BandEnergy(mags, n, frame.SampleRate, audioHighHz, audioMaxHz)
	total := low + mid + high
	if total <= 0 {
		return fallbackResult(cfg)
	}

	bn := audioBaseScore + audioBandWeight*(mid/total)
	en := audioBaseScore + audioBandWeight*(high/total)

	// Low dominant frequencies tilt weakly toward the mid-band candidate.
	if f := dsp.DominantFrequency(mags, n, frame.SampleRate); f > 0 && f < audioMidHz {
		bn += 0.05
	}

	bn = min(bn, audioConfidenceCap)
	en = min(en, audioConfidenceCap)

	res := buildResult(MethodFrequency, bn, en, cfg.Fallback)
	return res
}
