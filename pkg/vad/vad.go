// Package vad implements frame-level voice activity detection.
//
// Each frame is reduced to an RMS volume and a dominant frequency; a frame
// is voice-active when its volume exceeds the configured threshold. On top
// of the per-frame classification sits a debounced state machine:
//
//	Idle   → (volume above threshold sustained ≥ MinSpeechDuration)   → Active
//	Active → (volume at/below threshold sustained ≥ MaxSilenceDuration) → Idle
//
// Short dips below the threshold do not end an active segment and short
// bursts do not begin one. Transitions fire the speech-start/speech-end
// callbacks exactly once each; the state machine is driven by stream time
// (accumulated frame durations), not the wall clock, so behavior is
// deterministic for a given frame sequence.
package vad

import (
	"time"
)

// Human voice band in Hz used for the frequency-plausibility confidence
// term.
const (
	voiceBandLowHz  = 80
	voiceBandHighHz = 8000
)

// State of the detector's speech state machine.
type State string

const (
	// StateIdle means no speech segment is in progress.
	StateIdle State = "idle"
	// StateActive means a speech segment is in progress.
	StateActive State = "active"
)

// Result is the per-frame detection outcome.
type Result struct {
	// Timestamp is the stream time at the start of the analyzed frame.
	Timestamp time.Duration

	// Volume is the frame's RMS level.
	Volume float64

	// DominantFrequency is the frequency in Hz of the strongest spectral
	// bin.
	DominantFrequency float64

	// VoiceActive reports whether the frame's volume exceeded the
	// threshold. This is the raw per-frame classification, not the
	// debounced state.
	VoiceActive bool

	// Confidence is the mean of the volume ratio min(volume/threshold, 1)
	// and a frequency-plausibility term (1.0 inside [80, 8000] Hz,
	// 0.5 outside).
	Confidence float64
}

// Config tunes the detector. The zero value is completed by
// [Config.withDefaults].
type Config struct {
	// Threshold is the RMS volume above which a frame counts as voice.
	// Default 0.01.
	Threshold float64

	// MinSpeechDuration is how long volume must stay above the threshold
	// before a speech segment starts. Default 300 ms.
	MinSpeechDuration time.Duration

	// MaxSilenceDuration is how long volume must stay at or below the
	// threshold before an active segment ends. Default 2 s.
	MaxSilenceDuration time.Duration

	// SampleRate of processed frames in Hz. Default 44100.
	SampleRate int

	// FrameSize is the expected number of samples per frame; frames of a
	// different length are still analyzed, the value only sizes capture
	// buffers. Default 4096.
	FrameSize int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.01
	}
	if c.MinSpeechDuration <= 0 {
		c.MinSpeechDuration = 300 * time.Millisecond
	}
	if c.MaxSilenceDuration <= 0 {
		c.MaxSilenceDuration = 2 * time.Second
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 4096
	}
	return c
}
