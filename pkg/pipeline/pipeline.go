// Package pipeline fuses the voice-processing components into one
// orchestrator: voice activity detection, noise cancellation, language
// detection, command matching and calibration behind a single
// [Orchestrator] with per-feature enablement and degradation.
//
// The orchestrator owns one instance of each component. Frames arrive on
// the frame path (a capture callback or [Orchestrator.ProcessFrame]) and
// finalized utterances on the text path
// ([Orchestrator.ProcessVoiceInput]); the two paths touch disjoint state
// and may run concurrently. Failure of individual features degrades them
// without shutting down the pipeline; only total failure of every enabled
// feature surfaces [ErrInitializationFailed].
package pipeline

import (
	"errors"
	"time"

	"github.com/kothalabs/kotha/pkg/command"
	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/noise"
	"github.com/kothalabs/kotha/pkg/vad"

	"github.com/kothalabs/kotha/pkg/calibration"
)

// ErrInitializationFailed is returned by [Orchestrator.Initialize] when no
// enabled feature could be brought up.
var ErrInitializationFailed = errors.New("pipeline initialization failed")

// Feature identifies one orchestrated sub-feature.
type Feature string

const (
	FeatureVoiceActivity     Feature = "voice_activity"
	FeatureNoiseCancellation Feature = "noise_cancellation"
	FeatureLanguageDetection Feature = "language_detection"
	FeatureCommandMatching   Feature = "command_matching"
	FeatureCalibration       Feature = "calibration"
)

// allFeatures lists every feature in a stable order.
var allFeatures = []Feature{
	FeatureVoiceActivity,
	FeatureNoiseCancellation,
	FeatureLanguageDetection,
	FeatureCommandMatching,
	FeatureCalibration,
}

// Features toggles sub-features off. The zero value enables everything.
type Features struct {
	DisableVoiceActivity     bool `yaml:"disable_voice_activity"`
	DisableNoiseCancellation bool `yaml:"disable_noise_cancellation"`
	DisableLanguageDetection bool `yaml:"disable_language_detection"`
	DisableCommandMatching   bool `yaml:"disable_command_matching"`
	DisableCalibration       bool `yaml:"disable_calibration"`
}

// Enabled reports whether f enables the given feature.
func (f Features) Enabled(feat Feature) bool {
	switch feat {
	case FeatureVoiceActivity:
		return !f.DisableVoiceActivity
	case FeatureNoiseCancellation:
		return !f.DisableNoiseCancellation
	case FeatureLanguageDetection:
		return !f.DisableLanguageDetection
	case FeatureCommandMatching:
		return !f.DisableCommandMatching
	case FeatureCalibration:
		return !f.DisableCalibration
	}
	return false
}

// FeatureState is one feature's availability as reported by
// [Orchestrator.FeatureStatus].
type FeatureState struct {
	// Enabled mirrors the configured toggle.
	Enabled bool

	// Available reports whether the feature initialized successfully.
	// Always false while Enabled is false.
	Available bool

	// Err holds the initialization failure, empty when Available.
	Err string
}

// Config aggregates the sub-component configurations. The zero value is
// completed with each component's own defaults.
type Config struct {
	Features Features `yaml:"features"`

	VAD         vad.Config         `yaml:"vad"`
	Noise       noise.Config       `yaml:"noise"`
	Language    language.Config    `yaml:"language"`
	Command     command.Config     `yaml:"command"`
	Calibration calibration.Config `yaml:"calibration"`

	// HistoryLimit bounds the trailing result history; once exceeded the
	// history is compacted down to HistoryCompact entries. Defaults 100
	// and 50.
	HistoryLimit   int `yaml:"history_limit"`
	HistoryCompact int `yaml:"history_compact"`
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.HistoryCompact <= 0 || c.HistoryCompact >= c.HistoryLimit {
		c.HistoryCompact = c.HistoryLimit / 2
	}
	return c
}

// Result is the per-turn aggregate produced by
// [Orchestrator.ProcessVoiceInput]. Optional sections are nil when the
// producing feature was disabled, unavailable, or had no input to work on.
type Result struct {
	// Text is the original input text.
	Text string

	// ProcessedText is the normalized form passed to detection and
	// matching.
	ProcessedText string

	// Language and LanguageConfidence summarize the detection outcome;
	// Detection holds the full result.
	Language           language.Tag
	LanguageConfidence float64
	Detection          *language.Result

	// Command is the matched command, nil when nothing matched.
	Command *command.Result

	// Voice is the most recent voice-activity sample for the supplied
	// frame.
	Voice *vad.Result

	// Noise is the noise analysis of the supplied frame.
	Noise *noise.Analysis

	// Recommendations are human-readable tuning hints derived from the
	// turn and recent history.
	Recommendations []string

	// Timestamp of processing.
	Timestamp time.Time
}
