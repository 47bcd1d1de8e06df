// Package language detects the language of transcribed text for the voice
// pipeline. Detection runs up to four independent methods — script patterns,
// word patterns, character frequency, and an optional external detector —
// and falls back to a weighted fusion when no single method is confident.
//
// Supported languages are Bangla and English. Detection never fails: empty
// or unrecognizable input yields a fallback result at low confidence.
package language

// Tag identifies a supported language using its BCP 47 primary subtag.
type Tag string

const (
	// Bangla (Bengali script, U+0980–U+09FF).
	Bangla Tag = "bn"
	// English (Latin script).
	English Tag = "en"
)

// IsValid reports whether the tag is one of the supported languages.
func (t Tag) IsValid() bool {
	switch t {
	case Bangla, English:
		return true
	}
	return false
}

// Method names the detection strategy that produced a [Result].
type Method string

const (
	// MethodPattern covers script-block and word-list matching.
	MethodPattern Method = "pattern"
	// MethodFrequency covers character-frequency and audio band analysis.
	MethodFrequency Method = "frequency"
	// MethodAPI marks results produced by an injected external detector.
	MethodAPI Method = "api"
	// MethodFallback marks low-confidence defaults and fused results.
	MethodFallback Method = "fallback"
)

// Alternative is one ranked candidate in a [Result].
type Alternative struct {
	Language   Tag
	Confidence float64
}

// Result is the outcome of one detection call. Alternatives are ranked by
// descending confidence and the top alternative always equals the reported
// language and confidence.
type Result struct {
	Language     Tag
	Confidence   float64
	Alternatives []Alternative
	Method       Method
}

// Config tunes the detector. The zero value is completed by
// [Config.withDefaults]; all fields are safe to leave unset.
type Config struct {
	// ConfidenceThreshold is the score a single method must reach to be
	// returned directly. Default 0.7.
	ConfidenceThreshold float64

	// AutoSwitch enables language-switch recommendations. Default true
	// (set DisableAutoSwitch to turn off).
	DisableAutoSwitch bool

	// Fallback is the language reported when nothing can be concluded.
	// Default English.
	Fallback Tag
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 0.7
	}
	if !c.Fallback.IsValid() {
		c.Fallback = English
	}
	return c
}
