package language

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// fusionWeights for the multi-method average when no single method clears
// the confidence threshold.
const (
	fusionPatternWeight   = 0.5
	fusionFrequencyWeight = 0.3
	fusionFallbackWeight  = 0.2
)

// fallbackConfidence is reported when nothing can be concluded from the
// input (empty text, silent audio).
const fallbackConfidence = 0.5

// unicodeShortCircuit is the script-block ratio at which detection returns
// immediately without consulting further methods.
const unicodeShortCircuit = 0.9

// ExternalFunc is an optional externally provided detector (for example a
// remote service). It is consulted after the local methods and its result
// is reported with [MethodAPI]. Errors disable it for the current call
// only.
type ExternalFunc func(ctx context.Context, text string) (Result, error)

// Detector runs the detection methods described in the package comment.
// All methods are safe for concurrent use; configuration updates are
// serialized against in-flight detections.
type Detector struct {
	mu       sync.RWMutex
	cfg      Config
	external ExternalFunc
}

// Option configures a [Detector].
type Option func(*Detector)

// WithExternal registers an external detection function consulted when the
// local methods are inconclusive.
func WithExternal(fn ExternalFunc) Option {
	return func(d *Detector) { d.external = fn }
}

// New creates a Detector with the given config completed by defaults.
func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns a snapshot of the current configuration.
func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// UpdateConfig replaces the detector configuration. Missing fields are
// filled with defaults.
func (d *Detector) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg.withDefaults()
}

// DetectText determines the language of text. It never returns an error:
// empty or whitespace-only input yields the fallback language at
// confidence 0.5. The context is only consulted by an external detector
// registered via [WithExternal].
//
// Method order: script-block ratio (short-circuits at ≥ 0.9), word
// patterns, character frequency, external detector, weighted fusion.
func (d *Detector) DetectText(ctx context.Context, text string) Result {
	cfg := d.Config()

	if strings.TrimSpace(text) == "" {
		return fallbackResult(cfg)
	}

	// Script block ratio. A text overwhelmingly in the Bangla block needs
	// no further analysis.
	scriptRatio, _ := banglaRatio(text)
	if scriptRatio >= unicodeShortCircuit {
		return buildResult(MethodPattern, scriptRatio, 1-scriptRatio, cfg.Fallback)
	}

	// Word patterns.
	bnWords, enWords, matched := scoreWords(text)
	if matched > 0 {
		if bnWords >= cfg.ConfidenceThreshold || enWords >= cfg.ConfidenceThreshold {
			return buildResult(MethodPattern, bnWords, enWords, cfg.Fallback)
		}
	}

	// Character frequency.
	bnFreq, enFreq := scoreFrequency(text)
	if bnFreq >= cfg.ConfidenceThreshold || enFreq >= cfg.ConfidenceThreshold {
		return buildResult(MethodFrequency, bnFreq, enFreq, cfg.Fallback)
	}

	// External detector, if registered.
	if d.external != nil {
		if res, err := d.external(ctx, text); err == nil {
			if res.Language.IsValid() && res.Confidence >= cfg.ConfidenceThreshold {
				res.Method = MethodAPI
				if len(res.Alternatives) == 0 {
					res.Alternatives = rankedPair(res.Language, res.Confidence, otherLanguage(res.Language), 0)
				}
				return res
			}
		} else {
			slog.Debug("language: external detector failed", "err", err)
		}
	}

	// Weighted fusion of everything observed so far.
	fusedBn := fusionPatternWeight*max(scriptRatio, bnWords) +
		fusionFrequencyWeight*bnFreq +
		fusionFallbackWeight*fallbackScore(Bangla, cfg.Fallback)
	fusedEn := fusionPatternWeight*enWords +
		fusionFrequencyWeight*enFreq +
		fusionFallbackWeight*fallbackScore(English, cfg.Fallback)

	return buildResult(MethodFallback, fusedBn, fusedEn, cfg.Fallback)
}

// SwitchRecommended reports whether the caller should switch its working
// language to the detected one: the detection must differ from current,
// auto-switching must be enabled, and confidence must clear the threshold.
func (d *Detector) SwitchRecommended(current Tag, res Result) bool {
	cfg := d.Config()
	if cfg.DisableAutoSwitch {
		return false
	}
	return res.Language != current && res.Confidence >= cfg.ConfidenceThreshold
}

// ─────────────────────────────────────────────────────────────────────────────
// Scoring methods
// ─────────────────────────────────────────────────────────────────────────────

// scoreWords counts tokens hitting the per-language word lists. A token
// containing Bangla codepoints counts for Bangla even when not listed.
// Scores are the winning shares of all matched tokens; matched is the
// total number of matching tokens.
func scoreWords(text string) (bn, en float64, matched int) {
	var bnHits, enHits int
	for _, tok := range tokenize(text) {
		if _, ok := banglaWords[tok]; ok || containsBangla(tok) {
			bnHits++
			continue
		}
		if _, ok := englishWords[tok]; ok {
			enHits++
		}
	}
	matched = bnHits + enHits
	if matched == 0 {
		return 0, 0, 0
	}
	return float64(bnHits) / float64(matched), float64(enHits) / float64(matched), matched
}

// scoreFrequency derives per-language scores from character statistics:
// the mean English letter frequency of the text's Latin letters (scaled by
// their share of all characters) against the raw Bangla codepoint ratio.
// The pair is normalized so the scores sum to 1 when either is non-zero.
func scoreFrequency(text string) (bn, en float64) {
	bnRatio, total := banglaRatio(text)
	if total == 0 {
		return 0, 0
	}

	var letterSum float64
	var letters int
	for _, r := range strings.ToLower(text) {
		if f, ok := englishLetterFreq[r]; ok {
			letterSum += f
			letters++
		}
	}

	var enRaw float64
	if letters > 0 {
		enRaw = min(letterSum/float64(letters)/meanEnglishLetterFreq, 1)
		enRaw *= float64(letters) / float64(total)
	}

	sum := bnRatio + enRaw
	if sum == 0 {
		return 0, 0
	}
	return bnRatio / sum, enRaw / sum
}

// fallbackScore is the weak prior granted to the configured fallback
// language during fusion.
func fallbackScore(lang, fallback Tag) float64 {
	if lang == fallback {
		return fallbackConfidence
	}
	return 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Result construction
// ─────────────────────────────────────────────────────────────────────────────

// buildResult ranks the per-language scores into a Result. Ties go to the
// preferred (fallback) language.
func buildResult(method Method, bnScore, enScore float64, preferred Tag) Result {
	winner, winScore := Bangla, bnScore
	loser, loseScore := English, enScore
	if enScore > bnScore || (enScore == bnScore && preferred == English) {
		winner, winScore = English, enScore
		loser, loseScore = Bangla, bnScore
	}
	return Result{
		Language:     winner,
		Confidence:   winScore,
		Alternatives: rankedPair(winner, winScore, loser, loseScore),
		Method:       method,
	}
}

// fallbackResult is returned for input carrying no usable signal.
func fallbackResult(cfg Config) Result {
	return Result{
		Language:     cfg.Fallback,
		Confidence:   fallbackConfidence,
		Alternatives: rankedPair(cfg.Fallback, fallbackConfidence, otherLanguage(cfg.Fallback), 0),
		Method:       MethodFallback,
	}
}

func rankedPair(first Tag, firstConf float64, second Tag, secondConf float64) []Alternative {
	return []Alternative{
		{Language: first, Confidence: firstConf},
		{Language: second, Confidence: secondConf},
	}
}

func otherLanguage(t Tag) Tag {
	if t == Bangla {
		return English
	}
	return Bangla
}
