package language_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/language"
)

func newDetector(t *testing.T) *language.Detector {
	t.Helper()
	return language.New(language.Config{})
}

// sine generates a pure tone for audio-detection tests; freq values of the
// form k·rate/n land exactly on a DFT bin.
func sine(n, rate int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestDetectText_BanglaScript(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	res := d.DetectText(context.Background(), "আমি ভালো আছি")
	if res.Language != language.Bangla {
		t.Fatalf("language: got %q, want %q", res.Language, language.Bangla)
	}
	if res.Confidence < 0.9 {
		t.Errorf("confidence: got %v, want ≥ 0.9", res.Confidence)
	}
	if res.Method != language.MethodPattern {
		t.Errorf("method: got %q, want %q", res.Method, language.MethodPattern)
	}
}

func TestDetectText_EnglishCommonWords(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	res := d.DetectText(context.Background(), "this is the one that we have")
	if res.Language != language.English {
		t.Fatalf("language: got %q, want %q", res.Language, language.English)
	}
	if res.Confidence < 0.7 {
		t.Errorf("confidence: got %v, want ≥ 0.7", res.Confidence)
	}
}

func TestDetectText_EmptyInput(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \t\n  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.DetectText(context.Background(), tt.text)
			if res.Language != language.English {
				t.Errorf("language: got %q, want fallback %q", res.Language, language.English)
			}
			if res.Confidence != 0.5 {
				t.Errorf("confidence: got %v, want 0.5", res.Confidence)
			}
			if res.Method != language.MethodFallback {
				t.Errorf("method: got %q, want %q", res.Method, language.MethodFallback)
			}
		})
	}
}

func TestDetectText_MixedWordsTokensCounted(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	// One Bangla token among unknown Latin tokens: the word-pattern method
	// sees a single match, all of it Bangla.
	res := d.DetectText(context.Background(), "আমি went home")
	if res.Language != language.Bangla {
		t.Fatalf("language: got %q, want %q", res.Language, language.Bangla)
	}
	if res.Confidence < 0.7 {
		t.Errorf("confidence: got %v, want ≥ 0.7", res.Confidence)
	}
}

func TestDetectText_LatinFallsToFrequency(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	// No tokens from the common-word list, so the character-frequency
	// method decides.
	res := d.DetectText(context.Background(), "running quickly zebra")
	if res.Language != language.English {
		t.Fatalf("language: got %q, want %q", res.Language, language.English)
	}
	if res.Method != language.MethodFrequency {
		t.Errorf("method: got %q, want %q", res.Method, language.MethodFrequency)
	}
}

func TestDetectText_FusionPath(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	// Balanced word matches below threshold on both sides force fusion.
	res := d.DetectText(context.Background(), "আমি the xyz")
	if res.Method != language.MethodFallback {
		t.Fatalf("method: got %q, want %q", res.Method, language.MethodFallback)
	}
	if res.Confidence <= 0 || res.Confidence >= 0.7 {
		t.Errorf("fused confidence: got %v, want in (0, 0.7)", res.Confidence)
	}
}

func TestDetectText_AlternativesRanked(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	inputs := []string{
		"আমি ভালো আছি",
		"the quick brown fox",
		"আমি the xyz",
		"",
	}
	for _, text := range inputs {
		res := d.DetectText(context.Background(), text)
		if len(res.Alternatives) != 2 {
			t.Fatalf("%q: alternatives: got %d, want 2", text, len(res.Alternatives))
		}
		if res.Alternatives[0].Confidence < res.Alternatives[1].Confidence {
			t.Errorf("%q: alternatives not ranked: %v", text, res.Alternatives)
		}
		if res.Alternatives[0].Language != res.Language {
			t.Errorf("%q: top alternative %q != result %q", text, res.Alternatives[0].Language, res.Language)
		}
		if res.Alternatives[0].Confidence != res.Confidence {
			t.Errorf("%q: top alternative confidence %v != result %v",
				text, res.Alternatives[0].Confidence, res.Confidence)
		}
	}
}

func TestDetectText_ExternalDetector(t *testing.T) {
	t.Parallel()

	ext := func(_ context.Context, _ string) (language.Result, error) {
		return language.Result{Language: language.Bangla, Confidence: 0.95}, nil
	}
	d := language.New(language.Config{}, language.WithExternal(ext))

	// Unknown Latin-free, Bangla-free text so every local method stays
	// inconclusive and the external detector is consulted.
	res := d.DetectText(context.Background(), "12345 67890")
	if res.Method != language.MethodAPI {
		t.Fatalf("method: got %q, want %q", res.Method, language.MethodAPI)
	}
	if res.Language != language.Bangla || res.Confidence != 0.95 {
		t.Errorf("got (%q, %v), want (bn, 0.95)", res.Language, res.Confidence)
	}
	if len(res.Alternatives) != 2 {
		t.Errorf("alternatives: got %d, want 2", len(res.Alternatives))
	}
}

func TestDetectText_ExternalErrorIgnored(t *testing.T) {
	t.Parallel()

	ext := func(_ context.Context, _ string) (language.Result, error) {
		return language.Result{}, errors.New("service down")
	}
	d := language.New(language.Config{}, language.WithExternal(ext))

	res := d.DetectText(context.Background(), "12345 67890")
	if res.Method != language.MethodFallback {
		t.Errorf("method: got %q, want %q after external failure", res.Method, language.MethodFallback)
	}
}

func TestSwitchRecommended(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	tests := []struct {
		name    string
		current language.Tag
		res     language.Result
		want    bool
	}{
		{"different and confident", language.English, language.Result{Language: language.Bangla, Confidence: 0.9}, true},
		{"same language", language.Bangla, language.Result{Language: language.Bangla, Confidence: 0.9}, false},
		{"below threshold", language.English, language.Result{Language: language.Bangla, Confidence: 0.5}, false},
		{"exactly at threshold", language.English, language.Result{Language: language.Bangla, Confidence: 0.7}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.SwitchRecommended(tt.current, tt.res); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSwitchRecommended_AutoSwitchDisabled(t *testing.T) {
	t.Parallel()
	d := language.New(language.Config{DisableAutoSwitch: true})

	res := language.Result{Language: language.Bangla, Confidence: 0.99}
	if d.SwitchRecommended(language.English, res) {
		t.Error("expected no recommendation with auto-switch disabled")
	}
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	d.UpdateConfig(language.Config{ConfidenceThreshold: 0.95, Fallback: language.Bangla})
	cfg := d.Config()
	if cfg.ConfidenceThreshold != 0.95 {
		t.Errorf("threshold: got %v, want 0.95", cfg.ConfidenceThreshold)
	}
	if cfg.Fallback != language.Bangla {
		t.Errorf("fallback: got %q, want bn", cfg.Fallback)
	}

	// Defaults are re-applied for invalid values.
	d.UpdateConfig(language.Config{ConfidenceThreshold: -1})
	if got := d.Config().ConfidenceThreshold; got != 0.7 {
		t.Errorf("threshold after invalid update: got %v, want default 0.7", got)
	}
}

func TestDetectAudio(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	const (
		n    = 64
		rate = 6400
	)

	tests := []struct {
		name     string
		samples  []float64
		want     language.Tag
		wantConf float64
	}{
		{"mid band dominant", sine(n, rate, 800), language.Bangla, 0.6},
		{"high band dominant", sine(n, rate, 3000), language.English, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := audio.Frame{Samples: tt.samples, SampleRate: rate}
			res := d.DetectAudio(dsp.DFT{}, frame)
			if res.Language != tt.want {
				t.Errorf("language: got %q, want %q", res.Language, tt.want)
			}
			if math.Abs(res.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("confidence: got %v, want %v", res.Confidence, tt.wantConf)
			}
			if res.Method != language.MethodFrequency {
				t.Errorf("method: got %q, want %q", res.Method, language.MethodFrequency)
			}
		})
	}
}

func TestDetectAudio_NoSignal(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	res := d.DetectAudio(dsp.DFT{}, audio.Frame{Samples: make([]float64, 64), SampleRate: 6400})
	if res.Method != language.MethodFallback {
		t.Errorf("method: got %q, want %q for silence", res.Method, language.MethodFallback)
	}
	if res.Confidence != 0.5 {
		t.Errorf("confidence: got %v, want 0.5", res.Confidence)
	}
}

func TestDetectAudio_DeterministicAcrossCalls(t *testing.T) {
	t.Parallel()
	d := newDetector(t)

	frame := audio.Frame{Samples: sine(64, 6400, 800), SampleRate: 6400}
	first := d.DetectAudio(dsp.DFT{}, frame)
	for range 5 {
		got := d.DetectAudio(dsp.DFT{}, frame)
		if got.Language != first.Language || got.Confidence != first.Confidence {
			t.Fatalf("non-deterministic result: got (%q, %v), want (%q, %v)",
				got.Language, got.Confidence, first.Language, first.Confidence)
		}
	}
}

// Any text drawn entirely from the Bangla Unicode block, interleaved only
// with whitespace, must detect as bn with confidence ≥ 0.9.
func TestDetectText_BanglaBlockProperty(t *testing.T) {
	d := language.New(language.Config{})

	rapid.Check(t, func(rt *rapid.T) {
		runes := rapid.SliceOfN(rapid.SampledFrom([]rune("অআইঈউঊএঐওঔকখগঘচছজঝটঠডঢতথদধনপফবভমযরলশষসহািীুূেৈোৌ্")), 1, 40).Draw(rt, "runes")
		words := rapid.IntRange(0, 4).Draw(rt, "extraSpaces")

		var b strings.Builder
		for i, r := range runes {
			b.WriteRune(r)
			if words > 0 && i%3 == 2 {
				b.WriteByte(' ')
			}
		}

		res := d.DetectText(context.Background(), b.String())
		if res.Language != language.Bangla {
			rt.Fatalf("language: got %q, want bn for %q", res.Language, b.String())
		}
		if res.Confidence < 0.9 {
			rt.Fatalf("confidence: got %v, want ≥ 0.9 for %q", res.Confidence, b.String())
		}
	})
}

// Any text assembled purely from the English common-word list must detect
// as en at or above the confidence threshold.
func TestDetectText_EnglishWordListProperty(t *testing.T) {
	d := language.New(language.Config{})

	common := []string{"the", "be", "to", "of", "and", "that", "have", "for", "not", "with", "this", "from", "they", "will", "all", "would", "there", "what"}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "words")
		parts := make([]string, n)
		for i := range parts {
			parts[i] = rapid.SampledFrom(common).Draw(rt, "word")
		}
		text := strings.Join(parts, " ")

		res := d.DetectText(context.Background(), text)
		if res.Language != language.English {
			rt.Fatalf("language: got %q, want en for %q", res.Language, text)
		}
		if res.Confidence < 0.7 {
			rt.Fatalf("confidence: got %v, want ≥ 0.7 for %q", res.Confidence, text)
		}
	})
}
