package calibration_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/calibration"
	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/profile"
)

const testRate = 8000

// sineFrame is 0.1 s of a pure tone, long enough that the dominant
// frequency lands on an exact DFT bin (bin width 10 Hz).
func sineFrame(freq, amp float64) audio.Frame {
	samples := make([]float64, testRate/10)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return audio.Frame{Samples: samples, SampleRate: testRate}
}

func newTestManager(t *testing.T, cfg calibration.Config) (*calibration.Manager, *profile.MemStore, string) {
	t.Helper()
	store := profile.NewMemStore()
	p, err := store.AddVoice(context.Background(), profile.VoiceProfile{
		Name:     "tester",
		Language: language.English,
	})
	if err != nil {
		t.Fatalf("AddVoice: %v", err)
	}
	return calibration.New(cfg, store, dsp.DFT{}), store, p.ID
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store, profileID := newTestManager(t, calibration.Config{MinSamples: 3})

	s, err := m.StartCalibration(ctx, profileID)
	if err != nil {
		t.Fatalf("StartCalibration: %v", err)
	}
	if s.Status != calibration.StatusActive {
		t.Fatalf("status = %q, want %q", s.Status, calibration.StatusActive)
	}
	if s.TotalSteps != 3 {
		t.Fatalf("TotalSteps = %d, want 3", s.TotalSteps)
	}

	samples := []calibration.Sample{
		{Expected: "one two", Recognized: "one two", Volume: 0.05, Frequency: 180, Duration: time.Second},
		{Expected: "three four", Recognized: "three four", Volume: 0.10, Frequency: 220, Duration: time.Second},
		{Expected: "five six", Recognized: "completely wrong words", Volume: 0.15, Frequency: 260, Duration: time.Second},
	}
	for i, sample := range samples {
		got, err := m.AddSample(s.ID, sample)
		if err != nil {
			t.Fatalf("AddSample %d: %v", i, err)
		}
		if got.CurrentStep != i+1 {
			t.Errorf("CurrentStep = %d, want %d", got.CurrentStep, i+1)
		}
		wantProgress := float64(i+1) / 3 * 100
		if math.Abs(got.Progress-wantProgress) > 1e-9 {
			t.Errorf("Progress = %v, want %v", got.Progress, wantProgress)
		}
	}

	if _, err := m.AddSample(s.ID, calibration.Sample{Expected: "extra"}); !errors.Is(err, calibration.ErrSessionFull) {
		t.Fatalf("AddSample past TotalSteps: err = %v, want ErrSessionFull", err)
	}

	p, err := m.CompleteCalibration(ctx, s.ID)
	if err != nil {
		t.Fatalf("CompleteCalibration: %v", err)
	}
	if p.SampleCount != 3 {
		t.Errorf("SampleCount = %d, want 3", p.SampleCount)
	}
	// Two of three samples recognized verbatim.
	if want := 2.0 / 3.0; math.Abs(p.RecognitionAccuracy-want) > 1e-9 {
		t.Errorf("RecognitionAccuracy = %v, want %v", p.RecognitionAccuracy, want)
	}
	cal := p.Calibration
	if want := 0.1; math.Abs(cal.AverageVolume-want) > 1e-9 {
		t.Errorf("AverageVolume = %v, want %v", cal.AverageVolume, want)
	}
	if cal.MinFrequency != 180 || cal.MaxFrequency != 260 {
		t.Errorf("frequency range = [%v, %v], want [180, 260]", cal.MinFrequency, cal.MaxFrequency)
	}
	if cal.NoiseFloor != 0.05 {
		t.Errorf("NoiseFloor = %v, want 0.05", cal.NoiseFloor)
	}
	// 6 expected words over 3 seconds.
	if want := 120.0; math.Abs(cal.SpeechRate-want) > 1e-9 {
		t.Errorf("SpeechRate = %v, want %v", cal.SpeechRate, want)
	}
	// All three sample frequencies sit in the pitch band.
	if want := 220.0; math.Abs(cal.PitchMean-want) > 1e-9 {
		t.Errorf("PitchMean = %v, want %v", cal.PitchMean, want)
	}
	if cal.PitchMin != 180 || cal.PitchMax != 260 {
		t.Errorf("pitch range = [%v, %v], want [180, 260]", cal.PitchMin, cal.PitchMax)
	}
	if len(cal.Formants) != 3 {
		t.Fatalf("len(Formants) = %d, want 3", len(cal.Formants))
	}
	if want := 0.8 * 220; math.Abs(cal.Formants[0]-want) > 1e-9 {
		t.Errorf("Formants[0] = %v, want %v", cal.Formants[0], want)
	}

	stored, err := store.GetVoice(ctx, profileID)
	if err != nil {
		t.Fatalf("GetVoice after complete: %v", err)
	}
	if stored.SampleCount != 3 {
		t.Errorf("stored SampleCount = %d, want 3", stored.SampleCount)
	}

	// Terminal state: no further writes.
	if _, err := m.CompleteCalibration(ctx, s.ID); !errors.Is(err, calibration.ErrSessionNotActive) {
		t.Errorf("second CompleteCalibration: err = %v, want ErrSessionNotActive", err)
	}
	if _, err := m.AddSample(s.ID, calibration.Sample{}); !errors.Is(err, calibration.ErrSessionNotActive) {
		t.Errorf("AddSample after complete: err = %v, want ErrSessionNotActive", err)
	}

	final, err := m.Session(s.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if final.Status != calibration.StatusCompleted {
		t.Errorf("status = %q, want %q", final.Status, calibration.StatusCompleted)
	}
	if final.EndedAt.IsZero() {
		t.Error("EndedAt not set on completed session")
	}
}

func TestStartCalibration_UnknownProfile(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestManager(t, calibration.Config{})
	if _, err := m.StartCalibration(context.Background(), "no-such-profile"); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("err = %v, want profile.ErrNotFound", err)
	}
}

func TestCancelCalibration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store, profileID := newTestManager(t, calibration.Config{})

	s, err := m.StartCalibration(ctx, profileID)
	if err != nil {
		t.Fatalf("StartCalibration: %v", err)
	}
	if _, err := m.AddSample(s.ID, calibration.Sample{Expected: "hello", Volume: 0.2}); err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	if err := m.CancelCalibration(s.ID); err != nil {
		t.Fatalf("CancelCalibration: %v", err)
	}
	if err := m.CancelCalibration(s.ID); !errors.Is(err, calibration.ErrSessionNotActive) {
		t.Errorf("second cancel: err = %v, want ErrSessionNotActive", err)
	}
	if err := m.CancelCalibration("missing"); !errors.Is(err, calibration.ErrSessionNotFound) {
		t.Errorf("cancel unknown: err = %v, want ErrSessionNotFound", err)
	}

	// Cancelled sessions never touch the profile.
	p, err := store.GetVoice(ctx, profileID)
	if err != nil {
		t.Fatalf("GetVoice: %v", err)
	}
	if p.SampleCount != 0 {
		t.Errorf("SampleCount = %d after cancel, want 0", p.SampleCount)
	}
}

func TestAddSample_DerivesFromFrame(t *testing.T) {
	t.Parallel()
	m, _, profileID := newTestManager(t, calibration.Config{MinSamples: 1})

	s, err := m.StartCalibration(context.Background(), profileID)
	if err != nil {
		t.Fatalf("StartCalibration: %v", err)
	}
	got, err := m.AddSample(s.ID, calibration.Sample{
		Expected: "tone",
		Frame:    sineFrame(200, 0.5),
	})
	if err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	sample := got.Samples[0]
	if want := 0.5 / math.Sqrt2; math.Abs(sample.Volume-want) > 1e-3 {
		t.Errorf("Volume = %v, want ≈ %v", sample.Volume, want)
	}
	if sample.Frequency != 200 {
		t.Errorf("Frequency = %v, want 200", sample.Frequency)
	}
	if sample.Duration != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", sample.Duration)
	}
	if sample.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestRecognitionAccuracy_Extremes(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := profile.NewMemStore()
		p, err := store.AddVoice(ctx, profile.VoiceProfile{Name: "r", Language: language.English})
		if err != nil {
			t.Fatalf("AddVoice: %v", err)
		}
		m := calibration.New(calibration.Config{MinSamples: 1}, store, dsp.DFT{})

		words := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 6).Draw(t, "words")
		expected := strings.Join(words, " ")
		perfect := rapid.Bool().Draw(t, "perfect")
		recognized := expected
		if !perfect {
			recognized = ""
		}

		s, err := m.StartCalibration(ctx, p.ID)
		if err != nil {
			t.Fatalf("StartCalibration: %v", err)
		}
		if _, err := m.AddSample(s.ID, calibration.Sample{
			Expected:   expected,
			Recognized: recognized,
			Volume:     0.1,
			Duration:   time.Second,
		}); err != nil {
			t.Fatalf("AddSample: %v", err)
		}
		got, err := m.CompleteCalibration(ctx, s.ID)
		if err != nil {
			t.Fatalf("CompleteCalibration: %v", err)
		}

		want := 0.0
		if perfect {
			want = 1.0
		}
		if got.RecognitionAccuracy != want {
			t.Fatalf("RecognitionAccuracy = %v, want %v (expected %q, recognized %q)",
				got.RecognitionAccuracy, want, expected, recognized)
		}
	})
}

func TestOptimalSettings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, _, profileID := newTestManager(t, calibration.Config{MinSamples: 2})

	// Never calibrated: no settings, no error.
	settings, err := m.OptimalSettings(ctx, profileID)
	if err != nil {
		t.Fatalf("OptimalSettings uncalibrated: %v", err)
	}
	if settings != nil {
		t.Fatalf("settings = %+v, want nil for uncalibrated profile", settings)
	}

	s, err := m.StartCalibration(ctx, profileID)
	if err != nil {
		t.Fatalf("StartCalibration: %v", err)
	}
	for _, sample := range []calibration.Sample{
		{Expected: "one two", Recognized: "one two", Volume: 0.05, Frequency: 200, Duration: time.Second},
		{Expected: "three four", Recognized: "three four", Volume: 0.15, Frequency: 240, Duration: time.Second},
	} {
		if _, err := m.AddSample(s.ID, sample); err != nil {
			t.Fatalf("AddSample: %v", err)
		}
	}
	if _, err := m.CompleteCalibration(ctx, s.ID); err != nil {
		t.Fatalf("CompleteCalibration: %v", err)
	}

	settings, err = m.OptimalSettings(ctx, profileID)
	if err != nil {
		t.Fatalf("OptimalSettings: %v", err)
	}
	if settings == nil {
		t.Fatal("settings = nil after calibration")
	}
	// Noise floor is the quietest sample's volume.
	if want := 2 * 0.05; math.Abs(settings.VADThreshold-want) > 1e-9 {
		t.Errorf("VADThreshold = %v, want %v", settings.VADThreshold, want)
	}
	// 4 words over 2 seconds is 120 wpm against a 150 wpm reference.
	if want := 120.0 / 150.0; math.Abs(settings.SynthesisRate-want) > 1e-9 {
		t.Errorf("SynthesisRate = %v, want %v", settings.SynthesisRate, want)
	}
	if settings.SynthesisRate < 0.5 || settings.SynthesisRate > 2.0 {
		t.Errorf("SynthesisRate = %v outside [0.5, 2.0]", settings.SynthesisRate)
	}
	if settings.RecognitionLanguage != language.English {
		t.Errorf("RecognitionLanguage = %q, want %q", settings.RecognitionLanguage, language.English)
	}

	if _, err := m.OptimalSettings(ctx, "missing"); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("unknown profile: err = %v, want profile.ErrNotFound", err)
	}
}

func TestDefaultPrompts(t *testing.T) {
	t.Parallel()
	bn := calibration.DefaultPrompts(language.Bangla)
	en := calibration.DefaultPrompts(language.English)
	if len(bn) == 0 || len(en) == 0 {
		t.Fatalf("empty prompt sets: bn=%d en=%d", len(bn), len(en))
	}
	for _, p := range bn {
		if !strings.ContainsFunc(p, func(r rune) bool { return r >= 0x0980 && r <= 0x09FF }) {
			t.Errorf("prompt %q has no Bangla characters", p)
		}
	}
	// Unknown tags fall back to the English set.
	if got := calibration.DefaultPrompts(language.Tag("xx")); len(got) != len(en) {
		t.Errorf("fallback prompts = %d entries, want %d", len(got), len(en))
	}
}
