package noise_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/noise"
	"github.com/kothalabs/kotha/pkg/profile"
)

const testRate = 8000

// noiseFrame builds a deterministic multi-tone frame standing in for
// environment noise.
func noiseFrame(amp float64, n int) audio.Frame {
	samples := make([]float64, n)
	for i := range samples {
		pos := float64(i) / testRate
		samples[i] = amp * (math.Sin(2*math.Pi*150*pos) +
			0.6*math.Sin(2*math.Pi*900*pos) +
			0.3*math.Sin(2*math.Pi*2200*pos))
	}
	return audio.Frame{Samples: samples, SampleRate: testRate}
}

func constFrame(v float64, n int) audio.Frame {
	samples := make([]float64, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = v
		} else {
			samples[i] = -v
		}
	}
	return audio.Frame{Samples: samples, SampleRate: testRate}
}

// TestSpectralSubtraction_ProfileSpectrum feeds the exact frame a profile
// was built from back through the engine at aggressiveness 0.5. Every bin
// is clamped to the spectral floor (1% of signal power), so the output is
// near silence: about 10% of the input amplitude.
func TestSpectralSubtraction_ProfileSpectrum(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := noise.New(noise.Config{Aggressiveness: 0.5, SampleRate: testRate}, dsp.DFT{})
	frame := noiseFrame(0.1, 128)

	p, err := e.CreateProfile(ctx, "office", "indoor", frame)
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := e.SetProfile(p.ID); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	out := e.Process(frame)
	inRMS := dsp.RMS(frame.Samples)
	outRMS := dsp.RMS(out.Samples)

	// gain = sqrt(0.01) = 0.1 per bin; allow slack for the Nyquist bin
	// approximation and DFT rounding.
	if outRMS > 0.12*inRMS {
		t.Errorf("output RMS %v not near-silent (input %v)", outRMS, inRMS)
	}
	if outRMS < 0.08*inRMS {
		t.Errorf("output RMS %v below the spectral floor (input %v)", outRMS, inRMS)
	}
}

func TestSpectralSubtraction_PreservesCleanSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := noise.New(noise.Config{Aggressiveness: 0.5, SampleRate: testRate}, dsp.DFT{})

	// Profile on very quiet noise, then process a much louder signal: the
	// subtraction must leave most of the energy intact.
	p, err := e.CreateProfile(ctx, "quiet", "indoor", noiseFrame(0.001, 128))
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := e.SetProfile(p.ID); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	signal := noiseFrame(0.2, 128)
	out := e.Process(signal)
	if got := dsp.RMS(out.Samples); got < 0.8*dsp.RMS(signal.Samples) {
		t.Errorf("clean signal attenuated too much: out RMS %v, in RMS %v", got, dsp.RMS(signal.Samples))
	}
}

func TestNoiseGate_AttenuatesQuietFrames(t *testing.T) {
	t.Parallel()

	e := noise.New(noise.Config{Aggressiveness: 0.5, SampleRate: testRate}, dsp.DFT{})

	// Gate threshold is 0.01·(1−0.5) = 0.005; amplitude 0.002 sits below.
	quiet := constFrame(0.002, 256)
	out := e.Process(quiet)
	if got, in := dsp.RMS(out.Samples), dsp.RMS(quiet.Samples); got > in/2 {
		t.Errorf("quiet frame not attenuated: out RMS %v, in RMS %v", got, in)
	}
}

func TestNoiseGate_PreserveVoiceQualityDampens(t *testing.T) {
	t.Parallel()

	cfg := noise.Config{Aggressiveness: 0.5, SampleRate: testRate}
	hard := noise.New(cfg, dsp.DFT{})
	cfg.PreserveVoiceQuality = true
	soft := noise.New(cfg, dsp.DFT{})

	// Both gates attenuate a sub-threshold frame, but the quality-preserving
	// gate keeps more of the signal than the hard cut.
	quiet := constFrame(0.002, 256)
	hardRMS := dsp.RMS(hard.Process(quiet).Samples)
	softRMS := dsp.RMS(soft.Process(quiet).Samples)
	inRMS := dsp.RMS(quiet.Samples)

	if softRMS <= hardRMS {
		t.Errorf("soft gate RMS %v not above hard gate RMS %v", softRMS, hardRMS)
	}
	if softRMS >= inRMS {
		t.Errorf("soft gate did not attenuate: out RMS %v, in RMS %v", softRMS, inRMS)
	}
}

func TestNoiseGate_BoundsLoudSamples(t *testing.T) {
	t.Parallel()

	e := noise.New(noise.Config{Aggressiveness: 0.5, SampleRate: testRate}, dsp.DFT{})

	loud := noiseFrame(0.3, 256)
	out := e.Process(loud)
	inPeak := dsp.Peak(loud.Samples)
	if got := dsp.Peak(out.Samples); got > inPeak {
		t.Errorf("gate amplified the signal: out peak %v, in peak %v", got, inPeak)
	}
}

// TestUpdateProfile_EMABounding checks the moving-average invariant: after
// an update the noise floor lies strictly between its previous value and
// the newly observed level.
func TestUpdateProfile_EMABounding(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		e := noise.New(noise.Config{SampleRate: testRate}, dsp.DFT{})

		v1 := rapid.Float64Range(0.001, 0.5).Draw(rt, "initial")
		v2 := rapid.Float64Range(0.001, 0.5).Draw(rt, "observed")
		if math.Abs(v1-v2) < 1e-6 {
			return
		}

		p, err := e.CreateProfile(ctx, "p", "test", constFrame(v1, 64))
		if err != nil {
			rt.Fatalf("CreateProfile: %v", err)
		}
		if err := e.UpdateProfile(ctx, p.ID, constFrame(v2, 64)); err != nil {
			rt.Fatalf("UpdateProfile: %v", err)
		}

		got, err := e.GetProfile(p.ID)
		if err != nil {
			rt.Fatalf("GetProfile: %v", err)
		}
		lo, hi := math.Min(v1, v2), math.Max(v1, v2)
		if got.NoiseFloor <= lo || got.NoiseFloor >= hi {
			rt.Fatalf("noise floor %v not strictly between %v and %v", got.NoiseFloor, lo, hi)
		}
		if want := math.Max(0.005, got.NoiseFloor*1.5); got.AdaptiveThreshold != want {
			rt.Fatalf("adaptive threshold: got %v, want %v", got.AdaptiveThreshold, want)
		}
	})
}

func TestSetProfile_Unknown(t *testing.T) {
	t.Parallel()

	e := noise.New(noise.Config{}, dsp.DFT{})
	if err := e.SetProfile("missing"); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("SetProfile: got %v, want ErrNotFound", err)
	}
	if _, ok := e.CurrentProfile(); ok {
		t.Error("CurrentProfile reports a profile after failed SetProfile")
	}
	if err := e.UpdateProfile(context.Background(), "missing", constFrame(0.1, 64)); !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("UpdateProfile: got %v, want ErrNotFound", err)
	}
}

func TestAnalyze_Snapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := noise.New(noise.Config{SampleRate: testRate}, dsp.DFT{})

	// A 300 Hz tone sits inside the speech band, so the voice-presence
	// heuristic must trigger and 300 Hz must appear among the dominant
	// frequencies.
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 0.1 * math.Sin(2*math.Pi*300*float64(i)/testRate)
	}
	frame := audio.Frame{Samples: samples, SampleRate: testRate}

	a, ok := e.Analyze(frame)
	if !ok {
		t.Fatal("Analyze rejected a valid frame")
	}
	if !a.VoicePresent {
		t.Error("VoicePresent = false for a 300 Hz tone")
	}
	if math.Abs(a.NoiseLevel-0.1/math.Sqrt2) > 0.01 {
		t.Errorf("NoiseLevel: got %v, want ~%v", a.NoiseLevel, 0.1/math.Sqrt2)
	}
	found := false
	binWidth := float64(testRate) / 256
	for _, f := range a.DominantFrequencies {
		if math.Abs(f-300) <= binWidth {
			found = true
		}
	}
	if !found {
		t.Errorf("dominant frequencies %v do not include ~300 Hz", a.DominantFrequencies)
	}
	if a.SNR != 0 {
		t.Errorf("SNR without profile: got %v, want 0", a.SNR)
	}

	// With a quiet profile current, the same frame reads as positive SNR.
	p, err := e.CreateProfile(ctx, "quiet", "indoor", constFrame(0.001, 64))
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := e.SetProfile(p.ID); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	a, _ = e.Analyze(frame)
	if a.SNR <= 0 {
		t.Errorf("SNR with quiet profile: got %v, want > 0", a.SNR)
	}
}

func TestAnalyze_SkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	e := noise.New(noise.Config{}, dsp.DFT{})
	if _, ok := e.Analyze(audio.Frame{SampleRate: testRate}); ok {
		t.Error("empty frame was not skipped")
	}
}

func TestEngine_StorePersistence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := profile.NewMemStore()
	e := noise.New(noise.Config{SampleRate: testRate}, dsp.DFT{}, noise.WithStore(store))

	p, err := e.CreateProfile(ctx, "office", "indoor", noiseFrame(0.05, 64))
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	saved, err := store.GetNoise(ctx, p.ID)
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if saved.Name != "office" {
		t.Errorf("persisted name %q, want office", saved.Name)
	}

	// A fresh engine sees the stored profile after LoadProfiles.
	e2 := noise.New(noise.Config{SampleRate: testRate}, dsp.DFT{}, noise.WithStore(store))
	if err := e2.LoadProfiles(ctx); err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if err := e2.SetProfile(p.ID); err != nil {
		t.Errorf("SetProfile after load: %v", err)
	}
}
