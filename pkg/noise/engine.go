package noise

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/audio/capture"
	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/profile"
)

// Engine is the noise cancellation engine. Frames are cleaned either
// directly through [Engine.Process] or continuously from a
// [capture.Source] via [Engine.Start]. All methods are safe for concurrent
// use; profile mutations are serialized against in-flight reads.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	transform dsp.Transform

	profiles  map[string]*profile.NoiseProfile
	currentID string

	// store, when set, persists profile changes best-effort.
	store profile.Store

	onAnalysis func(Analysis)
	onClean    func(audio.Frame)

	source capture.Source

	// gatePrev carries the low-pass filter state across gated frames.
	gatePrev float64
}

// Option configures an [Engine].
type Option func(*Engine)

// WithStore attaches a persistence backend. Profile creations and updates
// are saved best-effort: store failures are logged, never propagated to
// the frame path.
func WithStore(s profile.Store) Option {
	return func(e *Engine) { e.store = s }
}

// OnAnalysis registers a callback receiving the per-frame [Analysis]
// produced while a capture source is running. It runs synchronously on the
// frame path and must not block.
func OnAnalysis(fn func(Analysis)) Option {
	return func(e *Engine) { e.onAnalysis = fn }
}

// OnClean registers a callback receiving each cleaned frame while a
// capture source is running.
func OnClean(fn func(audio.Frame)) Option {
	return func(e *Engine) { e.onClean = fn }
}

// New creates an Engine using transform for spectral work.
func New(cfg Config, transform dsp.Transform, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		transform: transform,
		profiles:  make(map[string]*profile.NoiseProfile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a snapshot of the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// UpdateConfig replaces the configuration.
func (e *Engine) UpdateConfig(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg.withDefaults()
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start begins continuous acquisition from src. Every delivered frame is
// analyzed and cleaned; the OnAnalysis and OnClean callbacks receive the
// results. Open failures are returned unchanged, so a missing device
// surfaces as [capture.ErrDeviceUnavailable].
func (e *Engine) Start(ctx context.Context, src capture.Source) error {
	e.mu.Lock()
	if e.source != nil {
		e.mu.Unlock()
		return fmt.Errorf("noise: already started")
	}
	e.source = src
	e.mu.Unlock()

	err := src.Start(ctx, func(f audio.Frame) {
		analysis, ok := e.Analyze(f)
		if !ok {
			return
		}
		cleaned := e.Process(f)
		e.mu.RLock()
		onAnalysis, onClean := e.onAnalysis, e.onClean
		e.mu.RUnlock()
		if onAnalysis != nil {
			onAnalysis(analysis)
		}
		if onClean != nil {
			onClean(cleaned)
		}
	})
	if err != nil {
		e.mu.Lock()
		e.source = nil
		e.mu.Unlock()
		return fmt.Errorf("noise: start capture: %w", err)
	}
	return nil
}

// Stop releases the capture source, if any, and clears filter state. It is
// idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	src := e.source
	e.source = nil
	e.gatePrev = 0
	e.mu.Unlock()

	if src == nil {
		return nil
	}
	if err := src.Stop(); err != nil {
		return fmt.Errorf("noise: stop capture: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Frame processing
// ─────────────────────────────────────────────────────────────────────────────

// Process returns a cleaned copy of frame. With a current profile the
// cleaning is spectral subtraction against the profile's spectrum;
// otherwise a basic noise gate. Malformed frames are returned unchanged.
// Given a fixed profile and config the operation is pure.
func (e *Engine) Process(frame audio.Frame) audio.Frame {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return frame
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.profiles[e.currentID]; ok {
		return e.spectralSubtract(frame, p)
	}
	return e.noiseGate(frame)
}

// spectralSubtract removes the profile's spectrum from the frame:
// cleanPower = max(signalPower − α·noisePower, β·signalPower) per bin,
// with the phase preserved through the complex gain. Callers hold e.mu.
func (e *Engine) spectralSubtract(frame audio.Frame, p *profile.NoiseProfile) audio.Frame {
	n := len(frame.Samples)
	alpha := overSubtractionScale * e.cfg.Aggressiveness

	re, im := e.transform.Forward(frame.Samples)
	for k := range n {
		signalPower := re[k]*re[k] + im[k]*im[k]
		if signalPower == 0 {
			continue
		}
		noiseMag := profileMagnitude(p.FrequencyProfile, k, n)
		noisePower := noiseMag * noiseMag

		cleanPower := signalPower - alpha*noisePower
		if floor := spectralFloor * signalPower; cleanPower < floor {
			cleanPower = floor
		}
		gain := math.Sqrt(cleanPower / signalPower)
		re[k] *= gain
		im[k] *= gain
	}

	return audio.Frame{
		Samples:    e.transform.Inverse(re, im),
		SampleRate: frame.SampleRate,
		Timestamp:  frame.Timestamp,
	}
}

// profileMagnitude looks up the noise magnitude for full-spectrum bin k of
// an n-point transform. The stored profile covers bins [0, n/2); upper
// bins mirror the lower half, and profiles recorded at a different frame
// size are mapped proportionally.
func profileMagnitude(spectrum []float64, k, n int) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	half := n / 2
	if half == 0 {
		return 0
	}
	if k >= half {
		k = n - k
		if k >= half {
			k = half - 1
		}
	}
	idx := k * len(spectrum) / half
	if idx >= len(spectrum) {
		idx = len(spectrum) - 1
	}
	return spectrum[idx]
}

// noiseGate is the profile-less fallback: samples below the gate threshold
// are attenuated, samples above pass through mild compression, and the
// output is smoothed with a single-pole low-pass filter. Callers hold e.mu.
func (e *Engine) noiseGate(frame audio.Frame) audio.Frame {
	threshold := gateBaseThreshold * (1 - e.cfg.Aggressiveness)
	attenuation := gateAttenuation
	if e.cfg.PreserveVoiceQuality {
		attenuation = gateSoftAttenuation
	}

	out := make([]float64, len(frame.Samples))
	prev := e.gatePrev
	for i, x := range frame.Samples {
		a := math.Abs(x)
		var y float64
		switch {
		case a < threshold:
			y = x * attenuation
		default:
			y = math.Copysign(threshold+(a-threshold)*gateCompression, x)
		}
		prev = gateLowPassAlpha*y + (1-gateLowPassAlpha)*prev
		out[i] = prev
	}
	e.gatePrev = prev

	return audio.Frame{Samples: out, SampleRate: frame.SampleRate, Timestamp: frame.Timestamp}
}

// Analyze produces a noise snapshot for the frame. Malformed frames are
// skipped: ok is false and no snapshot is produced.
func (e *Engine) Analyze(frame audio.Frame) (a Analysis, ok bool) {
	if len(frame.Samples) < 4 || frame.SampleRate <= 0 {
		return Analysis{}, false
	}

	e.mu.RLock()
	cfg := e.cfg
	current := e.profiles[e.currentID]
	e.mu.RUnlock()

	n := len(frame.Samples)
	level := dsp.RMS(frame.Samples)
	mags := e.transform.Spectrum(frame.Samples)

	var peak float64
	for _, m := range mags {
		if m > peak {
			peak = m
		}
	}
	var dominant []float64
	if peak > 0 {
		for k, m := range mags {
			if m <= dominantPeakRatio*peak {
				continue
			}
			f := dsp.BinFrequency(k, n, frame.SampleRate)
			if f >= cfg.AnalysisBandLowHz && f <= cfg.AnalysisBandHighHz {
				dominant = append(dominant, f)
			}
		}
	}

	total := dsp.TotalEnergy(mags)
	voice := false
	if total > 0 {
		voice = dsp.BandEnergy(mags, n, frame.SampleRate, speechBandLowHz, speechBandHighHz)/total > voiceEnergyRatio
	}

	var snr float64
	if current != nil && current.NoiseFloor > 0 && level > 0 {
		snr = 20 * math.Log10(level/current.NoiseFloor)
	}

	return Analysis{
		NoiseLevel:          level,
		SNR:                 snr,
		DominantFrequencies: dominant,
		VoicePresent:        voice,
		Confidence:          math.Max(0.1, math.Min(1, level*10)),
		Timestamp:           time.Now(),
	}, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Profile registry
// ─────────────────────────────────────────────────────────────────────────────

// CreateProfile records a new noise profile from a representative noise
// frame and registers it. The profile is not made current automatically.
func (e *Engine) CreateProfile(ctx context.Context, name, environment string, frame audio.Frame) (profile.NoiseProfile, error) {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return profile.NoiseProfile{}, fmt.Errorf("noise: create profile %q: frame has no samples", name)
	}

	floor := dsp.RMS(frame.Samples)
	now := time.Now()
	p := &profile.NoiseProfile{
		ID:                uuid.NewString(),
		Name:              name,
		Environment:       environment,
		NoiseFloor:        floor,
		FrequencyProfile:  e.transform.Spectrum(frame.Samples),
		AdaptiveThreshold: math.Max(minAdaptiveThreshold, floor*adaptiveFactor),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	e.mu.Lock()
	e.profiles[p.ID] = p
	e.mu.Unlock()

	e.persist(ctx, p)
	return p.Clone(), nil
}

// UpdateProfile nudges the identified profile toward a new observation
// with an exponential moving average (α = 0.1) and recomputes the adaptive
// threshold. Returns [profile.ErrNotFound] for unknown ids.
func (e *Engine) UpdateProfile(ctx context.Context, id string, frame audio.Frame) error {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return fmt.Errorf("noise: update profile %q: frame has no samples", id)
	}

	observedFloor := dsp.RMS(frame.Samples)
	observed := e.transform.Spectrum(frame.Samples)

	e.mu.Lock()
	p, ok := e.profiles[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("noise: update profile %q: %w", id, profile.ErrNotFound)
	}

	p.NoiseFloor = emaAlpha*observedFloor + (1-emaAlpha)*p.NoiseFloor
	if len(p.FrequencyProfile) != len(observed) {
		// Frame size changed since the profile was recorded; restart the
		// spectrum from the new observation.
		p.FrequencyProfile = observed
	} else {
		for i, m := range observed {
			p.FrequencyProfile[i] = emaAlpha*m + (1-emaAlpha)*p.FrequencyProfile[i]
		}
	}
	p.AdaptiveThreshold = math.Max(minAdaptiveThreshold, p.NoiseFloor*adaptiveFactor)
	p.UpdatedAt = time.Now()
	e.mu.Unlock()

	e.persist(ctx, p)
	return nil
}

// SetProfile makes the identified profile current. Returns
// [profile.ErrNotFound] for unknown ids, leaving the current profile
// unchanged.
func (e *Engine) SetProfile(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.profiles[id]; !ok {
		return fmt.Errorf("noise: set profile %q: %w", id, profile.ErrNotFound)
	}
	e.currentID = id
	return nil
}

// ClearProfile unsets the current profile, returning the engine to the
// noise-gate fallback.
func (e *Engine) ClearProfile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentID = ""
}

// CurrentProfile returns a copy of the current profile, if one is set.
func (e *Engine) CurrentProfile() (profile.NoiseProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[e.currentID]
	if !ok {
		return profile.NoiseProfile{}, false
	}
	return p.Clone(), true
}

// GetProfile returns a copy of the identified profile.
func (e *Engine) GetProfile(id string) (profile.NoiseProfile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[id]
	if !ok {
		return profile.NoiseProfile{}, fmt.Errorf("noise: get profile %q: %w", id, profile.ErrNotFound)
	}
	return p.Clone(), nil
}

// Profiles returns copies of all registered profiles.
func (e *Engine) Profiles() []profile.NoiseProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]profile.NoiseProfile, 0, len(e.profiles))
	for _, p := range e.profiles {
		result = append(result, p.Clone())
	}
	return result
}

// LoadProfiles fills the registry from the attached store. Profiles
// already registered under the same id are replaced. A no-op without a
// store.
func (e *Engine) LoadProfiles(ctx context.Context) error {
	e.mu.RLock()
	store := e.store
	e.mu.RUnlock()
	if store == nil {
		return nil
	}

	list, err := store.ListNoise(ctx)
	if err != nil {
		return fmt.Errorf("noise: load profiles: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range list {
		clone := p.Clone()
		e.profiles[p.ID] = &clone
	}
	return nil
}

// persist saves p to the attached store, logging failures instead of
// propagating them.
func (e *Engine) persist(ctx context.Context, p *profile.NoiseProfile) {
	if e.store == nil {
		return
	}
	e.mu.RLock()
	snapshot := p.Clone()
	e.mu.RUnlock()
	if err := e.store.SaveNoise(ctx, snapshot); err != nil {
		slog.Warn("noise: persist profile failed", "profile", p.ID, "err", err)
	}
}
