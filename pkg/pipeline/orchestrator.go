package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kothalabs/kotha/internal/observe"
	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/audio/capture"
	"github.com/kothalabs/kotha/pkg/calibration"
	"github.com/kothalabs/kotha/pkg/command"
	"github.com/kothalabs/kotha/pkg/dsp"
	"github.com/kothalabs/kotha/pkg/language"
	"github.com/kothalabs/kotha/pkg/noise"
	"github.com/kothalabs/kotha/pkg/profile"
	"github.com/kothalabs/kotha/pkg/vad"
)

// Orchestrator owns one instance of each voice-processing component and
// routes input through the enabled subset. The frame path (capture
// callback → [Orchestrator.ProcessFrame]) and the text path
// ([Orchestrator.ProcessVoiceInput]) touch disjoint component state and
// may run concurrently; orchestrator-level state is guarded by o.mu.
type Orchestrator struct {
	mu  sync.RWMutex
	cfg Config

	transform dsp.Transform
	store     profile.Store
	metrics   *observe.Metrics
	stats     *Stats

	vad      *vad.Detector
	noise    *noise.Engine
	language *language.Detector
	commands *command.Matcher
	calib    *calibration.Manager

	onLanguage func(language.Result)
	onCommand  func(command.Result)
	onActivity func(vad.Result)
	onNoise    func(noise.Analysis)
	external   language.ExternalFunc

	status      map[Feature]FeatureState
	initialized bool

	history   []Result
	lastVoice *vad.Result
	lastNoise *noise.Analysis

	source capture.Source
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithTransform sets the frequency-domain transform shared by the frame
// path components. Defaults to [dsp.DFT].
func WithTransform(t dsp.Transform) Option {
	return func(o *Orchestrator) { o.transform = t }
}

// WithStore sets the profile store shared by noise cancellation and
// calibration. Defaults to an in-memory store.
func WithStore(s profile.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithExternalLanguage installs an external detection service consulted by
// the language detector when local methods stay inconclusive.
func WithExternalLanguage(fn language.ExternalFunc) Option {
	return func(o *Orchestrator) { o.external = fn }
}

// OnLanguageDetected registers a callback fired for every text-path
// language detection.
func OnLanguageDetected(fn func(language.Result)) Option {
	return func(o *Orchestrator) { o.onLanguage = fn }
}

// OnVoiceCommand registers a callback fired for every matched command.
func OnVoiceCommand(fn func(command.Result)) Option {
	return func(o *Orchestrator) { o.onCommand = fn }
}

// OnVoiceActivity registers a callback fired for every frame-path voice
// activity sample. It runs on the frame path and must not block.
func OnVoiceActivity(fn func(vad.Result)) Option {
	return func(o *Orchestrator) { o.onActivity = fn }
}

// OnNoiseAnalysis registers a callback fired for every frame-path noise
// analysis. It runs on the frame path and must not block.
func OnNoiseAnalysis(fn func(noise.Analysis)) Option {
	return func(o *Orchestrator) { o.onNoise = fn }
}

// New assembles an Orchestrator and its components. Call
// [Orchestrator.Initialize] before processing input.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg.withDefaults(),
		status: make(map[Feature]FeatureState, len(allFeatures)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transform == nil {
		o.transform = dsp.DFT{}
	}
	if o.store == nil {
		o.store = profile.NewMemStore()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.stats = NewStats(0)

	var langOpts []language.Option
	if o.external != nil {
		langOpts = append(langOpts, language.WithExternal(o.external))
	}
	o.language = language.New(o.cfg.Language, langOpts...)
	o.commands = command.New(o.cfg.Command)
	o.calib = calibration.New(o.cfg.Calibration, o.store, o.transform)
	o.noise = noise.New(o.cfg.Noise, o.transform, noise.WithStore(o.store))
	o.vad = vad.New(o.cfg.VAD, o.transform,
		vad.OnSpeechStart(func(at time.Duration) {
			o.metrics.SpeechSegments.Add(context.Background(), 1)
			slog.Debug("pipeline: speech started", "at", at)
		}),
		vad.OnSpeechEnd(func(at time.Duration) {
			slog.Debug("pipeline: speech ended", "at", at)
		}),
	)
	return o
}

// Initialize probes each enabled feature and brings up the ones that
// respond. A failing feature is logged and marked unavailable without
// aborting the rest; [ErrInitializationFailed] is returned only when no
// enabled feature came up.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	probes := map[Feature]func(context.Context) error{
		FeatureVoiceActivity:     o.probeVoiceActivity,
		FeatureNoiseCancellation: o.probeNoise,
		FeatureLanguageDetection: o.probeLanguage,
		FeatureCommandMatching:   o.probeCommands,
		FeatureCalibration:       o.probeCalibration,
	}

	available := 0
	for _, feat := range allFeatures {
		state := FeatureState{Enabled: o.cfg.Features.Enabled(feat)}
		if state.Enabled {
			if err := probes[feat](ctx); err != nil {
				state.Err = err.Error()
				slog.Warn("pipeline: feature unavailable", "feature", feat, "error", err)
			} else {
				state.Available = true
				available++
			}
		}
		o.status[feat] = state
	}

	if available == 0 {
		return fmt.Errorf("pipeline: initialize: no feature available: %w", ErrInitializationFailed)
	}
	o.initialized = true
	slog.Info("pipeline: initialized", "available", available, "total", len(allFeatures))
	return nil
}

func (o *Orchestrator) probeVoiceActivity(context.Context) error {
	// Exercise the transform once so a broken implementation is caught at
	// startup instead of on the first live frame.
	probe := make([]float64, 16)
	if mags := o.transform.Spectrum(probe); len(mags) != len(probe)/2 {
		return fmt.Errorf("transform returned %d bins for %d samples", len(mags), len(probe))
	}
	return nil
}

func (o *Orchestrator) probeNoise(ctx context.Context) error {
	return o.noise.LoadProfiles(ctx)
}

func (o *Orchestrator) probeLanguage(ctx context.Context) error {
	res := o.language.DetectText(ctx, "initialization probe")
	if !res.Language.IsValid() {
		return fmt.Errorf("detector returned invalid language %q", res.Language)
	}
	return nil
}

func (o *Orchestrator) probeCommands(context.Context) error {
	for _, cmd := range command.DefaultCommands() {
		if err := o.commands.Register(cmd); err != nil {
			return fmt.Errorf("register %q: %w", cmd.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) probeCalibration(ctx context.Context) error {
	if _, err := o.store.ListVoice(ctx); err != nil {
		return fmt.Errorf("profile store: %w", err)
	}
	return nil
}

// FeatureStatus returns a copy of the per-feature availability map.
func (o *Orchestrator) FeatureStatus() map[Feature]FeatureState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[Feature]FeatureState, len(o.status))
	for k, v := range o.status {
		out[k] = v
	}
	return out
}

// available reports whether a feature is enabled and initialized.
func (o *Orchestrator) available(feat Feature) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status[feat].Available
}

// UpdateConfig fans the new configuration out to every component. Feature
// toggles take effect on the next processing call; availability of
// already-initialized features is unchanged.
func (o *Orchestrator) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()

	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()

	o.vad.UpdateConfig(cfg.VAD)
	o.noise.UpdateConfig(cfg.Noise)
	o.language.UpdateConfig(cfg.Language)
	o.commands.UpdateConfig(cfg.Command)
	o.calib.UpdateConfig(cfg.Calibration)
	slog.Info("pipeline: configuration updated")
}

// Config returns a snapshot of the current configuration.
func (o *Orchestrator) Config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// Start begins continuous acquisition from src, feeding every frame
// through [Orchestrator.ProcessFrame]. Device open failures surface as
// [capture.ErrDeviceUnavailable].
func (o *Orchestrator) Start(ctx context.Context, src capture.Source) error {
	o.mu.Lock()
	if o.source != nil {
		o.mu.Unlock()
		return fmt.Errorf("pipeline: already started")
	}
	o.source = src
	o.mu.Unlock()

	if err := src.Start(ctx, func(f audio.Frame) { o.ProcessFrame(f) }); err != nil {
		o.mu.Lock()
		o.source = nil
		o.mu.Unlock()
		return fmt.Errorf("pipeline: start capture: %w", err)
	}
	o.metrics.ActiveSources.Add(ctx, 1)
	return nil
}

// Stop releases the capture source, if any, and stops the frame-path
// components. Idempotent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	src := o.source
	o.source = nil
	o.mu.Unlock()

	if src == nil {
		return nil
	}
	err := src.Stop()
	o.metrics.ActiveSources.Add(context.Background(), -1)
	if stopErr := o.vad.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		return fmt.Errorf("pipeline: stop: %w", err)
	}
	return nil
}

// ProcessFrame runs one frame through the frame path: noise cancellation
// first, voice activity detection on the cleaned frame. The latest
// outcomes are retained for fusion into the next text-path result.
// Malformed frames are skipped.
func (o *Orchestrator) ProcessFrame(frame audio.Frame) {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return
	}
	ctx := context.Background()
	start := time.Now()

	cleaned := frame
	if o.available(FeatureNoiseCancellation) {
		ns := time.Now()
		cleaned = o.noise.Process(frame)
		analysis, ok := o.noise.Analyze(frame)
		o.stats.Record(StageNoise, time.Since(ns))
		o.metrics.RecordFrame(ctx, "noise", time.Since(ns))
		if ok {
			o.metrics.NoiseLevel.Record(ctx, analysis.NoiseLevel)
			o.mu.Lock()
			o.lastNoise = &analysis
			o.mu.Unlock()
			if o.onNoise != nil {
				o.onNoise(analysis)
			}
		}
	}

	if o.available(FeatureVoiceActivity) {
		vs := time.Now()
		res, ok := o.vad.Process(cleaned)
		o.stats.Record(StageVAD, time.Since(vs))
		o.metrics.RecordFrame(ctx, "vad", time.Since(vs))
		if ok {
			o.mu.Lock()
			o.lastVoice = &res
			o.mu.Unlock()
			if o.onActivity != nil {
				o.onActivity(res)
			}
		}
	}

	o.stats.Record(StagePipeline, time.Since(start))
}

// ProcessVoiceInput fuses the text path with the latest frame-path state
// into one [Result]. When frame is non-nil it is run through the frame
// path first, so its voice activity and noise analysis land in the
// result. Missing input never produces an error: empty text simply skips
// detection and matching.
func (o *Orchestrator) ProcessVoiceInput(ctx context.Context, text string, frame *audio.Frame, current language.Tag) Result {
	start := time.Now()
	ctx, span := observe.StartStageSpan(ctx, "process")
	defer span.End()
	o.stats.IncrUtterances()

	res := Result{
		Text:          text,
		ProcessedText: strings.TrimSpace(text),
		Timestamp:     start,
	}

	var peak float64
	if frame != nil {
		o.ProcessFrame(*frame)
		peak = dsp.Peak(frame.Samples)
	}
	o.mu.RLock()
	res.Voice = o.lastVoice
	res.Noise = o.lastNoise
	o.mu.RUnlock()

	matchLang := current
	if res.ProcessedText != "" && o.available(FeatureLanguageDetection) {
		ls := time.Now()
		det := o.language.DetectText(ctx, res.ProcessedText)
		o.stats.Record(StageLanguage, time.Since(ls))
		o.metrics.RecordLanguageDetection(ctx, string(det.Language), string(det.Method))

		res.Detection = &det
		res.Language = det.Language
		res.LanguageConfidence = det.Confidence
		matchLang = det.Language
		if o.onLanguage != nil {
			o.onLanguage(det)
		}
	}

	if res.ProcessedText != "" && o.available(FeatureCommandMatching) {
		cs := time.Now()
		match := o.commands.Match(res.ProcessedText, matchLang)
		o.stats.Record(StageCommand, time.Since(cs))
		if match != nil {
			o.metrics.RecordCommandMatch(ctx, string(match.Command.Action), "matched")
			res.Command = match
			if o.onCommand != nil {
				o.onCommand(*match)
			}
			if err := o.commands.Dispatch(ctx, *match); err != nil {
				o.stats.IncrErrors()
				o.metrics.RecordStageError(ctx, "command")
				slog.Warn("pipeline: command handler failed",
					"command", match.Command.ID, "error", err)
			}
		}
	}

	res.Recommendations = o.recommend(res, peak)

	o.mu.Lock()
	o.history = append(o.history, res)
	if len(o.history) > o.cfg.HistoryLimit {
		keep := o.history[len(o.history)-o.cfg.HistoryCompact:]
		o.history = append(make([]Result, 0, o.cfg.HistoryLimit), keep...)
	}
	o.mu.Unlock()

	o.stats.Record(StagePipeline, time.Since(start))
	o.metrics.RecordFrame(ctx, "pipeline", time.Since(start))
	return res
}

// History returns a copy of the trailing result history, oldest first.
func (o *Orchestrator) History() []Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Result, len(o.history))
	copy(out, o.history)
	return out
}

// Stats returns a point-in-time view of pipeline statistics.
func (o *Orchestrator) Stats() Snapshot {
	return o.stats.Snapshot()
}

// Component accessors for callers wiring handlers, profiles, or
// calibration flows.

// Commands returns the command matcher.
func (o *Orchestrator) Commands() *command.Matcher { return o.commands }

// Noise returns the noise cancellation engine.
func (o *Orchestrator) Noise() *noise.Engine { return o.noise }

// VAD returns the voice activity detector.
func (o *Orchestrator) VAD() *vad.Detector { return o.vad }

// Language returns the language detector.
func (o *Orchestrator) Language() *language.Detector { return o.language }

// Calibration returns the calibration manager.
func (o *Orchestrator) Calibration() *calibration.Manager { return o.calib }
