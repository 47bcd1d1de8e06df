package vad

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kothalabs/kotha/pkg/audio"
	"github.com/kothalabs/kotha/pkg/audio/capture"
	"github.com/kothalabs/kotha/pkg/dsp"
)

// Detector is the voice activity detector. Frames are fed either directly
// through [Detector.Process] or continuously from a [capture.Source] via
// [Detector.Start]. All methods are safe for concurrent use, though frames
// are expected to arrive from one goroutine at a time (the capture
// callback is the frame-path scheduler).
type Detector struct {
	mu        sync.Mutex
	cfg       Config
	transform dsp.Transform

	onResult      func(Result)
	onSpeechStart func(time.Duration)
	onSpeechEnd   func(time.Duration)

	source capture.Source

	// State machine, driven by accumulated stream time.
	clock      time.Duration
	active     bool
	aboveStart time.Duration
	haveAbove  bool
	belowStart time.Duration
	haveBelow  bool
}

// Option configures a [Detector].
type Option func(*Detector)

// OnResult registers a callback receiving every per-frame [Result]. The
// callback runs synchronously on the frame path and must not block.
func OnResult(fn func(Result)) Option {
	return func(d *Detector) { d.onResult = fn }
}

// OnSpeechStart registers a callback fired exactly once per Idle→Active
// transition with the stream time of the transition.
func OnSpeechStart(fn func(time.Duration)) Option {
	return func(d *Detector) { d.onSpeechStart = fn }
}

// OnSpeechEnd registers a callback fired exactly once per Active→Idle
// transition with the stream time of the transition.
func OnSpeechEnd(fn func(time.Duration)) Option {
	return func(d *Detector) { d.onSpeechEnd = fn }
}

// New creates a Detector using transform for spectral analysis.
func New(cfg Config, transform dsp.Transform, opts ...Option) *Detector {
	d := &Detector{cfg: cfg.withDefaults(), transform: transform}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns a snapshot of the current configuration.
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// UpdateConfig replaces the configuration. The state machine is not reset:
// an active segment continues under the new thresholds.
func (d *Detector) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg.withDefaults()
}

// State returns the debounced speech state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return StateActive
	}
	return StateIdle
}

// Start begins continuous acquisition from src, feeding every delivered
// frame through [Detector.Process]. Open failures are returned unchanged,
// so a missing device surfaces as [capture.ErrDeviceUnavailable].
func (d *Detector) Start(ctx context.Context, src capture.Source) error {
	d.mu.Lock()
	if d.source != nil {
		d.mu.Unlock()
		return fmt.Errorf("vad: already started")
	}
	d.source = src
	d.mu.Unlock()

	if err := src.Start(ctx, func(f audio.Frame) { d.Process(f) }); err != nil {
		d.mu.Lock()
		d.source = nil
		d.mu.Unlock()
		return fmt.Errorf("vad: start capture: %w", err)
	}
	return nil
}

// Stop releases the capture source, if any, and resets the state machine
// to Idle. It is idempotent. No speech-end callback fires for a segment
// cut off by Stop.
func (d *Detector) Stop() error {
	d.mu.Lock()
	src := d.source
	d.source = nil
	d.reset()
	d.mu.Unlock()

	if src == nil {
		return nil
	}
	if err := src.Stop(); err != nil {
		return fmt.Errorf("vad: stop capture: %w", err)
	}
	return nil
}

// reset clears the state machine. Callers must hold d.mu.
func (d *Detector) reset() {
	d.clock = 0
	d.active = false
	d.haveAbove = false
	d.haveBelow = false
}

// Process analyzes one frame, advances the state machine, and fires any
// registered callbacks. Malformed frames (no samples or an invalid sample
// rate) are skipped: ok is false and no result is emitted.
func (d *Detector) Process(frame audio.Frame) (res Result, ok bool) {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return Result{}, false
	}

	d.mu.Lock()
	cfg := d.cfg

	volume := dsp.RMS(frame.Samples)
	mags := d.transform.Spectrum(frame.Samples)
	dominant := dsp.DominantFrequency(mags, len(frame.Samples), frame.SampleRate)

	volumeRatio := min(volume/cfg.Threshold, 1)
	freqPlausibility := 0.5
	if dominant >= voiceBandLowHz && dominant <= voiceBandHighHz {
		freqPlausibility = 1.0
	}

	res = Result{
		Timestamp:         d.clock,
		Volume:            volume,
		DominantFrequency: dominant,
		VoiceActive:       volume > cfg.Threshold,
		Confidence:        (volumeRatio + freqPlausibility) / 2,
	}

	start := d.clock
	end := start + frame.Duration()
	d.clock = end

	var fireStart, fireEnd bool
	if res.VoiceActive {
		d.haveBelow = false
		if !d.active {
			if !d.haveAbove {
				d.aboveStart = start
				d.haveAbove = true
			}
			if end-d.aboveStart >= cfg.MinSpeechDuration {
				d.active = true
				d.haveAbove = false
				fireStart = true
			}
		}
	} else {
		d.haveAbove = false
		if d.active {
			if !d.haveBelow {
				d.belowStart = start
				d.haveBelow = true
			}
			if end-d.belowStart >= cfg.MaxSilenceDuration {
				d.active = false
				d.haveBelow = false
				fireEnd = true
			}
		}
	}

	onResult, onStart, onEnd := d.onResult, d.onSpeechStart, d.onSpeechEnd
	d.mu.Unlock()

	if onResult != nil {
		onResult(res)
	}
	if fireStart && onStart != nil {
		onStart(end)
	}
	if fireEnd && onEnd != nil {
		onEnd(end)
	}
	return res, true
}
