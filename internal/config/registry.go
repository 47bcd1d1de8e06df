package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kothalabs/kotha/pkg/audio/capture"
	"github.com/kothalabs/kotha/pkg/profile"
	profilepg "github.com/kothalabs/kotha/pkg/profile/postgres"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: factory not registered")

// Registry maps source kinds and store backends to their constructor
// functions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[SourceKind]func(CaptureConfig) (capture.Source, error)
	stores  map[StoreBackend]func(context.Context, StoreConfig) (profile.Store, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[SourceKind]func(CaptureConfig) (capture.Source, error)),
		stores:  make(map[StoreBackend]func(context.Context, StoreConfig) (profile.Store, error)),
	}
}

// DefaultRegistry returns a [Registry] preloaded with the built-in capture
// sources (device, file, tone) and profile stores (memory, postgres).
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterSource(SourceDevice, func(cfg CaptureConfig) (capture.Source, error) {
		return capture.NewDevice(cfg.EffectiveSampleRate(), cfg.EffectiveFrameSize()), nil
	})
	r.RegisterSource(SourceFile, func(cfg CaptureConfig) (capture.Source, error) {
		src := capture.NewFile(cfg.File, cfg.EffectiveFrameSize())
		src.Realtime = cfg.Realtime
		return src, nil
	})
	r.RegisterSource(SourceTone, func(cfg CaptureConfig) (capture.Source, error) {
		src := capture.NewTone(cfg.EffectiveSampleRate(), cfg.EffectiveFrameSize())
		if cfg.Tone.Frequency > 0 {
			src.Frequency = cfg.Tone.Frequency
		}
		if cfg.Tone.Amplitude > 0 {
			src.Amplitude = cfg.Tone.Amplitude
		}
		src.SpeechDur = time.Duration(cfg.Tone.SpeechMs) * time.Millisecond
		src.SilenceDur = time.Duration(cfg.Tone.SilenceMs) * time.Millisecond
		src.Realtime = cfg.Realtime
		return src, nil
	})

	r.RegisterStore(StoreMemory, func(context.Context, StoreConfig) (profile.Store, error) {
		return profile.NewMemStore(), nil
	})
	r.RegisterStore(StorePostgres, func(ctx context.Context, cfg StoreConfig) (profile.Store, error) {
		return profilepg.NewStore(ctx, cfg.PostgresDSN)
	})

	return r
}

// RegisterSource registers a capture source factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterSource(kind SourceKind, factory func(CaptureConfig) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[kind] = factory
}

// RegisterStore registers a profile store factory under backend.
func (r *Registry) RegisterStore(backend StoreBackend, factory func(context.Context, StoreConfig) (profile.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[backend] = factory
}

// CreateSource instantiates the capture source selected by cfg.Source.
// An empty kind defaults to the tone source. Returns [ErrNotRegistered]
// when no factory is registered for the kind.
func (r *Registry) CreateSource(cfg CaptureConfig) (capture.Source, error) {
	kind := cfg.Source
	if kind == "" {
		kind = SourceTone
	}
	r.mu.RLock()
	factory, ok := r.sources[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrNotRegistered, kind)
	}
	return factory(cfg)
}

// CreateStore instantiates the profile store selected by cfg.Backend.
// An empty backend defaults to the in-memory store.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (profile.Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = StoreMemory
	}
	r.mu.RLock()
	factory, ok := r.stores[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: store/%q", ErrNotRegistered, backend)
	}
	return factory(ctx, cfg)
}

// EffectiveSampleRate returns the configured sample rate or the 44.1 kHz default.
func (c CaptureConfig) EffectiveSampleRate() int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return 44100
}

// EffectiveFrameSize returns the configured frame size or the 4096-sample default.
func (c CaptureConfig) EffectiveFrameSize() int {
	if c.FrameSize > 0 {
		return c.FrameSize
	}
	return 4096
}
