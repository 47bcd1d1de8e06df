// Package app wires all Kotha subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects the
// profile store, the processing pipeline and the HTTP surface, Run
// executes everything until the context is cancelled, and Shutdown tears
// it all down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithSource, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/kothalabs/kotha/internal/config"
	"github.com/kothalabs/kotha/internal/health"
	"github.com/kothalabs/kotha/internal/observe"
	"github.com/kothalabs/kotha/pkg/audio/capture"
	"github.com/kothalabs/kotha/pkg/pipeline"
	"github.com/kothalabs/kotha/pkg/profile"
)

// httpShutdownTimeout bounds how long Run waits for in-flight HTTP
// requests once the context is cancelled.
const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and runs the Kotha voice-processing daemon.
type App struct {
	mu  sync.Mutex
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	store   profile.Store
	source  capture.Source
	pipe    *pipeline.Orchestrator
	metrics *observe.Metrics
	handler *health.Handler
	server  *http.Server

	// logLevel, when set, lets ApplyConfig hot-swap log verbosity.
	logLevel *slog.LevelVar

	// otelShutdown flushes the telemetry providers; nil when metrics were
	// injected.
	otelShutdown func(context.Context) error

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a profile store instead of creating one from config.
func WithStore(s profile.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects a capture source instead of creating one from config.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithMetrics injects pre-built metrics and skips global telemetry
// provider initialisation. Intended for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level var backing the process logger so
// config reloads can adjust verbosity in place.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// --- New ---

// New creates an App by wiring all subsystems together: telemetry, the
// profile store, the processing pipeline (probed feature by feature), an
// optional profile import, the capture source, and the HTTP surface.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// --- 1. Telemetry ---
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// --- 2. Profile store ---
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// --- 3. Pipeline ---
	if err := a.initPipeline(ctx); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// --- 4. Profile import ---
	if err := a.importProfiles(ctx); err != nil {
		return nil, fmt.Errorf("app: import profiles: %w", err)
	}

	// --- 5. Capture source ---
	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// --- 6. HTTP surface ---
	a.initServer()

	return a, nil
}

// --- Init helpers ---

// initTelemetry sets up the global OTel providers and the instrument set,
// unless metrics were injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "kotha",
	})
	if err != nil {
		return err
	}
	a.otelShutdown = shutdown

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initStore creates the configured profile store or uses the injected one.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	store, err := config.DefaultRegistry().CreateStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.store = store
	slog.Info("profile store ready", "backend", a.cfg.Store.Backend)

	switch c := store.(type) {
	case interface{ Close() error }:
		a.closers = append(a.closers, c.Close)
	case interface{ Close() }:
		a.closers = append(a.closers, func() error {
			c.Close()
			return nil
		})
	}
	return nil
}

// initPipeline builds the orchestrator and probes its features. A partial
// outage is tolerated; only a pipeline with zero working features is fatal.
func (a *App) initPipeline(ctx context.Context) error {
	rate := a.cfg.Capture.EffectiveSampleRate()
	frame := a.cfg.Capture.EffectiveFrameSize()

	a.pipe = pipeline.New(
		a.cfg.Pipeline.Pipeline(rate, frame),
		pipeline.WithStore(a.store),
		pipeline.WithMetrics(a.metrics),
	)
	if err := a.pipe.Initialize(ctx); err != nil {
		return err
	}

	for feat, state := range a.pipe.FeatureStatus() {
		if state.Enabled && !state.Available {
			slog.Warn("pipeline feature degraded", "feature", feat, "err", state.Err)
		}
	}
	return nil
}

// importProfiles loads a profile export file into the store when one is
// configured. The codec is chosen by file extension.
func (a *App) importProfiles(ctx context.Context) error {
	path := a.cfg.Profiles.ImportPath
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var n int
	if strings.EqualFold(filepath.Ext(path), ".json") {
		n, err = profile.ImportJSON(ctx, a.store, f)
	} else {
		n, err = profile.ImportYAML(ctx, a.store, f)
	}
	if err != nil {
		return fmt.Errorf("import %q: %w", path, err)
	}
	slog.Info("imported profiles", "path", path, "count", n)
	return nil
}

// initSource creates the capture source from config if one wasn't injected.
func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}

	src, err := config.DefaultRegistry().CreateSource(a.cfg.Capture)
	if err != nil {
		return err
	}
	a.source = src
	slog.Info("capture source ready",
		"source", a.cfg.Capture.Source,
		"sample_rate", src.SampleRate(),
	)
	return nil
}

// initServer assembles the HTTP mux: health and readiness probes, the
// operational status snapshot, and the Prometheus scrape endpoint. All
// routes run through the observability middleware.
func (a *App) initServer() {
	a.handler = health.New(
		health.Checker{Name: "store", Check: func(ctx context.Context) error {
			_, err := a.store.ListVoice(ctx)
			return err
		}},
		health.Checker{Name: "pipeline", Check: func(_ context.Context) error {
			for _, state := range a.pipe.FeatureStatus() {
				if state.Available {
					return nil
				}
			}
			return errors.New("no pipeline features available")
		}},
	)
	a.handler.SetStatus(a.statusSnapshot)

	mux := http.NewServeMux()
	a.handler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &api{pipe: a.pipe, store: a.store, metrics: a.metrics}
	srv.register(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// statusSnapshot produces the /statusz body.
func (a *App) statusSnapshot() any {
	return map[string]any{
		"features": a.pipe.FeatureStatus(),
		"stats":    a.pipe.Stats(),
		"history":  len(a.pipe.History()),
	}
}

// --- Run ---

// Run starts audio acquisition and the HTTP server, then blocks until ctx
// is cancelled or the server fails. The pipeline is stopped before Run
// returns; durable resources are released by Shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.pipe.Start(ctx, a.source); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tc := a.cfg.Server.TLS; tc != nil {
			err = a.server.ListenAndServeTLS(tc.CertFile, tc.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if stopErr := a.pipe.Stop(); stopErr != nil {
		slog.Warn("pipeline stop error", "err", stopErr)
		if err == nil {
			err = stopErr
		}
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// --- Config reload ---

// ApplyConfig reacts to a config file change. Log verbosity and pipeline
// tuning are applied in place; anything bound at startup only logs a
// restart advisory.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level changed but no level var is wired; restart to apply")
		}
	}

	if d.PipelineChanged {
		a.mu.Lock()
		rate := a.cfg.Capture.EffectiveSampleRate()
		frame := a.cfg.Capture.EffectiveFrameSize()
		a.cfg.Pipeline = new.Pipeline
		a.mu.Unlock()

		a.pipe.UpdateConfig(new.Pipeline.Pipeline(rate, frame))
		slog.Info("pipeline configuration updated")
	}

	if d.RestartRequired {
		slog.Warn("config change affects startup-bound settings; restart to apply")
	}
}

// Pipeline exposes the orchestrator, e.g. for interactive front ends that
// feed recognized text through ProcessVoiceInput.
func (a *App) Pipeline() *pipeline.Orchestrator {
	return a.pipe
}

// Handler exposes the full HTTP surface, e.g. for embedding the daemon
// into another server or for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// --- Shutdown ---

// Shutdown tears down all subsystems in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish, the
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if a.otelShutdown != nil {
			if err := a.otelShutdown(ctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// slogLevel maps a config log level onto the slog scale.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
