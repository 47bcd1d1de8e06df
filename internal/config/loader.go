package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: tone
// source in realtime, in-memory store, HTTP on :8080.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Capture: CaptureConfig{
			Source:   SourceTone,
			Realtime: true,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
		},
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Capture
	if cfg.Capture.Source != "" && !cfg.Capture.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: device, file, tone", cfg.Capture.Source))
	}
	if cfg.Capture.Source == SourceFile && cfg.Capture.File == "" {
		errs = append(errs, errors.New("capture.file is required when capture.source is file"))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("capture.frame_size %d is negative", cfg.Capture.FrameSize))
	}
	if a := cfg.Capture.Tone.Amplitude; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("capture.tone.amplitude %.2f is out of range [0, 1]", a))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
	}
	if cfg.Store.Backend == StoreMemory || cfg.Store.Backend == "" {
		if cfg.Store.PostgresDSN != "" {
			slog.Warn("store.postgres_dsn is set but store.backend is memory; the DSN will be ignored")
		}
	}

	// Pipeline
	p := cfg.Pipeline
	if p.VAD.Threshold < 0 || p.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.vad.threshold %.3f is out of range [0, 1]", p.VAD.Threshold))
	}
	if p.VAD.MinSpeechMs < 0 || p.VAD.MaxSilenceMs < 0 {
		errs = append(errs, errors.New("pipeline.vad durations must not be negative"))
	}
	if p.Noise.Aggressiveness < 0 || p.Noise.Aggressiveness > 1 {
		errs = append(errs, fmt.Errorf("pipeline.noise.aggressiveness %.2f is out of range [0, 1]", p.Noise.Aggressiveness))
	}
	if t := p.Language.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.language.confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if p.Language.Fallback != "" && !p.Language.Fallback.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.language.fallback %q is invalid; valid values: bn, en", p.Language.Fallback))
	}
	if t := p.Command.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.command.confidence_threshold %.2f is out of range [0, 1]", t))
	}
	if p.Command.MaxEditDistance < 0 {
		errs = append(errs, fmt.Errorf("pipeline.command.max_edit_distance %d is negative", p.Command.MaxEditDistance))
	}
	if p.Calibration.MinSamples < 0 || p.Calibration.SessionSize < 0 {
		errs = append(errs, errors.New("pipeline.calibration sample counts must not be negative"))
	}
	if t := p.Calibration.AccuracyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.calibration.accuracy_threshold %.2f is out of range [0, 1]", t))
	}
	if p.HistoryLimit < 0 || p.HistoryCompact < 0 {
		errs = append(errs, errors.New("pipeline history bounds must not be negative"))
	}
	if p.HistoryLimit > 0 && p.HistoryCompact >= p.HistoryLimit {
		slog.Warn("pipeline.history_compact is not below pipeline.history_limit; the default compaction size will be used",
			"history_limit", p.HistoryLimit,
			"history_compact", p.HistoryCompact,
		)
	}

	// Advisory: the tone source is meant for demos and tests.
	if cfg.Capture.Source == SourceTone && cfg.Store.Backend == StorePostgres {
		slog.Warn("capture.source is tone while store.backend is postgres; synthetic audio will be calibrated against durable profiles")
	}

	// Profiles
	if path := cfg.Profiles.ImportPath; path != "" {
		if _, err := os.Stat(path); err != nil {
			slog.Warn("profiles.import_path does not exist; startup import will fail", "path", path, "err", err)
		}
	}

	return errors.Join(errs...)
}
