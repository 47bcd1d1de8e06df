// Command kotha is the main entry point for the kotha voice-processing daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kothalabs/kotha/internal/app"
	"github.com/kothalabs/kotha/internal/config"
)

// shutdownTimeout bounds the graceful teardown after the run loop returns.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// --- CLI flags ---
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// --- Load configuration ---
	cfg, err := config.Load(*configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !flagWasSet("config"):
		// No config file and none requested: run the built-in demo setup.
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "kotha: config file %q not found\n", *configPath)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "kotha: %v\n", err)
		return 1
	}

	// --- Logger ---
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("kotha starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// --- Signal context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Startup summary ---
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// --- Config hot reload ---
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
			slog.Info("watching config file for changes", "path", *configPath)
		}
	}

	slog.Info("daemon ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// --- Graceful shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// flagWasSet reports whether the named flag appeared on the command line.
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// --- Startup summary ---

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          kotha — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Capture source", summaryValue(string(cfg.Capture.Source), string(config.SourceTone)))
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Capture.EffectiveSampleRate()))
	printRow("Frame size", fmt.Sprintf("%d samples", cfg.Capture.EffectiveFrameSize()))
	printRow("Profile store", summaryValue(string(cfg.Store.Backend), string(config.StoreMemory)))
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	if cfg.Profiles.ImportPath != "" {
		printRow("Profile import", cfg.Profiles.ImportPath)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// summaryValue substitutes the default when the config left a field empty.
func summaryValue(v, def string) string {
	if v == "" {
		return def + " (default)"
	}
	return v
}

// --- Logger ---

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
