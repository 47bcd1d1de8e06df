package config

// ConfigDiff describes what changed between two configs and how the
// change can be applied: pipeline tuning fans out through
// pipeline.UpdateConfig, the log level is swapped in place, and anything
// structural (capture source, store backend, server address) needs a
// restart.
type ConfigDiff struct {
	// LogLevelChanged is true when the log verbosity changed;
	// NewLogLevel holds the value to apply.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any pipeline tuning value changed.
	// Safe to hot-apply.
	PipelineChanged bool

	// RestartRequired is true when capture, store, or server settings
	// changed; these are bound at startup.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}

	if old.Capture != new.Capture ||
		old.Store != new.Store ||
		old.Profiles != new.Profiles ||
		serverRestartNeeded(old.Server, new.Server) {
		d.RestartRequired = true
	}

	return d
}

// serverRestartNeeded reports whether the server sections differ in
// anything other than the hot-swappable log level.
func serverRestartNeeded(old, new ServerConfig) bool {
	if old.ListenAddr != new.ListenAddr {
		return true
	}
	switch {
	case old.TLS == nil && new.TLS == nil:
		return false
	case old.TLS == nil || new.TLS == nil:
		return true
	default:
		return *old.TLS != *new.TLS
	}
}
