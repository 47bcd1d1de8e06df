// Package calibration runs guided sessions that collect labelled voice
// samples and derive a per-user voice profile from them.
//
// A session is bound to an existing [profile.VoiceProfile] and moves
// through a one-way lifecycle: active → completed or cancelled. Samples
// can only be added while the session is active, and completing a session
// analyzes the collected samples into calibration data and a recognition
// accuracy score stored back onto the profile. The resulting profile
// feeds [Manager.OptimalSettings], which maps the measurements onto
// tuning values for the other pipeline components.
package calibration

import (
	"errors"
	"time"

	"github.com/kothalabs/kotha/pkg/audio"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("calibration session not found")

// ErrSessionNotActive is returned when samples are added to, or completion
// is attempted on, a session that is no longer active.
var ErrSessionNotActive = errors.New("calibration session not active")

// ErrSessionFull is returned when a sample would exceed the session's
// configured step count.
var ErrSessionFull = errors.New("calibration session already has all samples")

// Status of a calibration session. Completed and cancelled are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Sample is one labelled recording collected during a session.
type Sample struct {
	// Prompt is the text shown to the speaker.
	Prompt string

	// Expected is the text the speaker was asked to say.
	Expected string

	// Recognized is what the transcriber heard.
	Recognized string

	// Frame holds the captured audio. The manager clones it on add.
	Frame audio.Frame

	// Confidence is the transcriber's own score for Recognized.
	Confidence float64

	// Duration of the recording. Derived from Frame when zero.
	Duration time.Duration

	// Volume is the RMS level. Derived from Frame when zero.
	Volume float64

	// Frequency is the dominant frequency in Hz. Derived from Frame when
	// zero.
	Frequency float64

	// Timestamp of capture. Set to now when zero.
	Timestamp time.Time
}

// Session is a snapshot of one calibration run. Mutation happens only
// through the [Manager]; callers receive copies.
type Session struct {
	ID        string
	ProfileID string
	Status    Status

	StartedAt time.Time
	EndedAt   time.Time

	// Progress in percent, CurrentStep/TotalSteps·100.
	Progress    float64
	CurrentStep int
	TotalSteps  int

	Samples []Sample
}

// Config tunes the manager. The zero value is completed by
// [Config.withDefaults].
type Config struct {
	// MinSamples is the number of samples a session collects; it becomes
	// each session's TotalSteps. Default 5.
	MinSamples int

	// SessionSize, when set, overrides MinSamples as the per-session step
	// count.
	SessionSize int

	// AccuracyThreshold is the word-similarity bar above which a sample
	// counts as correctly recognized. Default 0.8.
	AccuracyThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
	if c.AccuracyThreshold <= 0 || c.AccuracyThreshold >= 1 {
		c.AccuracyThreshold = 0.8
	}
	return c
}

// steps returns the per-session step count.
func (c Config) steps() int {
	if c.SessionSize > 0 {
		return c.SessionSize
	}
	return c.MinSamples
}
