// Package command implements voice-command matching on transcribed text.
//
// Commands live in a registry keyed by unique id and carry either a
// compiled regex trigger or a literal phrase. Matching tries, in order of
// decreasing strictness: regex match (confidence 1.0 with capture-group
// parameter extraction), exact literal match (1.0), substring containment
// (0.9), and optionally Levenshtein-based fuzzy matching
// (1 − distance/max(len)). The highest-confidence command at or above the
// configured threshold wins; ties resolve to registration order.
//
// Actions are a closed enum dispatched through an explicit handler table
// rather than free-form strings, so unknown actions are rejected when a
// command is registered, not when it fires.
package command

import (
	"errors"
	"regexp"

	"github.com/kothalabs/kotha/pkg/language"
)

// ErrDuplicateID is returned by Register when a command with the same ID
// already exists.
var ErrDuplicateID = errors.New("command with that ID already exists")

// ErrUnknownAction is returned by Register for actions outside the enum.
var ErrUnknownAction = errors.New("unknown command action")

// ErrNotFound is returned by Unregister and Enable for unknown command ids.
var ErrNotFound = errors.New("command not found")

// Action identifies what a matched command does. The set is closed;
// [Action.IsValid] gates registration.
type Action string

const (
	// ActionSwitchLanguage changes the caller's working language. The
	// target tag arrives as parameter "param0" or capture group "lang".
	ActionSwitchLanguage Action = "switch_language"

	// ActionStartListening resumes frame processing.
	ActionStartListening Action = "start_listening"

	// ActionStopListening pauses frame processing.
	ActionStopListening Action = "stop_listening"

	// ActionClearTranscript asks the caller to clear its transcript view.
	ActionClearTranscript Action = "clear_transcript"

	// ActionRepeatLast asks the caller to repeat its last response.
	ActionRepeatLast Action = "repeat_last"

	// ActionStartCalibration begins a guided calibration session.
	ActionStartCalibration Action = "start_calibration"

	// ActionShowHelp lists the available commands.
	ActionShowHelp Action = "show_help"

	// ActionCustom marks caller-defined behavior routed through the
	// caller's own handler.
	ActionCustom Action = "custom"
)

// IsValid reports whether the action is part of the enum.
func (a Action) IsValid() bool {
	switch a {
	case ActionSwitchLanguage, ActionStartListening, ActionStopListening,
		ActionClearTranscript, ActionRepeatLast, ActionStartCalibration,
		ActionShowHelp, ActionCustom:
		return true
	}
	return false
}

// Command is one entry of the registry.
type Command struct {
	// ID uniquely identifies the command.
	ID string

	// Trigger is the literal phrase matched when Pattern is nil.
	Trigger string

	// Pattern, when set, takes precedence over Trigger. Named capture
	// groups become named parameters; unnamed groups become param0,
	// param1, … in group order.
	Pattern *regexp.Regexp

	// Action routes the command through the handler table.
	Action Action

	// Description is free text shown by help listings.
	Description string

	// Languages restricts matching to the listed languages. Empty means
	// the command matches regardless of language.
	Languages []language.Tag

	// Disabled commands stay registered but never match.
	Disabled bool

	// Parameters are static values merged into every match result as
	// param0, param1, … before capture-group extraction; capture groups
	// override on collision.
	Parameters []string
}

// matchesLanguage reports whether the command applies to lang. An empty
// language list or an empty tag matches everything.
func (c Command) matchesLanguage(lang language.Tag) bool {
	if len(c.Languages) == 0 || lang == "" {
		return true
	}
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Result is the outcome of a successful match. Confidence is always at or
// above the matcher's configured threshold.
type Result struct {
	Command    Command
	Confidence float64

	// Parameters merges the command's static parameters with extracted
	// capture groups.
	Parameters map[string]string

	// Text is the original input.
	Text string
}

// Config tunes the matcher. The zero value is completed by
// [Config.withDefaults].
type Config struct {
	// ConfidenceThreshold is the minimum confidence for a match to be
	// returned. Default 0.7.
	ConfidenceThreshold float64

	// MaxEditDistance bounds the Levenshtein distance accepted by fuzzy
	// matching. Default 2.
	MaxEditDistance int

	// DisableFuzzy turns off fuzzy (and phonetic) matching, leaving exact
	// and substring matching only.
	DisableFuzzy bool

	// EnablePhonetic additionally accepts literal triggers whose Double
	// Metaphone encoding equals the input's, or whose Jaro-Winkler
	// similarity reaches 0.85, at threshold confidence. Off by default.
	EnablePhonetic bool
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 0.7
	}
	if c.MaxEditDistance <= 0 {
		c.MaxEditDistance = 2
	}
	return c
}
