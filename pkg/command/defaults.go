package command

import (
	"regexp"

	"github.com/kothalabs/kotha/pkg/language"
)

// DefaultCommands returns the built-in command set. The daemon registers
// these at startup; library callers can pick, extend, or ignore them.
func DefaultCommands() []Command {
	return []Command{
		{
			ID:          "switch-to-bangla",
			Pattern:     regexp.MustCompile(`(?i)switch to bangla`),
			Action:      ActionSwitchLanguage,
			Description: "Switch the working language to Bangla.",
			Parameters:  []string{string(language.Bangla)},
		},
		{
			ID:          "switch-to-english",
			Pattern:     regexp.MustCompile(`(?i)switch to english`),
			Action:      ActionSwitchLanguage,
			Description: "Switch the working language to English.",
			Parameters:  []string{string(language.English)},
		},
		{
			ID:          "switch-to-bangla-bn",
			Trigger:     "বাংলায় বলো",
			Action:      ActionSwitchLanguage,
			Description: "Switch the working language to Bangla (Bangla trigger).",
			Languages:   []language.Tag{language.Bangla},
			Parameters:  []string{string(language.Bangla)},
		},
		{
			ID:          "stop-listening",
			Trigger:     "stop listening",
			Action:      ActionStopListening,
			Description: "Pause audio processing.",
		},
		{
			ID:          "start-listening",
			Trigger:     "start listening",
			Action:      ActionStartListening,
			Description: "Resume audio processing.",
		},
		{
			ID:          "clear-transcript",
			Trigger:     "clear the chat",
			Action:      ActionClearTranscript,
			Description: "Clear the transcript view.",
		},
		{
			ID:          "repeat-last",
			Trigger:     "say that again",
			Action:      ActionRepeatLast,
			Description: "Repeat the last response.",
		},
		{
			ID:          "calibrate",
			Trigger:     "calibrate my voice",
			Action:      ActionStartCalibration,
			Description: "Start a guided voice calibration session.",
		},
		{
			ID:          "help",
			Trigger:     "what can i say",
			Action:      ActionShowHelp,
			Description: "List the available voice commands.",
		},
	}
}
