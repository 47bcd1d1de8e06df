package calibration

import "github.com/kothalabs/kotha/pkg/language"

// DefaultPrompts returns the built-in calibration phrases for a language.
// The phrases cover a spread of phonemes and sentence lengths so the
// aggregated statistics reflect normal speech. Unknown tags fall back to
// the English set.
func DefaultPrompts(tag language.Tag) []string {
	switch tag {
	case language.Bangla:
		return []string{
			"আমার সোনার বাংলা আমি তোমায় ভালোবাসি",
			"আজকের আবহাওয়া খুব সুন্দর",
			"আমি প্রতিদিন সকালে চা খাই",
			"বাংলাদেশের রাজধানী ঢাকা",
			"আপনি কেমন আছেন আজকে",
			"আমি বই পড়তে ভালোবাসি",
			"নদীর ধারে গাছপালা অনেক সবুজ",
		}
	default:
		return []string{
			"the quick brown fox jumps over the lazy dog",
			"please say this sentence at your normal speaking pace",
			"I would like a cup of coffee in the morning",
			"how much wood would a woodchuck chuck",
			"the weather today is bright and clear",
			"reading books is one of my favorite hobbies",
			"seven silver swans swam silently seaward",
		}
	}
}
