package language

import (
	"strings"
	"unicode"
)

// Bangla Unicode block bounds (inclusive).
const (
	banglaBlockLo = 0x0980
	banglaBlockHi = 0x09FF
)

// isBanglaRune reports whether r falls inside the Bangla Unicode block.
func isBanglaRune(r rune) bool {
	return r >= banglaBlockLo && r <= banglaBlockHi
}

// englishWords are high-frequency English function words. Word-pattern
// matching counts tokens present in this set.
var englishWords = map[string]struct{}{
	"the": {}, "be": {}, "to": {}, "of": {}, "and": {}, "a": {}, "in": {},
	"that": {}, "have": {}, "i": {}, "it": {}, "for": {}, "not": {},
	"on": {}, "with": {}, "he": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "his": {}, "by": {}, "from": {},
	"they": {}, "we": {}, "say": {}, "her": {}, "she": {}, "or": {},
	"an": {}, "will": {}, "my": {}, "one": {}, "all": {}, "would": {},
	"there": {}, "their": {}, "what": {}, "is": {}, "are": {}, "was": {},
	"can": {}, "please": {}, "now": {}, "yes": {}, "no": {},
}

// banglaWords are high-frequency Bangla words in Bengali script. A token
// containing any Bangla codepoint also counts as a Bangla match, so this
// list only needs to anchor the most common forms.
var banglaWords = map[string]struct{}{
	"আমি": {}, "তুমি": {}, "সে": {}, "আমরা": {}, "তারা": {},
	"এই": {}, "সেই": {}, "একটি": {}, "এবং": {}, "কিন্তু": {},
	"না": {}, "হ্যাঁ": {}, "কী": {}, "কেন": {}, "কোথায়": {},
	"কখন": {}, "কেমন": {}, "ভালো": {}, "আছে": {}, "নেই": {},
	"করা": {}, "হবে": {}, "ছিল": {}, "থেকে": {}, "আমার": {},
}

// englishLetterFreq holds relative letter frequencies for English text
// (fractions of all letters). Used by the character-frequency method.
var englishLetterFreq = map[rune]float64{
	'e': 0.127, 't': 0.091, 'a': 0.082, 'o': 0.075, 'i': 0.070,
	'n': 0.067, 's': 0.063, 'h': 0.061, 'r': 0.060, 'd': 0.043,
	'l': 0.040, 'c': 0.028, 'u': 0.028, 'm': 0.024, 'w': 0.024,
	'f': 0.022, 'g': 0.020, 'y': 0.020, 'p': 0.019, 'b': 0.015,
	'v': 0.010, 'k': 0.008, 'j': 0.002, 'x': 0.002, 'q': 0.001,
	'z': 0.001,
}

// meanEnglishLetterFreq is the expected per-letter frequency of typical
// English prose; the frequency method scales raw sums against it.
const meanEnglishLetterFreq = 0.065

// tokenize lowercases text and splits it into words, trimming surrounding
// punctuation from each token. Empty tokens are dropped.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		tok := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// containsBangla reports whether any rune of s is in the Bangla block.
func containsBangla(s string) bool {
	for _, r := range s {
		if isBanglaRune(r) {
			return true
		}
	}
	return false
}

// banglaRatio returns the share of non-whitespace runes inside the Bangla
// block, and the total non-whitespace rune count.
func banglaRatio(text string) (ratio float64, total int) {
	var bangla int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isBanglaRune(r) {
			bangla++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(bangla) / float64(total), total
}
