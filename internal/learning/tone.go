package learning

import (
	"strings"
	"unicode"
)

// Tones inferred from sent replies.
const (
	ToneFormal  = "formal"
	ToneNeutral = "neutral"
	ToneCasual  = "casual"
)

const minToneWords = 5

// Markers holding a space match as substrings; the rest match whole words.
var formalMarkers = []string{
	"dear", "sincerely", "regards", "please find attached", "i would like",
	"thank you for", "per our", "kindly", "at your earliest convenience",
}

var casualMarkers = []string{
	"hey", "cheers", "no worries", "sounds good", "gonna", "thanks!",
	"lol", "awesome", "talk soon", ":)",
}

// InferTone guesses the register of a sent reply from formality markers and
// sentence length. It returns "" when the text is too short to judge.
func InferTone(text string) string {
	lowered := strings.ToLower(text)
	words := strings.Fields(lowered)
	if len(words) < minToneWords {
		return ""
	}

	tokens := make(map[string]bool, 2*len(words))
	for _, w := range words {
		tokens[w] = true
		tokens[strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})] = true
	}

	score := countMarkers(lowered, tokens, formalMarkers) - countMarkers(lowered, tokens, casualMarkers)
	if strings.Count(lowered, "!") >= 2 {
		score--
	}

	switch avg := averageSentenceLength(lowered); {
	case avg >= 20:
		score++
	case avg > 0 && avg < 8:
		score--
	}

	switch {
	case score >= 2:
		return ToneFormal
	case score <= -2:
		return ToneCasual
	default:
		return ToneNeutral
	}
}

func countMarkers(lowered string, tokens map[string]bool, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(m, " ") {
			if strings.Contains(lowered, m) {
				n++
			}
		} else if tokens[m] {
			n++
		}
	}
	return n
}

func averageSentenceLength(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})

	total, count := 0, 0
	for _, s := range sentences {
		n := len(strings.Fields(s))
		if n == 0 {
			continue
		}
		total += n
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}
