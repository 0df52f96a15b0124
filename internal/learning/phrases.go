package learning

import (
	"strings"
	"unicode"
)

const (
	minPhraseWords = 3
	maxPhraseWords = 6
)

// transitionalPhrases are stock phrases worth tracking the first time they appear.
var transitionalPhrases = []string{
	"as discussed on",
	"happy to help",
	"hope you are doing well",
	"hope you're doing well",
	"i'll get back to you",
	"in the meantime",
	"just following up",
	"let me know if",
	"looking forward to",
	"please find attached",
	"please let me know",
	"thank you for",
	"thanks for reaching out",
	"thanks so much",
	"with that said",
}

// ExtractPhrases returns the writing-style phrases found in text, in order
// of first appearance. A 3-6 word window qualifies when it is already known,
// is a stock transitional phrase, or occurs more than once in text. Repeated
// windows that sit inside a longer repeated window are dropped.
func ExtractPhrases(text string, known map[string]bool) []string {
	words := normalizeWords(text)
	if len(words) < minPhraseWords {
		return nil
	}

	transitional := make(map[string]bool, len(transitionalPhrases))
	for _, p := range transitionalPhrases {
		transitional[p] = true
	}

	counts := map[string]int{}
	var order []string
	for n := minPhraseWords; n <= maxPhraseWords; n++ {
		for i := 0; i+n <= len(words); i++ {
			w := strings.Join(words[i:i+n], " ")
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	var repeated []string
	for _, w := range order {
		if counts[w] > 1 {
			repeated = append(repeated, w)
		}
	}

	var out []string
	for _, w := range order {
		switch {
		case known[w], transitional[w]:
			out = append(out, w)
		case counts[w] > 1 && !coveredBy(w, repeated, counts):
			out = append(out, w)
		}
	}

	return firstAppearance(out, words)
}

// coveredBy reports whether w sits inside a longer repeated window that
// occurs just as often, in which case only the longer window is kept.
func coveredBy(w string, repeated []string, counts map[string]int) bool {
	padded := " " + w + " "
	for _, other := range repeated {
		if len(other) <= len(w) || counts[other] < counts[w] {
			continue
		}
		if strings.Contains(" "+other+" ", padded) {
			return true
		}
	}
	return false
}

// firstAppearance orders phrases by where they first start in the text,
// shorter first on ties.
func firstAppearance(phrases []string, words []string) []string {
	if len(phrases) < 2 {
		return phrases
	}

	joined := " " + strings.Join(words, " ") + " "
	pos := make(map[string]int, len(phrases))
	for _, p := range phrases {
		pos[p] = strings.Index(joined, " "+p+" ")
	}

	sorted := append([]string(nil), phrases...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0; j-- {
			a, b := sorted[j-1], sorted[j]
			if pos[a] < pos[b] || (pos[a] == pos[b] && len(a) <= len(b)) {
				break
			}
			sorted[j-1], sorted[j] = b, a
		}
	}
	return sorted
}

// normalizeWords lowercases text and trims punctuation from word edges,
// keeping inner apostrophes and hyphens ("you're", "w-9").
func normalizeWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
