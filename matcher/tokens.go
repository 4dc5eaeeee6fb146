package matcher

import (
	"strings"
	"unicode"
)

// DefaultStopWords are label tokens so common on address and identity forms
// that they would otherwise dominate every score.
var DefaultStopWords = []string{
	"name", "first", "last", "middle", "email", "phone", "address",
	"street", "city", "state", "zip", "code", "country",
}

// Tokenize lowercases s and splits it on whitespace, punctuation and
// camelCase boundaries: "billing_Email addr" → [billing email addr].
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && len(cur) > 0 && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, unicode.ToLower(r))
		default:
			flush()
		}
		prev = r
	}
	flush()
	return tokens
}

// Similarity is the character-prefix ratio of a and b: positions are compared
// from index 0 while both strings have characters, and the count of equal
// positions is divided by the longer length. Identical non-empty strings
// score 1; the result is always in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	n := min(len(a), len(b))
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(max(len(a), len(b)))
}

type stopSet map[string]struct{}

func newStopSet(words []string) stopSet {
	s := make(stopSet, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

func (s stopSet) has(tok string) bool {
	_, ok := s[tok]
	return ok
}

// filter returns tokens that are not stop-words.
func (s stopSet) filter(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if !s.has(t) {
			out = append(out, t)
		}
	}
	return out
}

// score sums pairwise similarity between field and key tokens and divides by
// the larger token count. Field-side stop-words only score on an exact hit
// with a key token; key tokens are curated and never filtered.
func (s stopSet) score(fieldTokens, keyTokens []string) float64 {
	if len(fieldTokens) == 0 || len(keyTokens) == 0 {
		return 0
	}
	var sum float64
	for _, ft := range fieldTokens {
		stop := s.has(ft)
		for _, kt := range keyTokens {
			if stop {
				if ft == kt {
					sum++
				}
				continue
			}
			sum += Similarity(ft, kt)
		}
	}
	return sum / float64(max(len(fieldTokens), len(keyTokens)))
}
