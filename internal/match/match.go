// Package match scores spoken transcripts against expected script lines.
//
// Speech recognition output is noisy, so matching is deliberately
// forgiving: word-level credit with partial credit for substring overlap
// and a bonus for shared domain keywords. Matching always fails closed
// when either side normalizes to nothing.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	exactWordCredit = 1.0
	partialCredit   = 0.7
	keywordBonus    = 0.5

	// Words shorter than this are too ambiguous for keyword matching.
	minKeywordLen = 2
)

// Matcher compares free-form input against reference lines.
type Matcher struct {
	keywords map[string]struct{}
	// groups maps a word to its synonym group id. Words in the same
	// group are treated as interchangeable by KeywordMatch, so a
	// transcript of "yeah" can satisfy an expected "Yes.".
	groups map[string]int
}

// New builds a Matcher with the given domain keyword set and synonym
// groups. All entries are normalized the same way input words are.
func New(keywords []string, synonyms ...[]string) *Matcher {
	m := &Matcher{
		keywords: make(map[string]struct{}, len(keywords)),
		groups:   make(map[string]int),
	}
	for _, kw := range keywords {
		for _, word := range normalizeWords(kw) {
			m.keywords[word] = struct{}{}
		}
	}
	for id, group := range synonyms {
		for _, entry := range group {
			for _, word := range normalizeWords(entry) {
				m.groups[word] = id
			}
		}
	}
	return m
}

// Score returns a 0..100 percent similarity between input and reference.
func (m *Matcher) Score(input, reference string) int {
	inputWords := normalizeWords(input)
	refWords := normalizeWords(reference)
	if len(inputWords) == 0 || len(refWords) == 0 {
		return 0
	}

	var credit float64
	for _, in := range inputWords {
		best := 0.0
		for _, ref := range refWords {
			switch {
			case in == ref:
				best = exactWordCredit
			case best < partialCredit && (strings.Contains(ref, in) || strings.Contains(in, ref)):
				best = partialCredit
			}
			if best == exactWordCredit {
				break
			}
		}
		credit += best
		if _, ok := m.keywords[in]; ok && containsWord(refWords, in) {
			credit += keywordBonus
		}
	}

	denom := len(inputWords)
	if len(refWords) > denom {
		denom = len(refWords)
	}
	score := credit / float64(denom)
	if score > 1 {
		score = 1
	}
	return int(score*100 + 0.5)
}

// KeywordMatch reports whether input shares a domain keyword or synonym
// with reference, or any exact or substring word of useful length.
func (m *Matcher) KeywordMatch(input, reference string) bool {
	inputWords := normalizeWords(input)
	refWords := normalizeWords(reference)
	if len(inputWords) == 0 || len(refWords) == 0 {
		return false
	}
	for _, in := range inputWords {
		if _, ok := m.keywords[in]; ok && containsWord(refWords, in) {
			return true
		}
		if group, ok := m.groups[in]; ok {
			for _, ref := range refWords {
				if refGroup, ok := m.groups[ref]; ok && refGroup == group {
					return true
				}
			}
		}
		if len(in) < minKeywordLen {
			continue
		}
		for _, ref := range refWords {
			if len(ref) < minKeywordLen {
				continue
			}
			if in == ref || strings.Contains(ref, in) || strings.Contains(in, ref) {
				return true
			}
		}
	}
	return false
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}

// normalizeWords lowercases, strips punctuation, and splits on whitespace.
// NFKC folding first so width and compatibility variants compare equal.
// Punctuation separates words rather than joining them, which keeps
// codes like "10-4" comparable with the spoken "10 4".
func normalizeWords(s string) []string {
	folded := norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
