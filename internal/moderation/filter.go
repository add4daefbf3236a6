// Package moderation implements the content review pipeline: a keyword and
// phrase blocklist with leetspeak normalization, spam pattern detection, and
// the verdict types exchanged with the signaling server over NATS.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult is the outcome of running a message through the filter.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter holds the blocklist split into single words and multi-word phrases.
// Both sets are lowercase. A Filter is immutable after construction and safe
// for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string
}

// defaultTerms is the built-in blocklist. Single tokens are matched per word,
// multi-word entries are matched as consecutive token runs.
var defaultTerms = []string{
	// slurs
	"nigger", "nigga", "faggot", "tranny", "kike", "spic", "chink", "wetback",
	// self-harm incitement
	"kill yourself", "go die", "kys", "neck yourself",
	// sexual exploitation
	"child porn", "cp trade", "send nudes", "loli",
	// extremism
	"heil hitler", "white power", "gas the",
	// threats
	"bomb threat", "school shooting", "swat you",
	// scams
	"free bitcoin", "crypto giveaway", "onlyfans promo",
}

// leetMap translates common character substitutions back to letters before
// blocklist matching. Kept deliberately small: over-aggressive mappings cause
// false positives on normal punctuation.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// NewFilter builds a Filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms builds a Filter from an explicit term list. Empty and
// whitespace-only terms are ignored. Multi-word terms become phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		parts := strings.Fields(term)
		if len(parts) == 1 {
			f.words[parts[0]] = struct{}{}
		} else {
			f.phrases = append(f.phrases, parts)
		}
	}
	return f
}

// Check runs text through the keyword blocklist (plain and leet-normalized),
// the phrase blocklist, and the spam pattern checks, in that order.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)

	plain := tokenizePlain(lower)
	for _, tok := range plain {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}

	// Second pass with leetspeak substitutions undone. Tokens are split on
	// whitespace only so symbol substitutions like "$h!t" survive intact.
	for _, tok := range tokenizeLeet(lower) {
		norm := normalizeLeet(tok)
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}

	if term := f.matchPhrase(plain); term != "" {
		return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
	}

	return f.checkSpamPatterns(text)
}

// CheckInterests filters a list of interest tags, dropping any that the
// blocklist or spam checks would reject.
func (f *Filter) CheckInterests(interests []string) []string {
	clean := make([]string, 0, len(interests))
	for _, in := range interests {
		if !f.Check(in).Blocked {
			clean = append(clean, in)
		}
	}
	return clean
}

// matchPhrase returns the first blocked phrase that appears as a consecutive
// run of tokens, or "" if none match. Token-exact matching avoids partial-word
// hits like "kill yourselves".
func (f *Filter) matchPhrase(tokens []string) string {
	for _, phrase := range f.phrases {
		if len(phrase) > len(tokens) {
			continue
		}
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			match := true
			for j, w := range phrase {
				if tokens[i+j] != w {
					match = false
					break
				}
			}
			if match {
				return strings.Join(phrase, " ")
			}
		}
	}
	return ""
}

// normalizeLeet maps common character substitutions back to letters.
// Characters without a mapping pass through unchanged.
func normalizeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := leetMap[r]; ok {
			b.WriteRune(sub)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokenizePlain splits text into lowercase word tokens, treating any
// non-alphanumeric rune as a separator.
func tokenizePlain(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits text on whitespace only, preserving symbol characters
// inside tokens so leetspeak normalization can recover masked terms.
func tokenizeLeet(s string) []string {
	return strings.Fields(s)
}
