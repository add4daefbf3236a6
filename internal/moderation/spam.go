package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Contact-information and flooding heuristics. Anonymous chat loses its
// point once participants can funnel each other off-platform, so links and
// phone numbers are rejected outright rather than scored.
var (
	// linkPattern matches http/https URLs, www. hosts, and bare domains on
	// common TLDs. Bare domains must carry a path ("evil.com/free") so that
	// version strings and decimals ("v2.0", "3.14") stay clean.
	linkPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches the usual phone layouts (+1-555-123-4567,
	// (555) 123-4567, 555.123.4567). It is anchored to whitespace or string
	// boundaries so digit runs inside ordinary words and short numbers such
	// as "100" do not trip it.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// flood thresholds: five identical runes in a row, or the same word three
// times in a row.
const (
	charFloodRun = 5
	wordFloodRun = 3
)

// checkSpamPatterns applies the contact-info and flooding heuristics in
// order and returns a blocking FilterResult for the first hit. Term names
// surface in moderation categories, so they are part of the audit format.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	switch {
	case linkPattern.MatchString(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "url"}
	case phonePattern.MatchString(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "phone"}
	case hasCharFlood(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "char_flood"}
	case hasWordFlood(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "word_flood"}
	}
	return FilterResult{}
}

// hasCharFlood reports a run of charFloodRun identical runes. RE2 has no
// backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	run := 1
	prev := rune(-1)
	for _, r := range text {
		if r != prev {
			run = 1
			prev = r
			continue
		}
		run++
		if run >= charFloodRun {
			return true
		}
	}
	return false
}

// hasWordFlood reports the same whitespace-delimited word repeated
// wordFloodRun times consecutively, case-insensitively.
func hasWordFlood(text string) bool {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < wordFloodRun {
		return false
	}

	run := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower != prev {
			run = 1
			prev = lower
			continue
		}
		run++
		if run >= wordFloodRun {
			return true
		}
	}
	return false
}
