package moderation

import "testing"

func TestSpamPatterns(t *testing.T) {
	// No keyword blocklist: isolate the spam heuristics.
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name  string
		input string
		term  string // "" means clean
	}{
		// links
		{"http url", "check out http://evil.com", "url"},
		{"https url", "visit https://spam.xyz/click", "url"},
		{"www host", "go to www.phishing.net", "url"},
		{"bare domain with path", "visit evil.com/free", "url"},
		{"bare .ru domain with path", "go to site.ru/malware", "url"},
		// phone numbers
		{"intl dashed", "+1-555-123-4567", "phone"},
		{"parenthesized area code", "(555) 123-4567", "phone"},
		{"dotted", "555.123.4567", "phone"},
		{"mid-sentence", "call me at 555-123-4567 okay?", "phone"},
		// character flooding
		{"stretched word", "hellooooooo", "char_flood"},
		{"shouting", "AAAAAA", "char_flood"},
		{"punctuation run", "wow!!!!!", "char_flood"},
		{"exactly five repeats", "aaaaa", "char_flood"},
		// word flooding
		{"tripled word", "buy buy buy", "word_flood"},
		{"tripled mid-sentence", "hey buy buy buy now", "word_flood"},
		{"tripled case-insensitive", "BUY buy Buy", "word_flood"},
		// clean traffic the heuristics must not touch
		{"version string", "upgrade to v2.0", ""},
		{"decimal", "pi is about 3.14", ""},
		{"short number", "I have 3 cats", ""},
		{"score", "I got 42 out of 50", ""},
		{"year", "see you in 2025", ""},
		{"price", "it costs $5.99", ""},
		{"four repeats", "heeeel no", ""},
		{"exactly four repeats", "aaaa", ""},
		{"doubled word", "yeah yeah whatever", ""},
		{"mild excitement", "wow!!! that's great!!", ""},
		{"short stretch", "sooo cool", ""},
		{"sentence dots", "ok. sure. fine.", ""},
		{"newlines", "hello\nworld", ""},
		{"tabs", "hello\tworld", ""},
		{"empty", "", ""},
		{"spaces only", "   ", ""},
		{"plain chat", "how are you doing today?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Check(tt.input)
			if tt.term == "" {
				if res.Blocked {
					t.Fatalf("Check(%q) blocked (reason=%q term=%q), want clean",
						tt.input, res.Reason, res.Term)
				}
				return
			}
			if !res.Blocked {
				t.Fatalf("Check(%q) clean, want blocked with term %q", tt.input, tt.term)
			}
			if res.Reason != "spam_pattern" {
				t.Errorf("Check(%q).Reason = %q, want spam_pattern", tt.input, res.Reason)
			}
			if res.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, res.Term, tt.term)
			}
		})
	}
}

// A blocklist keyword must win over a spam pattern in the same message, and
// the spam checks must still run when the blocklist is clean.
func TestSpamRunsAfterKeywords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	if res := f.Check("badword http://evil.com"); res.Reason != "blocked_keyword" {
		t.Errorf("keyword+url reason = %q, want blocked_keyword", res.Reason)
	}
	if res := f.Check("visit http://evil.com"); res.Reason != "spam_pattern" || res.Term != "url" {
		t.Errorf("url reason/term = %q/%q, want spam_pattern/url", res.Reason, res.Term)
	}
}
