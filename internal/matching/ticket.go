// Package matching implements the waiting-queue pairing algorithm. The
// Queue is a plain in-memory structure with no internal locking: it is owned
// exclusively by the hub actor, which serializes every enqueue, cancel and
// pairing attempt. That single-owner discipline is what makes "remove both
// tickets and create a session" one indivisible step.
package matching

import (
	"strings"
	"time"
)

// ChatType selects the session medium both tickets must agree on.
type ChatType string

const (
	ChatVideo ChatType = "video"
	ChatText  ChatType = "text"
)

// Gender is a participant's self-declared identity.
type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer_not_to_say"
)

// Preference is a premium-only partner filter.
type Preference string

const (
	PreferAny    Preference = "any"
	PreferMale   Preference = "male"
	PreferFemale Preference = "female"
)

// MaxInterests caps the number of interest tags per ticket.
const MaxInterests = 5

// Ticket is a participant's outstanding match request.
type Ticket struct {
	ParticipantID    string
	EnqueuedAt       time.Time
	ChatType         ChatType
	Interests        []string
	GenderPreference Preference // effective preference: PreferAny unless premium
	DeclaredIdentity Gender
	Priority         bool // premium or trial-active

	seq uint64 // insertion order, breaks EnqueuedAt ties deterministically
}

// NormalizeInterests trims, lowercases, deduplicates and caps an interest
// list so overlap scoring compares like with like.
func NormalizeInterests(interests []string) []string {
	seen := make(map[string]bool, len(interests))
	out := make([]string, 0, MaxInterests)
	for _, raw := range interests {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == MaxInterests {
			break
		}
	}
	return out
}

// Overlap counts the interest tags two tickets share.
func Overlap(a, b *Ticket) int {
	if len(a.Interests) == 0 || len(b.Interests) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a.Interests))
	for _, tag := range a.Interests {
		set[tag] = true
	}
	n := 0
	for _, tag := range b.Interests {
		if set[tag] {
			n++
		}
	}
	return n
}

// SharedInterests returns the tags two tickets have in common, in a's order.
func SharedInterests(a, b *Ticket) []string {
	set := make(map[string]bool, len(b.Interests))
	for _, tag := range b.Interests {
		set[tag] = true
	}
	var shared []string
	for _, tag := range a.Interests {
		if set[tag] {
			shared = append(shared, tag)
		}
	}
	return shared
}

// accepts reports whether t's gender preference admits candidate c. A ticket
// with a concrete preference excludes candidates whose declared identity
// does not match it, including candidates with no declared identity
// (mismatches are treated conservatively).
func accepts(t, c *Ticket) bool {
	if t.GenderPreference == "" || t.GenderPreference == PreferAny {
		return true
	}
	return c.DeclaredIdentity == Gender(t.GenderPreference)
}

// Eligible reports whether two tickets may be paired: same chat type and a
// symmetric gender-preference check (both sides must accept each other).
func Eligible(a, b *Ticket) bool {
	if a.ParticipantID == b.ParticipantID {
		return false
	}
	if a.ChatType != b.ChatType {
		return false
	}
	return accepts(a, b) && accepts(b, a)
}
