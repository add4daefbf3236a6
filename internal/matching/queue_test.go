package matching

import (
	"testing"
	"time"
)

func ticket(id string, chatType ChatType, interests ...string) *Ticket {
	return &Ticket{
		ParticipantID: id,
		EnqueuedAt:    time.Now(),
		ChatType:      chatType,
		Interests:     NormalizeInterests(interests),
	}
}

func TestEnqueue_PairsCompatibleTickets(t *testing.T) {
	q := NewQueue()

	if m := q.Enqueue(ticket("alice", ChatVideo, "gaming")); m != nil {
		t.Fatal("first ticket should wait")
	}
	if q.Size() != 1 {
		t.Fatalf("expected queue size 1, got %d", q.Size())
	}

	m := q.Enqueue(ticket("bob", ChatVideo, "gaming"))
	if m == nil {
		t.Fatal("expected a match")
	}
	if q.Size() != 0 {
		t.Fatalf("both tickets must leave the queue, size=%d", q.Size())
	}

	ids := map[string]bool{m.A.ParticipantID: true, m.B.ParticipantID: true}
	if !ids["alice"] || !ids["bob"] {
		t.Errorf("unexpected pairing: %s / %s", m.A.ParticipantID, m.B.ParticipantID)
	}
	if len(m.Shared) != 1 || m.Shared[0] != "gaming" {
		t.Errorf("expected shared=[gaming], got %v", m.Shared)
	}
}

func TestEnqueue_ChatTypeMustMatch(t *testing.T) {
	q := NewQueue()

	q.Enqueue(ticket("alice", ChatVideo))
	if m := q.Enqueue(ticket("bob", ChatText)); m != nil {
		t.Fatal("video and text tickets must not pair")
	}
	if q.Size() != 2 {
		t.Fatalf("expected both tickets waiting, size=%d", q.Size())
	}
}

func TestEnqueue_NoInterestsStillPairs(t *testing.T) {
	q := NewQueue()

	q.Enqueue(ticket("alice", ChatText))
	m := q.Enqueue(ticket("bob", ChatText))
	if m == nil {
		t.Fatal("tickets without interests should still pair")
	}
	if len(m.Shared) != 0 {
		t.Errorf("expected no shared interests, got %v", m.Shared)
	}
}

func TestEnqueue_PrefersHighestOverlap(t *testing.T) {
	q := NewQueue()

	// The second candidate only accepts male partners, so the two
	// candidates cannot pair with each other while waiting.
	one := ticket("one", ChatText, "gaming")
	one.DeclaredIdentity = GenderFemale
	q.Enqueue(one)
	two := ticket("two", ChatText, "gaming", "music", "movies")
	two.DeclaredIdentity = GenderFemale
	two.GenderPreference = PreferMale
	if m := q.Enqueue(two); m != nil {
		t.Fatal("candidates must wait for the seeker")
	}

	seeker := ticket("seeker", ChatText, "gaming", "music")
	seeker.DeclaredIdentity = GenderMale
	m := q.Enqueue(seeker)
	if m == nil {
		t.Fatal("expected a match")
	}
	partner := m.A.ParticipantID
	if partner == "seeker" {
		partner = m.B.ParticipantID
	}
	if partner != "two" {
		t.Errorf("expected the two-overlap candidate, got %s", partner)
	}
}

func TestEnqueue_TieBrokenByPriority(t *testing.T) {
	q := NewQueue()

	free := ticket("free", ChatText, "gaming")
	free.DeclaredIdentity = GenderFemale
	q.Enqueue(free)

	// The premium candidate's preference excludes the waiting free one, so
	// both stay queued until the seeker arrives.
	premium := ticket("premium", ChatText, "gaming")
	premium.DeclaredIdentity = GenderFemale
	premium.Priority = true
	premium.GenderPreference = PreferMale
	if m := q.Enqueue(premium); m != nil {
		t.Fatal("candidates must wait for the seeker")
	}

	seeker := ticket("seeker", ChatText, "gaming")
	seeker.DeclaredIdentity = GenderMale
	m := q.Enqueue(seeker)
	if m == nil {
		t.Fatal("expected a match")
	}
	partner := m.A.ParticipantID
	if partner == "seeker" {
		partner = m.B.ParticipantID
	}
	if partner != "premium" {
		t.Errorf("priority ticket should win the tie, got %s", partner)
	}
}

func TestEnqueue_TieBrokenByAge(t *testing.T) {
	q := NewQueue()

	// Both candidates want male partners and are female themselves, so
	// neither can take the other while waiting.
	older := ticket("older", ChatText)
	older.DeclaredIdentity = GenderFemale
	older.GenderPreference = PreferMale
	q.Enqueue(older)

	newer := ticket("newer", ChatText)
	newer.DeclaredIdentity = GenderFemale
	newer.GenderPreference = PreferMale
	q.Enqueue(newer)
	q.Cancel("newer")
	q.Enqueue(newer) // re-enqueued, loses its age

	seeker := ticket("seeker", ChatText)
	seeker.DeclaredIdentity = GenderMale
	m := q.Enqueue(seeker)
	if m == nil {
		t.Fatal("expected a match")
	}
	partner := m.A.ParticipantID
	if partner == "seeker" {
		partner = m.B.ParticipantID
	}
	if partner != "older" {
		t.Errorf("oldest ticket should win the tie, got %s", partner)
	}
}

func TestEnqueue_GenderPreferenceFiltersSymmetrically(t *testing.T) {
	q := NewQueue()

	male := ticket("m1", ChatVideo)
	male.DeclaredIdentity = GenderMale
	q.Enqueue(male)

	// Seeker wants female partners: the male candidate is excluded even
	// though the seeker is the only other ticket.
	seeker := ticket("seeker", ChatVideo)
	seeker.DeclaredIdentity = GenderFemale
	seeker.GenderPreference = PreferFemale
	if m := q.Enqueue(seeker); m != nil {
		t.Fatal("gender-filtered tickets must not pair")
	}

	// A new female ticket is eligible for both waiting tickets at equal
	// overlap; the older male one wins the age tie-break.
	f1 := ticket("f1", ChatVideo)
	f1.DeclaredIdentity = GenderFemale
	m := q.Enqueue(f1)
	if m == nil {
		t.Fatal("expected the female candidate to pair")
	}
	ids := map[string]bool{m.A.ParticipantID: true, m.B.ParticipantID: true}
	if !ids["m1"] || !ids["f1"] {
		t.Errorf("unexpected pairing: %s / %s", m.A.ParticipantID, m.B.ParticipantID)
	}

	// The filtered seeker is still waiting and takes the next female.
	f2 := ticket("f2", ChatVideo)
	f2.DeclaredIdentity = GenderFemale
	m = q.Enqueue(f2)
	if m == nil {
		t.Fatal("expected the seeker to pair with the second candidate")
	}
	ids = map[string]bool{m.A.ParticipantID: true, m.B.ParticipantID: true}
	if !ids["seeker"] || !ids["f2"] {
		t.Errorf("unexpected pairing: %s / %s", m.A.ParticipantID, m.B.ParticipantID)
	}
}

func TestEnqueue_GenderPreferenceRejectedByCandidate(t *testing.T) {
	q := NewQueue()

	// Candidate wants male partners only.
	picky := ticket("picky", ChatText)
	picky.DeclaredIdentity = GenderFemale
	picky.GenderPreference = PreferMale
	q.Enqueue(picky)

	// Seeker accepts anyone but is female, so the candidate's preference
	// excludes the pairing (symmetric check).
	seeker := ticket("seeker", ChatText)
	seeker.DeclaredIdentity = GenderFemale
	if m := q.Enqueue(seeker); m != nil {
		t.Fatal("candidate's preference must also be satisfied")
	}
}

func TestEnqueue_UndeclaredIdentityExcludedConservatively(t *testing.T) {
	q := NewQueue()

	anon := ticket("anon", ChatText) // no declared identity
	q.Enqueue(anon)

	seeker := ticket("seeker", ChatText)
	seeker.GenderPreference = PreferFemale
	if m := q.Enqueue(seeker); m != nil {
		t.Fatal("candidates with no declared identity must be excluded, not guessed")
	}
}

func TestCancel_Idempotent(t *testing.T) {
	q := NewQueue()
	q.Enqueue(ticket("alice", ChatText))

	if !q.Cancel("alice") {
		t.Fatal("expected first cancel to remove the ticket")
	}
	if q.Cancel("alice") {
		t.Fatal("second cancel must be a no-op")
	}
	if q.Cancel("never-queued") {
		t.Fatal("cancelling an unknown participant must be a no-op")
	}
}

func TestEnqueue_ReplacesExistingTicket(t *testing.T) {
	q := NewQueue()
	q.Enqueue(ticket("alice", ChatText, "gaming"))
	q.Enqueue(ticket("alice", ChatVideo, "music"))

	if q.Size() != 1 {
		t.Fatalf("re-enqueue must replace, not duplicate; size=%d", q.Size())
	}
	if m := q.Enqueue(ticket("bob", ChatText, "gaming")); m != nil {
		t.Fatal("alice's old text ticket should be gone")
	}
}

func TestNextPair_SweepsOldestFirst(t *testing.T) {
	q := NewQueue()

	// Insert directly so the enqueue-time pairing attempt does not fire;
	// the sweep must find the eligible text pair on its own.
	insert := func(tk *Ticket) {
		tk.seq = q.nextSeq
		q.nextSeq++
		q.tickets[tk.ParticipantID] = tk
	}
	insert(ticket("v1", ChatVideo))
	insert(ticket("t1", ChatText))
	insert(ticket("t2", ChatText))

	m := q.NextPair()
	if m == nil {
		t.Fatal("expected the sweep to pair the text tickets")
	}
	ids := map[string]bool{m.A.ParticipantID: true, m.B.ParticipantID: true}
	if !ids["t1"] || !ids["t2"] {
		t.Errorf("unexpected pairing: %s / %s", m.A.ParticipantID, m.B.ParticipantID)
	}

	if q.NextPair() != nil {
		t.Fatal("no further pair should exist")
	}
	if !q.Contains("v1") {
		t.Error("the unpaired video ticket must remain queued")
	}
}

func TestNormalizeInterests(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"lowercases and trims", []string{" Gaming ", "MUSIC"}, []string{"gaming", "music"}},
		{"dedupes", []string{"gaming", "Gaming", "gaming"}, []string{"gaming"}},
		{"drops empties", []string{"", "  ", "art"}, []string{"art"}},
		{"caps at five", []string{"a", "b", "c", "d", "e", "f", "g"}, []string{"a", "b", "c", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeInterests(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestOverlap(t *testing.T) {
	a := ticket("a", ChatText, "gaming", "music", "art")
	b := ticket("b", ChatText, "music", "art", "travel")
	if ov := Overlap(a, b); ov != 2 {
		t.Errorf("expected overlap 2, got %d", ov)
	}
	if ov := Overlap(a, ticket("c", ChatText)); ov != 0 {
		t.Errorf("expected overlap 0 against empty interests, got %d", ov)
	}
}
