package matching

import "sort"

// Match is a successful pairing. Both tickets have already been removed from
// the queue when a Match is returned.
type Match struct {
	A      *Ticket
	B      *Ticket
	Shared []string
}

// Queue holds waiting tickets. It is not goroutine-safe; the hub actor is
// its single owner.
type Queue struct {
	tickets map[string]*Ticket
	nextSeq uint64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{tickets: make(map[string]*Ticket)}
}

// Enqueue inserts a ticket and immediately attempts pairing. On success both
// tickets are removed and the Match is returned; otherwise the ticket stays
// queued and nil is returned. A ticket already queued for the same
// participant is replaced.
func (q *Queue) Enqueue(t *Ticket) *Match {
	t.seq = q.nextSeq
	q.nextSeq++
	q.tickets[t.ParticipantID] = t

	if best := q.bestCandidate(t); best != nil {
		return q.take(t, best)
	}
	return nil
}

// Cancel removes a participant's ticket if still waiting. It is idempotent
// and reports whether a ticket was removed.
func (q *Queue) Cancel(participantID string) bool {
	if _, ok := q.tickets[participantID]; !ok {
		return false
	}
	delete(q.tickets, participantID)
	return true
}

// Contains reports whether the participant has a waiting ticket.
func (q *Queue) Contains(participantID string) bool {
	_, ok := q.tickets[participantID]
	return ok
}

// Size returns the number of waiting tickets.
func (q *Queue) Size() int {
	return len(q.tickets)
}

// NextPair scans waiting tickets oldest-first and returns the first pairing
// it can make, or nil when no two tickets are eligible. Callers run it in a
// loop on retry sweeps so that tickets left waiting by earlier races are
// eventually paired.
func (q *Queue) NextPair() *Match {
	for _, t := range q.byAge() {
		if _, ok := q.tickets[t.ParticipantID]; !ok {
			continue // already taken earlier in this sweep
		}
		if best := q.bestCandidate(t); best != nil {
			return q.take(t, best)
		}
	}
	return nil
}

// bestCandidate selects the eligible candidate for t: highest interest
// overlap, ties broken by priority and then by longest wait. The age
// tie-break bounds starvation: a ticket that keeps losing overlap ties must
// eventually win on age.
func (q *Queue) bestCandidate(t *Ticket) *Ticket {
	var (
		best        *Ticket
		bestOverlap = -1
	)
	for _, c := range q.tickets {
		if !Eligible(t, c) {
			continue
		}
		ov := Overlap(t, c)
		if best == nil || ov > bestOverlap || (ov == bestOverlap && prefer(c, best)) {
			best = c
			bestOverlap = ov
		}
	}
	return best
}

// prefer reports whether candidate a beats candidate b at equal overlap:
// priority tickets first, then the older ticket.
func prefer(a, b *Ticket) bool {
	if a.Priority != b.Priority {
		return a.Priority
	}
	return a.seq < b.seq
}

// take removes both tickets and builds the Match.
func (q *Queue) take(a, b *Ticket) *Match {
	delete(q.tickets, a.ParticipantID)
	delete(q.tickets, b.ParticipantID)
	return &Match{A: a, B: b, Shared: SharedInterests(a, b)}
}

// byAge returns the waiting tickets oldest-first.
func (q *Queue) byAge() []*Ticket {
	out := make([]*Ticket, 0, len(q.tickets))
	for _, t := range q.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
