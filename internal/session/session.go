// Package session manages active pairings and their state machines. The
// Table, like the matchmaking queue, has no internal locking: the hub actor
// is its single owner, which is what makes pairing and teardown atomic with
// respect to each other.
package session

import (
	"time"

	"github.com/talknow/signaling/internal/matching"
)

// State is a session's position in the matched -> active -> ended machine.
// The matched -> active transition is immediate (both parties are notified
// as part of pairing), so observable sessions are active or ended.
type State string

const (
	StateMatched State = "matched"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// EndCause records why a session ended.
type EndCause string

const (
	EndSkip        EndCause = "skip"
	EndDisconnect  EndCause = "disconnect"
	EndReport      EndCause = "report"
	EndSendFailure EndCause = "send_failure"
)

// Session is a pairing of exactly two participants.
type Session struct {
	ID        string
	A         string
	B         string
	ChatType  matching.ChatType
	State     State
	CreatedAt time.Time
	EndedAt   time.Time
	Cause     EndCause
}

// Partner returns the other participant's ID, or "" if participantID is not
// part of this session.
func (s *Session) Partner(participantID string) string {
	switch participantID {
	case s.A:
		return s.B
	case s.B:
		return s.A
	}
	return ""
}

// IsParticipant reports whether participantID belongs to this session.
func (s *Session) IsParticipant(participantID string) bool {
	return participantID == s.A || participantID == s.B
}
