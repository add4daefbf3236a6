package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talknow/signaling/internal/matching"
)

// ErrDoubleBooking is returned when a participant would end up in two
// sessions at once. The hub's single-owner discipline makes this impossible
// by construction; a detection is an internal bug, not a recoverable state.
var ErrDoubleBooking = errors.New("session: participant already in a session")

// Table maps session IDs and participant IDs to active sessions. Not
// goroutine-safe; owned by the hub actor.
type Table struct {
	byID          map[string]*Session
	byParticipant map[string]string // participant ID -> session ID
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		byID:          make(map[string]*Session),
		byParticipant: make(map[string]string),
	}
}

// Create builds an active session for two distinct participants. It fails
// with ErrDoubleBooking if either participant is already in a session.
func (t *Table) Create(a, b string, chatType matching.ChatType) (*Session, error) {
	if a == b {
		return nil, fmt.Errorf("session: cannot pair %s with itself", a)
	}
	if sid, ok := t.byParticipant[a]; ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrDoubleBooking, a, sid)
	}
	if sid, ok := t.byParticipant[b]; ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrDoubleBooking, b, sid)
	}

	s := &Session{
		ID:        uuid.New().String(),
		A:         a,
		B:         b,
		ChatType:  chatType,
		State:     StateActive,
		CreatedAt: time.Now(),
	}
	t.byID[s.ID] = s
	t.byParticipant[a] = s.ID
	t.byParticipant[b] = s.ID
	return s, nil
}

// Get returns the session with the given ID, or nil.
func (t *Table) Get(sessionID string) *Session {
	return t.byID[sessionID]
}

// ByParticipant returns the participant's active session, or nil.
func (t *Table) ByParticipant(participantID string) *Session {
	sid, ok := t.byParticipant[participantID]
	if !ok {
		return nil
	}
	return t.byID[sid]
}

// Contains reports whether the participant is in an active session.
func (t *Table) Contains(participantID string) bool {
	_, ok := t.byParticipant[participantID]
	return ok
}

// End transitions a session to ended and removes it from both indexes.
// Ending an unknown or already-ended session is a no-op returning nil, so
// teardown races (double disconnect, skip vs. disconnect) stay idempotent.
func (t *Table) End(sessionID string, cause EndCause) *Session {
	s, ok := t.byID[sessionID]
	if !ok {
		return nil
	}
	delete(t.byID, sessionID)
	delete(t.byParticipant, s.A)
	delete(t.byParticipant, s.B)
	s.State = StateEnded
	s.EndedAt = time.Now()
	s.Cause = cause
	return s
}

// Count returns the number of active sessions.
func (t *Table) Count() int {
	return len(t.byID)
}
