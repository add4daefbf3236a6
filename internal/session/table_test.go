package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/talknow/signaling/internal/matching"
)

func TestCreate_TwoDistinctParticipants(t *testing.T) {
	tbl := NewTable()

	s, err := tbl.Create("a", "b", matching.ChatVideo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID == "" {
		t.Error("expected a session ID")
	}
	if s.State != StateActive {
		t.Errorf("expected active state, got %s", s.State)
	}
	if s.Partner("a") != "b" || s.Partner("b") != "a" {
		t.Error("partner lookup broken")
	}
	if s.Partner("stranger") != "" {
		t.Error("expected empty partner for non-participant")
	}
	if !tbl.Contains("a") || !tbl.Contains("b") {
		t.Error("both participants must be indexed")
	}
}

func TestCreate_RejectsSelfPairing(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Create("a", "a", matching.ChatText); err == nil {
		t.Fatal("expected error pairing a participant with itself")
	}
}

func TestCreate_DoubleBooking(t *testing.T) {
	tbl := NewTable()
	tbl.Create("a", "b", matching.ChatText)

	_, err := tbl.Create("a", "c", matching.ChatText)
	if !errors.Is(err, ErrDoubleBooking) {
		t.Fatalf("expected ErrDoubleBooking, got %v", err)
	}
	_, err = tbl.Create("c", "b", matching.ChatText)
	if !errors.Is(err, ErrDoubleBooking) {
		t.Fatalf("expected ErrDoubleBooking, got %v", err)
	}
}

func TestEnd_RemovesAndMarks(t *testing.T) {
	tbl := NewTable()
	s, _ := tbl.Create("a", "b", matching.ChatVideo)

	ended := tbl.End(s.ID, EndSkip)
	if ended == nil {
		t.Fatal("expected the ended session")
	}
	if ended.State != StateEnded || ended.Cause != EndSkip {
		t.Errorf("unexpected end state: %s/%s", ended.State, ended.Cause)
	}
	if tbl.Contains("a") || tbl.Contains("b") {
		t.Error("participants must be released on end")
	}
	if tbl.Get(s.ID) != nil {
		t.Error("ended session must leave the table")
	}
}

func TestEnd_Idempotent(t *testing.T) {
	tbl := NewTable()
	s, _ := tbl.Create("a", "b", matching.ChatText)

	tbl.End(s.ID, EndDisconnect)
	if tbl.End(s.ID, EndDisconnect) != nil {
		t.Fatal("second end must be a no-op")
	}
	if tbl.End("no-such-session", EndDisconnect) != nil {
		t.Fatal("ending an unknown session must be a no-op")
	}
}

func TestEnd_FreshSessionAfterEnd(t *testing.T) {
	tbl := NewTable()
	s1, _ := tbl.Create("a", "b", matching.ChatText)
	tbl.End(s1.ID, EndSkip)

	s2, err := tbl.Create("a", "c", matching.ChatText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s2.ID == s1.ID {
		t.Error("a new pairing must never reuse an ended session ID")
	}
}

func TestMessageBuffer_KeepsLastN(t *testing.T) {
	mb := NewMessageBuffer()

	for i := 0; i < 8; i++ {
		mb.Add("s1", BufferedMessage{From: "a", Text: fmt.Sprintf("msg-%d", i), Ts: int64(i)})
	}

	msgs := mb.Get("s1")
	if len(msgs) != MaxBufferMessages {
		t.Fatalf("expected %d messages, got %d", MaxBufferMessages, len(msgs))
	}
	if msgs[0].Text != "msg-3" || msgs[len(msgs)-1].Text != "msg-7" {
		t.Errorf("expected msg-3..msg-7, got %q..%q", msgs[0].Text, msgs[len(msgs)-1].Text)
	}
}

func TestMessageBuffer_RemoveAndEmpty(t *testing.T) {
	mb := NewMessageBuffer()
	mb.Add("s1", BufferedMessage{From: "a", Text: "hi", Ts: 1})
	mb.Remove("s1")

	if got := mb.Get("s1"); len(got) != 0 {
		t.Errorf("expected empty buffer after remove, got %d", len(got))
	}
	if got := mb.Get("never-seen"); len(got) != 0 {
		t.Errorf("expected empty buffer for unknown session, got %d", len(got))
	}
}

func TestMessageBuffer_ConcurrentAccess(t *testing.T) {
	mb := NewMessageBuffer()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", n%4)
			for j := 0; j < 100; j++ {
				mb.Add(sid, BufferedMessage{From: "x", Text: "m", Ts: int64(j)})
				mb.Get(sid)
			}
		}(i)
	}
	wg.Wait()
}
