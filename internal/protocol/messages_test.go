package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseClientMessage_FindMatch(t *testing.T) {
	raw := `{"type":"find_match","interests":["Gaming","Music"],"prefer_video":true,"use_trial":false,"gender_preference":"female"}`

	msgType, msg, err := ParseClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFindMatch {
		t.Errorf("expected type %q, got %q", TypeFindMatch, msgType)
	}

	m, ok := msg.(FindMatchMsg)
	if !ok {
		t.Fatalf("expected FindMatchMsg, got %T", msg)
	}
	if len(m.Interests) != 2 || m.Interests[0] != "Gaming" {
		t.Errorf("unexpected interests: %v", m.Interests)
	}
	if !m.PreferVideo {
		t.Error("expected prefer_video=true")
	}
	if m.GenderPreference != "female" {
		t.Errorf("expected gender_preference=female, got %q", m.GenderPreference)
	}
}

func TestParseClientMessage_Signaling(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
	}{
		{"offer", TypeOffer},
		{"answer", TypeAnswer},
		{"ice candidate", TypeICECandidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"type":"` + tt.msgType + `","data":{"sdp":"v=0"},"partner_id":"p2"}`

			msgType, msg, err := ParseClientMessage([]byte(raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tt.msgType {
				t.Errorf("expected type %q, got %q", tt.msgType, msgType)
			}

			m, ok := msg.(SignalMsg)
			if !ok {
				t.Fatalf("expected SignalMsg, got %T", msg)
			}
			if m.PartnerID != "p2" {
				t.Errorf("expected partner_id=p2, got %q", m.PartnerID)
			}

			// Payload must survive as raw JSON, uninterpreted.
			var payload map[string]string
			if err := json.Unmarshal(m.Data, &payload); err != nil {
				t.Fatalf("data not valid JSON: %v", err)
			}
			if payload["sdp"] != "v=0" {
				t.Errorf("unexpected data payload: %v", payload)
			}
		})
	}
}

func TestParseClientMessage_ChatMessage(t *testing.T) {
	raw := `{"type":"chat_message","session_id":"s1","content":"hello","partner_id":"p2"}`

	msgType, msg, err := ParseClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Errorf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	m, ok := msg.(ChatMessageMsg)
	if !ok {
		t.Fatalf("expected ChatMessageMsg, got %T", msg)
	}
	if m.SessionID != "s1" || m.Content != "hello" {
		t.Errorf("unexpected fields: %+v", m)
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{not json`},
		{"missing type", `{"content":"hi"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"shutdown"}`},
		{"server-only type", `{"type":"matched"}`},
		{"wrong payload shape", `{"type":"find_match","interests":"not-an-array"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseClientMessage([]byte(tt.input))
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
		})
	}
}

func TestParseClientMessage_Report(t *testing.T) {
	raw := `{"type":"report","session_id":"s1","partner_id":"p2","reason":"harassment"}`

	_, msg, err := ParseClientMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := msg.(ReportMsg)
	if !ok {
		t.Fatalf("expected ReportMsg, got %T", msg)
	}
	if m.Reason != "harassment" {
		t.Errorf("expected reason=harassment, got %q", m.Reason)
	}
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeWaiting, WaitingMsg{QueueSize: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if m["type"] != TypeWaiting {
		t.Errorf("expected type=%q, got %v", TypeWaiting, m["type"])
	}
	if m["queue_size"] != float64(3) {
		t.Errorf("expected queue_size=3, got %v", m["queue_size"])
	}
}

func TestNewServerMessage_OverridesStructType(t *testing.T) {
	// A stale Type field on the payload struct must not leak through.
	data, err := NewServerMessage(TypePartnerDisconnected, PartnerDisconnectedMsg{Type: "stale"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"partner_disconnected"`) {
		t.Errorf("type not overridden: %s", data)
	}
}

func TestNewServerMessage_Matched(t *testing.T) {
	data, err := NewServerMessage(TypeMatched, MatchedMsg{
		PartnerID: "p2",
		SessionID: "s1",
		ChatType:  "video",
		ICEServers: []ICEServer{
			{URLs: "stun:stun.l.google.com:19302"},
			{URLs: "turn:relay.example.com:80", Username: "u", Credential: "c"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m MatchedMsg
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if len(m.ICEServers) != 2 {
		t.Fatalf("expected 2 ice servers, got %d", len(m.ICEServers))
	}
	if m.ICEServers[1].Username != "u" {
		t.Errorf("TURN credentials lost: %+v", m.ICEServers[1])
	}
}

func TestIsSignaling(t *testing.T) {
	for _, typ := range []string{TypeOffer, TypeAnswer, TypeICECandidate} {
		if !IsSignaling(typ) {
			t.Errorf("expected IsSignaling(%q)=true", typ)
		}
	}
	for _, typ := range []string{TypeChatMessage, TypeFindMatch, ""} {
		if IsSignaling(typ) {
			t.Errorf("expected IsSignaling(%q)=false", typ)
		}
	}
}
