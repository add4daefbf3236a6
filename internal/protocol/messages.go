// Package protocol defines the WebSocket message types exchanged between
// clients and the signaling server. All messages are serialized as JSON and
// follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeFindMatch    = "find_match"
	TypeCancelMatch  = "cancel_match"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChatMessage  = "chat_message"
	TypeSkip         = "skip"
	TypeDisconnect   = "disconnect"
	TypeReport       = "report"
	TypePing         = "ping"
)

// Server -> Client message types. Offer, answer, ice-candidate and
// chat_message are relayed under the same type strings they arrive with.
const (
	TypeWaiting             = "waiting"
	TypeMatched             = "matched"
	TypeMessageBlocked      = "message_blocked"
	TypePartnerDisconnected = "partner_disconnected"
	TypeReadyToMatch        = "ready_to_match"
	TypeRateLimited         = "rate_limited"
	TypeBlocked             = "blocked"
	TypeError               = "error"
	TypePong                = "pong"
)

// signalingTypes is the set of opaque WebRTC payloads relayed verbatim
// between partners.
var signalingTypes = map[string]bool{
	TypeOffer:        true,
	TypeAnswer:       true,
	TypeICECandidate: true,
}

// IsSignaling reports whether msgType is one of the opaque WebRTC signaling
// payloads (offer, answer, ice-candidate).
func IsSignaling(msgType string) bool {
	return signalingTypes[msgType]
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// FindMatchMsg is sent by the client to enter the matchmaking queue.
// GenderPreference is honored only for premium participants; UseTrial
// requests priority matching against an active premium trial.
type FindMatchMsg struct {
	Type             string   `json:"type"`
	Interests        []string `json:"interests"`
	PreferVideo      bool     `json:"prefer_video"`
	UseTrial         bool     `json:"use_trial"`
	GenderPreference string   `json:"gender_preference,omitempty"`
}

// CancelMatchMsg is sent by the client to leave the matchmaking queue.
type CancelMatchMsg struct {
	Type string `json:"type"`
}

// SignalMsg carries an opaque WebRTC payload (offer, answer or
// ice-candidate). Data is relayed to the partner without interpretation.
type SignalMsg struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	PartnerID string          `json:"partner_id,omitempty"`
}

// ChatMessageMsg is a text message sent by the client within a session.
type ChatMessageMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	PartnerID string `json:"partner_id,omitempty"`
}

// SkipMsg ends the current session and immediately re-enters matchmaking.
type SkipMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id,omitempty"`
}

// DisconnectMsg ends the current session without re-entering matchmaking.
type DisconnectMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id,omitempty"`
}

// ReportMsg files an abuse report against the current partner and ends the
// session.
type ReportMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	PartnerID string `json:"partner_id,omitempty"`
	Reason    string `json:"reason"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// WaitingMsg tells the client it is queued with no eligible partner yet.
type WaitingMsg struct {
	Type      string `json:"type"`
	QueueSize int    `json:"queue_size"`
}

// ICEServer describes one STUN/TURN entry handed to matched clients.
type ICEServer struct {
	URLs       string `json:"urls"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// MatchedMsg is sent to both participants when a session is created.
type MatchedMsg struct {
	Type       string      `json:"type"`
	PartnerID  string      `json:"partner_id"`
	SessionID  string      `json:"session_id"`
	ChatType   string      `json:"chat_type"`
	ICEServers []ICEServer `json:"ice_servers"`
}

// RelayedSignalMsg is an opaque signaling payload forwarded from the partner.
type RelayedSignalMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	From string          `json:"from"`
}

// RelayedChatMsg is a moderated chat message forwarded from the partner.
// IsWarned marks content the classifier allowed with a warning.
type RelayedChatMsg struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	From     string `json:"from"`
	IsWarned bool   `json:"is_warned"`
}

// MessageBlockedMsg tells the sender their chat message was not relayed.
type MessageBlockedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PartnerDisconnectedMsg tells a participant their partner left the session.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// ReadyToMatchMsg confirms a skip: the sender is back in matchmaking.
type ReadyToMatchMsg struct {
	Type string `json:"type"`
}

// RateLimitedMsg is sent when an action exceeded its rate-limit window.
// RetryAfter is the number of seconds until the window resets.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// BlockedMsg is sent when the sender's fingerprint is abuse-blocked.
// Remaining is the number of seconds until the block expires.
type BlockedMsg struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorMsg communicates a non-fatal error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeFindMatch:
		var m FindMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelMatch:
		var m CancelMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOffer, TypeAnswer, TypeICECandidate:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDisconnect:
		var m DisconnectMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
