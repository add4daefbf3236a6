package moderation

import (
	"crypto/sha256"
	"encoding/hex"
)

// Actions a verdict can carry. Warn relays the message flagged, block stops it.
const (
	ActionAllow = "allow"
	ActionWarn  = "warn"
	ActionBlock = "block"
)

// Verdict is the outcome of a content review.
type Verdict struct {
	IsSafe      bool     `json:"is_safe"`
	Action      string   `json:"action"`
	Categories  []string `json:"categories,omitempty"`
	ContentHash string   `json:"content_hash"`
}

// CheckRequest is sent over moderation.check when a message needs review.
type CheckRequest struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// CheckResult is the reply carrying the review outcome.
type CheckResult struct {
	SessionID string  `json:"session_id"`
	Verdict   Verdict `json:"verdict"`
}

// AuditRecord is published to moderation.audit for every reviewed message.
// It carries the content hash, never the raw text.
type AuditRecord struct {
	SessionID   string   `json:"session_id"`
	From        string   `json:"from"`
	IsSafe      bool     `json:"is_safe"`
	Action      string   `json:"action"`
	Categories  []string `json:"categories,omitempty"`
	ContentHash string   `json:"content_hash"`
	Ts          int64    `json:"ts"`
}

// HashContent returns a short stable digest of message text for audit records,
// so logs never store the raw content.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
