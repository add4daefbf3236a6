// Package report defines the user-report event published by the signaling
// engine and its PostgreSQL persistence, consumed by the moderator service.
// Each report captures who reported whom, the session, and the last few
// messages exchanged, for human review.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// validReasons is the set of allowed reason values, matching the CHECK
// constraint on the abuse_reports table.
var validReasons = map[string]bool{
	"harassment": true,
	"spam":       true,
	"explicit":   true,
	"other":      true,
}

// NormalizeReason maps a client-supplied reason onto the allowed set,
// falling back to "other".
func NormalizeReason(reason string) string {
	if validReasons[reason] {
		return reason
	}
	return "other"
}

// Message is one entry in the conversation snapshot attached to a report.
type Message struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Event is the report.filed wire format.
type Event struct {
	SessionID  string    `json:"session_id"`
	ReporterID string    `json:"reporter_id"`
	ReportedID string    `json:"reported_id"`
	Reason     string    `json:"reason"`
	Messages   []Message `json:"messages,omitempty"`
	Ts         int64     `json:"ts"`
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a report event into PostgreSQL. The message snapshot is
// marshalled to JSONB; the reason is normalized onto the allowed set.
func (s *Store) Create(ctx context.Context, ev *Event) error {
	var messagesJSON []byte
	if len(ev.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(ev.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO abuse_reports (session_id, reporter_id, reported_id, reason, messages, filed_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6))`

	_, err := s.db.ExecContext(ctx, query,
		ev.SessionID,
		ev.ReporterID,
		ev.ReportedID,
		NormalizeReason(ev.Reason),
		messagesJSON,
		ev.Ts,
	)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against a participant
// within the given window, for escalation review.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM abuse_reports
		WHERE reported_id = $1
		  AND filed_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
