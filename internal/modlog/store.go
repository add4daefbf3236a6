// Package modlog persists moderation audit records for administrative
// review. Records carry a content hash instead of raw text.
package modlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/talknow/signaling/internal/moderation"
)

// Store manages moderation logs in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a moderation log store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts one audit record.
func (s *Store) Create(ctx context.Context, rec *moderation.AuditRecord) error {
	const query = `
		INSERT INTO moderation_logs (session_id, sender_id, is_safe, action, categories, content_hash, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7))`

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.From,
		rec.IsSafe,
		rec.Action,
		pq.Array(rec.Categories),
		rec.ContentHash,
		rec.Ts,
	)
	if err != nil {
		return fmt.Errorf("modlog: insert: %w", err)
	}
	return nil
}

// CountUnsafe returns the number of unsafe verdicts recorded for a session,
// used when escalating a report to human review.
func (s *Store) CountUnsafe(ctx context.Context, sessionID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_logs
		WHERE session_id = $1 AND is_safe = FALSE`

	var count int
	if err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("modlog: count unsafe: %w", err)
	}
	return count, nil
}
