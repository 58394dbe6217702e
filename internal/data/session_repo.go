package data

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// SESSION REPOSITORY
// =============================================================================

type SessionRepository struct{}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

func (r *SessionRepository) Create(ctx context.Context, tokenHash, userID string, now time.Time, ttl time.Duration) (*Session, error) {
	s := &Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	const stmt = `INSERT INTO sessions (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`
	if _, err := ExecDB(ctx, stmt, s.TokenHash, s.UserID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt)); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// Lookup returns the session for tokenHash if it has not expired at now.
func (r *SessionRepository) Lookup(ctx context.Context, tokenHash string, now time.Time) (*Session, error) {
	const stmt = `
		SELECT token_hash, user_id, created_at, expires_at
		FROM sessions WHERE token_hash = ? AND expires_at > ?`

	var s Session
	var createdAt, expiresAt string
	err := QueryRowDB(ctx, stmt, tokenHash, formatTime(now)).Scan(&s.TokenHash, &s.UserID, &createdAt, &expiresAt)
	if err != nil {
		return nil, notFound(err, "session")
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse session created_at: %w", err)
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse session expires_at: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if _, err := ExecDB(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes up to limit sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const stmt = `
		DELETE FROM sessions
		WHERE token_hash IN (
			SELECT token_hash FROM sessions
			WHERE expires_at <= ?
			LIMIT ?
		)`

	result, err := ExecDB(ctx, stmt, formatTime(now), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
