package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrConflict = errors.New("record already exists")

// =============================================================================
// PROFILE REPOSITORY
// =============================================================================

type ProfileRepository struct{}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{}
}

// Create inserts a profile, assigning an id and creation time when missing.
func (r *ProfileRepository) Create(ctx context.Context, p *Profile) error {
	if !p.Kind.Valid() {
		return fmt.Errorf("invalid profile kind %q", p.Kind)
	}
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	const stmt = `
		INSERT INTO profiles (id, kind, username, full_name, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := ExecDB(ctx, stmt, p.ID, string(p.Kind), p.Username, p.FullName, formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", p.Username, ErrConflict)
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	const stmt = `SELECT id, kind, username, full_name, created_at FROM profiles WHERE id = ?`
	return r.scanProfile(QueryRowDB(ctx, stmt, id))
}

func (r *ProfileRepository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	const stmt = `SELECT id, kind, username, full_name, created_at FROM profiles WHERE username = ?`
	return r.scanProfile(QueryRowDB(ctx, stmt, username))
}

func (r *ProfileRepository) scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var kind, createdAt string
	if err := row.Scan(&p.ID, &kind, &p.Username, &p.FullName, &createdAt); err != nil {
		return nil, notFound(err, "profile")
	}
	p.Kind = ProfileKind(kind)

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile created_at: %w", err)
	}
	p.CreatedAt = t
	return &p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
