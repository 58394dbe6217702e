package data

import (
	"context"
	"errors"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MEMBERSHIP REPOSITORY
// =============================================================================

var ErrNotBusiness = errors.New("only business profiles can offer memberships")

type MembershipRepository struct{}

func NewMembershipRepository() *MembershipRepository {
	return &MembershipRepository{}
}

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

// Create adds a membership offered by a business profile.
func (r *MembershipRepository) Create(ctx context.Context, m *Membership) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("membership name is required")
	}
	if m.Price < 0 {
		return fmt.Errorf("membership price cannot be negative")
	}

	owner, err := NewProfileRepository().GetByID(ctx, m.BusinessID)
	if err != nil {
		return fmt.Errorf("failed to load membership owner: %w", err)
	}
	if owner.Kind != KindBusiness {
		return ErrNotBusiness
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	const stmt = `
		INSERT INTO memberships (id, business_id, name, description, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = ExecDB(ctx, stmt, m.ID, m.BusinessID, m.Name, m.Description, m.Price, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

func (r *MembershipRepository) GetByID(ctx context.Context, id string) (*Membership, error) {
	const stmt = `
		SELECT id, business_id, name, description, price, created_at
		FROM memberships WHERE id = ?`

	m, err := r.scanMembership(QueryRowDB(ctx, stmt, id))
	if err != nil {
		return nil, notFound(err, "membership")
	}
	return m, nil
}

// ListByBusiness returns a business's memberships in creation order.
func (r *MembershipRepository) ListByBusiness(ctx context.Context, businessID string) ([]Membership, error) {
	const stmt = `
		SELECT id, business_id, name, description, price, created_at
		FROM memberships WHERE business_id = ?
		ORDER BY created_at, name`

	rows, err := QueryDB(ctx, stmt, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	result := []Membership{}
	for rows.Next() {
		m, err := r.scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership row: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership rows: %w", err)
	}
	return result, nil
}

// Update saves a membership's name, description and price.
func (r *MembershipRepository) Update(ctx context.Context, m *Membership) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("membership name is required")
	}
	if m.Price < 0 {
		return fmt.Errorf("membership price cannot be negative")
	}

	const stmt = `UPDATE memberships SET name = ?, description = ?, price = ? WHERE id = ?`
	result, err := ExecDB(ctx, stmt, m.Name, m.Description, m.Price, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	return nil
}

// Delete removes a membership and its subscriptions. A membership that
// still gates posts is kept, since removing it would make those posts public.
func (r *MembershipRepository) Delete(ctx context.Context, id string) error {
	return WithTx(ctx, func(tx *sql.Tx) error {
		var gated int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE membership_id = ?`, id).Scan(&gated)
		if err != nil {
			return fmt.Errorf("failed to count gated posts: %w", err)
		}
		if gated > 0 {
			return fmt.Errorf("membership gates %d posts: %w", gated, ErrConflict)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete membership: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("membership: %w", ErrNotFound)
		}
		return nil
	})
}

func (r *MembershipRepository) scanMembership(row rowScanner) (*Membership, error) {
	var m Membership
	var createdAt string
	if err := row.Scan(&m.ID, &m.BusinessID, &m.Name, &m.Description, &m.Price, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse membership created_at: %w", err)
	}
	m.CreatedAt = t
	return &m, nil
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe records an active subscription. Re-subscribing reactivates the
// existing row and replaces its expiry.
func (r *MembershipRepository) Subscribe(ctx context.Context, userID, membershipID string, now time.Time, expiry *time.Time) (*UserMembership, error) {
	if _, err := r.GetByID(ctx, membershipID); err != nil {
		return nil, err
	}

	um := &UserMembership{
		ID:           uuid.New().String(),
		UserID:       userID,
		MembershipID: membershipID,
		IsActive:     true,
		PurchaseDate: now,
		ExpiryDate:   expiry,
	}

	const stmt = `
		INSERT INTO user_memberships (id, user_id, membership_id, is_active, purchase_date, expiry_date)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (user_id, membership_id) DO UPDATE SET
			is_active = 1,
			purchase_date = excluded.purchase_date,
			expiry_date = excluded.expiry_date`

	if _, err := ExecDB(ctx, stmt, um.ID, userID, membershipID, formatTime(now), formatNullableTime(expiry)); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	err := QueryRowDB(ctx,
		`SELECT id FROM user_memberships WHERE user_id = ? AND membership_id = ?`,
		userID, membershipID,
	).Scan(&um.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload subscription: %w", err)
	}
	return um, nil
}

func (r *MembershipRepository) Cancel(ctx context.Context, userID, membershipID string) error {
	const stmt = `UPDATE user_memberships SET is_active = 0 WHERE user_id = ? AND membership_id = ?`
	result, err := ExecDB(ctx, stmt, userID, membershipID)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription: %w", ErrNotFound)
	}
	return nil
}

// IsSubscribed reports whether userID holds an active, unexpired
// subscription to membershipID at now.
func (r *MembershipRepository) IsSubscribed(ctx context.Context, userID, membershipID string, now time.Time) (bool, error) {
	const stmt = `
		SELECT COUNT(*) FROM user_memberships
		WHERE user_id = ? AND membership_id = ? AND is_active = 1
			AND (expiry_date IS NULL OR expiry_date > ?)`

	var count int
	if err := QueryRowDB(ctx, stmt, userID, membershipID, formatTime(now)).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return count > 0, nil
}

// ListSubscriptions returns a user's subscriptions, newest first.
func (r *MembershipRepository) ListSubscriptions(ctx context.Context, userID string) ([]UserMembership, error) {
	const stmt = `
		SELECT id, user_id, membership_id, is_active, purchase_date, expiry_date
		FROM user_memberships WHERE user_id = ?
		ORDER BY purchase_date DESC`

	rows, err := QueryDB(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	result := []UserMembership{}
	for rows.Next() {
		var um UserMembership
		var purchaseDate string
		var expiry sql.NullString
		if err := rows.Scan(&um.ID, &um.UserID, &um.MembershipID, &um.IsActive, &purchaseDate, &expiry); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		if um.PurchaseDate, err = parseTime(purchaseDate); err != nil {
			return nil, fmt.Errorf("failed to parse purchase_date: %w", err)
		}
		if um.ExpiryDate, err = parseNullableTime(expiry); err != nil {
			return nil, fmt.Errorf("failed to parse expiry_date: %w", err)
		}
		result = append(result, um)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return result, nil
}

// ListMembers returns everyone who has subscribed to membershipID, active
// or not, newest purchase first.
func (r *MembershipRepository) ListMembers(ctx context.Context, membershipID string) ([]Member, error) {
	const stmt = `
		SELECT um.id, um.user_id, um.membership_id, um.is_active, um.purchase_date, um.expiry_date,
			p.username, p.full_name
		FROM user_memberships um
		JOIN profiles p ON p.id = um.user_id
		WHERE um.membership_id = ?
		ORDER BY um.purchase_date DESC, p.username`

	rows, err := QueryDB(ctx, stmt, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	result := []Member{}
	for rows.Next() {
		var m Member
		var purchaseDate string
		var expiry sql.NullString
		err := rows.Scan(&m.ID, &m.UserID, &m.MembershipID, &m.IsActive, &purchaseDate, &expiry,
			&m.Username, &m.FullName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		if m.PurchaseDate, err = parseTime(purchaseDate); err != nil {
			return nil, fmt.Errorf("failed to parse purchase_date: %w", err)
		}
		if m.ExpiryDate, err = parseNullableTime(expiry); err != nil {
			return nil, fmt.Errorf("failed to parse expiry_date: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return result, nil
}
