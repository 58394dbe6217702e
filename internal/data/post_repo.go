package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// POST REPOSITORY
// =============================================================================

type PostRepository struct{}

func NewPostRepository() *PostRepository {
	return &PostRepository{}
}

const postColumns = `p.id, p.user_id, p.type, p.caption, p.event_name, p.location,
	p.event_date, p.event_end_date, p.is_multi_day, p.image_url, p.membership_id, p.created_at`

// =============================================================================
// CORE CRUD OPERATIONS
// =============================================================================

// Create inserts a post or event record and fills in its id and time.
func (r *PostRepository) Create(ctx context.Context, p *Post) error {
	if p.Type == "" {
		p.Type = PostTypePost
	}
	if p.Type == PostTypeEvent && p.EventDate == nil {
		return fmt.Errorf("event posts need an event date")
	}
	if p.EventEndDate != nil && p.EventDate != nil && p.EventEndDate.Before(*p.EventDate) {
		return fmt.Errorf("event end date %s is before start date %s", p.EventEndDate, p.EventDate)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	const stmt = `
		INSERT INTO posts (
			id, user_id, type, caption, event_name, location, event_date, event_end_date,
			is_multi_day, image_url, membership_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := ExecDB(ctx, stmt,
		p.ID, p.UserID, string(p.Type), p.Caption,
		nullableString(p.EventName), nullableString(p.Location),
		formatNullableDate(p.EventDate), formatNullableDate(p.EventEndDate),
		p.IsMultiDay, nullableString(p.ImageURL), nullableString(p.MembershipID),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// CreateLevels writes the ticket rows for an event in one transaction.
func (r *PostRepository) CreateLevels(ctx context.Context, postID string, rows []EventLevel) error {
	if len(rows) == 0 {
		return nil
	}

	return WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO event_levels (id, post_id, level_id, price, quantity)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare level insert: %w", err)
		}
		defer stmt.Close()

		for i := range rows {
			if rows[i].ID == "" {
				rows[i].ID = uuid.New().String()
			}
			rows[i].PostID = postID
			if _, err := stmt.ExecContext(ctx, rows[i].ID, postID, rows[i].LevelID, rows[i].Price, rows[i].Quantity); err != nil {
				return fmt.Errorf("failed to insert level %d: %w", rows[i].LevelID, err)
			}
		}
		return nil
	})
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*Post, error) {
	stmt := `SELECT ` + postColumns + ` FROM posts p WHERE p.id = ?`

	p, err := r.scanPost(QueryRowDB(ctx, stmt, id))
	if err != nil {
		return nil, notFound(err, "post")
	}

	levels, err := r.levelsFor(ctx, []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Levels = levels[p.ID]
	return p, nil
}

// Delete removes a post; its ticket levels go with it.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	result, err := ExecDB(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("post: %w", ErrNotFound)
	}
	return nil
}

// =============================================================================
// FEED
// =============================================================================

// visibleTo filters posts by viewer. Bind the viewer id twice, then now.
const visibleTo = `(p.membership_id IS NULL
	OR p.user_id = ?
	OR EXISTS (
		SELECT 1 FROM user_memberships um
		WHERE um.membership_id = p.membership_id
			AND um.user_id = ?
			AND um.is_active = 1
			AND (um.expiry_date IS NULL OR um.expiry_date > ?)
	))`

// Feed returns the newest posts visible to viewerID. Members-only posts are
// visible to their author and to active subscribers of the membership.
func (r *PostRepository) Feed(ctx context.Context, viewerID string, now time.Time, limit int) ([]Post, error) {
	stmt := `SELECT ` + postColumns + `
		FROM posts p
		WHERE ` + visibleTo + `
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?`

	return r.listVisible(ctx, stmt, limit, viewerID, viewerID, formatTime(now))
}

// ListByUser returns authorID's posts that viewerID may see, newest first.
func (r *PostRepository) ListByUser(ctx context.Context, authorID, viewerID string, now time.Time, limit int) ([]Post, error) {
	stmt := `SELECT ` + postColumns + `
		FROM posts p
		WHERE p.user_id = ? AND ` + visibleTo + `
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?`

	return r.listVisible(ctx, stmt, limit, authorID, viewerID, viewerID, formatTime(now))
}

func (r *PostRepository) listVisible(ctx context.Context, stmt string, limit int, args ...interface{}) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := QueryDB(ctx, stmt, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	var ids []string
	for rows.Next() {
		p, err := r.scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
		if p.Type == PostTypeEvent {
			ids = append(ids, p.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	rows.Close()

	levels, err := r.levelsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Levels = levels[posts[i].ID]
	}
	return posts, nil
}

func (r *PostRepository) levelsFor(ctx context.Context, postIDs []string) (map[string][]EventLevel, error) {
	result := make(map[string][]EventLevel, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	stmt := `
		SELECT id, post_id, level_id, price, quantity
		FROM event_levels
		WHERE post_id IN (?` + strings.Repeat(", ?", len(postIDs)-1) + `)
		ORDER BY post_id, level_id`

	rows, err := QueryDB(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l EventLevel
		if err := rows.Scan(&l.ID, &l.PostID, &l.LevelID, &l.Price, &l.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan event level: %w", err)
		}
		result[l.PostID] = append(result[l.PostID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event levels: %w", err)
	}
	return result, nil
}

// EventsWithoutLevels returns event posts created in [since, until) that
// have no ticket level rows.
func (r *PostRepository) EventsWithoutLevels(ctx context.Context, since, until time.Time) ([]Post, error) {
	stmt := `SELECT ` + postColumns + `
		FROM posts p
		WHERE p.type = ?
			AND p.created_at >= ? AND p.created_at < ?
			AND NOT EXISTS (SELECT 1 FROM event_levels l WHERE l.post_id = p.id)
		ORDER BY p.created_at`

	rows, err := QueryDB(ctx, stmt, string(PostTypeEvent), formatTime(since), formatTime(until))
	if err != nil {
		return nil, fmt.Errorf("failed to query events without levels: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := r.scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}
	return posts, nil
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

func (r *PostRepository) scanPost(row rowScanner) (*Post, error) {
	var p Post
	var postType, createdAt string
	var eventName, location, eventDate, eventEndDate, imageURL, membershipID sql.NullString

	err := row.Scan(
		&p.ID, &p.UserID, &postType, &p.Caption, &eventName, &location,
		&eventDate, &eventEndDate, &p.IsMultiDay, &imageURL, &membershipID, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.Type = PostType(postType)
	p.EventName = eventName.String
	p.Location = location.String
	p.ImageURL = imageURL.String
	p.MembershipID = membershipID.String

	if p.EventDate, err = parseNullableDate(eventDate); err != nil {
		return nil, fmt.Errorf("failed to parse event_date: %w", err)
	}
	if p.EventEndDate, err = parseNullableDate(eventEndDate); err != nil {
		return nil, fmt.Errorf("failed to parse event_end_date: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse post created_at: %w", err)
	}
	return &p, nil
}
