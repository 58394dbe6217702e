package data

import (
	"time"

	"trackhub/internal/calendar"
)

// =============================================================================
// STRUCT DEFINITIONS
// =============================================================================

type ProfileKind string

const (
	KindEnthusiast ProfileKind = "enthusiast"
	KindBusiness   ProfileKind = "business"
)

func (k ProfileKind) Valid() bool {
	return k == KindEnthusiast || k == KindBusiness
}

type Profile struct {
	ID        string      `json:"id"`
	Kind      ProfileKind `json:"kind"`
	Username  string      `json:"username"`
	FullName  string      `json:"full_name"`
	CreatedAt time.Time   `json:"created_at"`
}

// Session is stored by token hash; the raw token only exists client side.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Membership struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserMembership struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	MembershipID string     `json:"membership_id"`
	IsActive     bool       `json:"is_active"`
	PurchaseDate time.Time  `json:"purchase_date"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
}

// Member is a subscription joined with the subscriber's profile.
type Member struct {
	UserMembership
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type PostType string

const (
	PostTypePost  PostType = "post"
	PostTypeEvent PostType = "event"
)

// Post is a feed entry. Event posts carry dates, location and level rows.
type Post struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Type         PostType       `json:"type"`
	Caption      string         `json:"caption"`
	EventName    string         `json:"event_name,omitempty"`
	Location     string         `json:"location,omitempty"`
	EventDate    *calendar.Date `json:"event_date,omitempty"`
	EventEndDate *calendar.Date `json:"event_end_date,omitempty"`
	IsMultiDay   bool           `json:"is_multi_day"`
	ImageURL     string         `json:"image_url,omitempty"`
	MembershipID string         `json:"membership_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Levels       []EventLevel   `json:"levels,omitempty"`
}

type EventLevel struct {
	ID       string `json:"id"`
	PostID   string `json:"post_id"`
	LevelID  int    `json:"level_id"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}
