// Package backend connects the event wizard to local persistence: sessions,
// memberships, image storage and event records.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trackhub/internal/data"
	"trackhub/internal/email"
	"trackhub/internal/levels"
	"trackhub/internal/logger"
	"trackhub/internal/security"
	"trackhub/internal/wizard"
)

// ErrNotOwner is returned when a caller changes a membership or post that
// belongs to someone else.
var ErrNotOwner = errors.New("only the owner can do that")

// ImageStore stores uploaded bytes and returns a public URL.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Alerter tells operators about events saved without their ticket levels.
type Alerter interface {
	NotifyPartialWrite(ctx context.Context, alert email.PartialWriteAlert) error
}

type Config struct {
	SessionTTL          time.Duration
	PlaceholderImageURL string
	WeekStart           time.Weekday
	Clock               func() time.Time
	Alerts              Alerter
}

type Service struct {
	profiles    *data.ProfileRepository
	sessions    *data.SessionRepository
	memberships *data.MembershipRepository
	posts       *data.PostRepository
	images      ImageStore
	cfg         Config
}

func New(images ImageStore, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	return &Service{
		profiles:    data.NewProfileRepository(),
		sessions:    data.NewSessionRepository(),
		memberships: data.NewMembershipRepository(),
		posts:       data.NewPostRepository(),
		images:      images,
		cfg:         cfg,
	}
}

// =============================================================================
// PROFILES AND SESSIONS
// =============================================================================

// Register creates a profile and signs it in, returning the session token.
func (s *Service) Register(ctx context.Context, kind data.ProfileKind, username, fullName string) (*data.Profile, string, error) {
	p := &data.Profile{
		Kind:      kind,
		Username:  strings.TrimSpace(username),
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: s.cfg.Clock(),
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, "", err
	}

	token, err := s.IssueSession(ctx, p.ID)
	if err != nil {
		return nil, "", err
	}
	logger.LogInfo("Registered %s profile %s (%s)", p.Kind, p.Username, p.ID)
	return p, token, nil
}

// IssueSession starts a new session for an existing user.
func (s *Service) IssueSession(ctx context.Context, userID string) (string, error) {
	token, err := security.GenerateSessionToken()
	if err != nil {
		return "", err
	}
	if _, err := s.sessions.Create(ctx, security.HashToken(token), userID, s.cfg.Clock(), s.cfg.SessionTTL); err != nil {
		return "", err
	}
	return token, nil
}

// LookupSession resolves a bearer token to a user id, or "" when the token
// is unknown or expired.
func (s *Service) LookupSession(ctx context.Context, token string) (string, error) {
	sess, err := s.sessions.Lookup(ctx, security.HashToken(token), s.cfg.Clock())
	if errors.Is(err, data.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.UserID, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, security.HashToken(token))
}

func (s *Service) Profile(ctx context.Context, id string) (*data.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *Service) ProfileByUsername(ctx context.Context, username string) (*data.Profile, error) {
	return s.profiles.GetByUsername(ctx, username)
}

// =============================================================================
// MEMBERSHIPS
// =============================================================================

// ListMemberships returns the memberships a business offers, in the shape
// the wizard's membership picker uses.
func (s *Service) ListMemberships(ctx context.Context, businessID string) ([]wizard.Membership, error) {
	list, err := s.memberships.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	out := make([]wizard.Membership, 0, len(list))
	for _, m := range list {
		out = append(out, wizard.Membership{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

func (s *Service) Memberships(ctx context.Context, businessID string) ([]data.Membership, error) {
	return s.memberships.ListByBusiness(ctx, businessID)
}

func (s *Service) CreateMembership(ctx context.Context, businessID, name, description string, price float64) (*data.Membership, error) {
	m := &data.Membership{
		BusinessID:  businessID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Price:       price,
		CreatedAt:   s.cfg.Clock(),
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe records a subscription. No payment is taken.
func (s *Service) Subscribe(ctx context.Context, userID, membershipID string, expiry *time.Time) (*data.UserMembership, error) {
	return s.memberships.Subscribe(ctx, userID, membershipID, s.cfg.Clock(), expiry)
}

func (s *Service) Subscriptions(ctx context.Context, userID string) ([]data.UserMembership, error) {
	return s.memberships.ListSubscriptions(ctx, userID)
}

// CancelSubscription marks userID's subscription inactive. It stays listed
// in Subscriptions and can be renewed with Subscribe.
func (s *Service) CancelSubscription(ctx context.Context, userID, membershipID string) error {
	return s.memberships.Cancel(ctx, userID, membershipID)
}

// MembershipChanges holds the fields a PATCH may set; nil leaves a field alone.
type MembershipChanges struct {
	Name        *string
	Description *string
	Price       *float64
}

func (s *Service) ownedMembership(ctx context.Context, userID, id string) (*data.Membership, error) {
	m, err := s.memberships.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.BusinessID != userID {
		return nil, fmt.Errorf("membership %s: %w", id, ErrNotOwner)
	}
	return m, nil
}

func (s *Service) UpdateMembership(ctx context.Context, userID, id string, c MembershipChanges) (*data.Membership, error) {
	m, err := s.ownedMembership(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Name != nil {
		m.Name = strings.TrimSpace(*c.Name)
	}
	if c.Description != nil {
		m.Description = strings.TrimSpace(*c.Description)
	}
	if c.Price != nil {
		m.Price = *c.Price
	}
	if err := s.memberships.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMembership removes a membership the caller owns. It fails with
// data.ErrConflict while posts are still gated by it.
func (s *Service) DeleteMembership(ctx context.Context, userID, id string) error {
	if _, err := s.ownedMembership(ctx, userID, id); err != nil {
		return err
	}
	if err := s.memberships.Delete(ctx, id); err != nil {
		return err
	}
	logger.LogInfo("Deleted membership %s of %s", id, userID)
	return nil
}

// MembershipMembers lists a membership's subscribers for its owner.
func (s *Service) MembershipMembers(ctx context.Context, userID, id string) ([]data.Member, error) {
	if _, err := s.ownedMembership(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.memberships.ListMembers(ctx, id)
}

// =============================================================================
// FEED
// =============================================================================

func (s *Service) Feed(ctx context.Context, viewerID string, limit int) ([]data.Post, error) {
	return s.posts.Feed(ctx, viewerID, s.cfg.Clock(), limit)
}

// Post loads one post for viewerID. A members-only post the viewer cannot
// see is reported as not found, as the feed would simply omit it.
func (s *Service) Post(ctx context.Context, viewerID, id string) (*data.Post, error) {
	p, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.MembershipID == "" || p.UserID == viewerID {
		return p, nil
	}
	if viewerID != "" {
		ok, err := s.memberships.IsSubscribed(ctx, viewerID, p.MembershipID, s.cfg.Clock())
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("post: %w", data.ErrNotFound)
}

// UserPosts lists authorID's posts with the same gating as Feed.
func (s *Service) UserPosts(ctx context.Context, authorID, viewerID string, limit int) ([]data.Post, error) {
	if _, err := s.profiles.GetByID(ctx, authorID); err != nil {
		return nil, err
	}
	return s.posts.ListByUser(ctx, authorID, viewerID, s.cfg.Clock(), limit)
}

func (s *Service) DeletePost(ctx context.Context, userID, id string) error {
	p, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.UserID != userID {
		return fmt.Errorf("post %s: %w", id, ErrNotOwner)
	}
	return s.posts.Delete(ctx, id)
}

// =============================================================================
// WIZARD WIRING
// =============================================================================

// WizardOptions builds the context a new draft for userID starts with.
func (s *Service) WizardOptions(ctx context.Context, userID string, catalog []levels.Level) (wizard.Options, error) {
	memberships, err := s.ListMemberships(ctx, userID)
	if err != nil {
		return wizard.Options{}, fmt.Errorf("failed to load memberships: %w", err)
	}
	return wizard.Options{
		Catalog:             catalog,
		Memberships:         memberships,
		WeekStart:           s.cfg.WeekStart,
		Clock:               s.cfg.Clock,
		PlaceholderImageURL: s.cfg.PlaceholderImageURL,
	}, nil
}

// ForUser returns the wizard backend acting on behalf of userID.
func (s *Service) ForUser(userID string) wizard.Backend {
	return &userBackend{svc: s, userID: userID}
}

type userBackend struct {
	svc    *Service
	userID string
}

func (b *userBackend) CurrentSession(ctx context.Context) (*wizard.Session, error) {
	if b.userID == "" {
		return nil, nil
	}
	if _, err := b.svc.profiles.GetByID(ctx, b.userID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wizard.Session{UserID: b.userID}, nil
}

func (b *userBackend) UploadImage(ctx context.Context, data []byte, filename string) (string, error) {
	if b.svc.images == nil {
		return "", fmt.Errorf("image storage not configured")
	}
	return b.svc.images.Upload(ctx, data, filename)
}

func (b *userBackend) CreateEventRecord(ctx context.Context, rec wizard.EventRecord) (string, error) {
	start := rec.EventDate
	p := &data.Post{
		UserID:       rec.UserID,
		Type:         data.PostTypeEvent,
		Caption:      rec.Caption,
		EventName:    rec.EventName,
		Location:     rec.Location,
		EventDate:    &start,
		EventEndDate: rec.EventEndDate,
		IsMultiDay:   rec.IsMultiDay,
		ImageURL:     rec.ImageURL,
		MembershipID: rec.MembershipID,
		CreatedAt:    b.svc.cfg.Clock(),
	}
	if err := b.svc.posts.Create(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (b *userBackend) CreateEventLevels(ctx context.Context, postID string, rows []levels.Selection) error {
	out := make([]data.EventLevel, 0, len(rows))
	for _, r := range rows {
		out = append(out, data.EventLevel{LevelID: r.LevelID, Price: r.Price, Quantity: r.Quantity})
	}
	err := b.svc.posts.CreateLevels(ctx, postID, out)
	if err != nil && b.svc.cfg.Alerts != nil {
		alert := email.PartialWriteAlert{
			PostID:     postID,
			UserID:     b.userID,
			Levels:     rows,
			Cause:      err.Error(),
			OccurredAt: b.svc.cfg.Clock(),
		}
		if aerr := b.svc.cfg.Alerts.NotifyPartialWrite(ctx, alert); aerr != nil {
			logger.LogError("Partial write alert for %s not sent: %v", postID, aerr)
		}
	}
	return err
}
