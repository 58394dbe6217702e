package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trackhub/internal/calendar"
	"trackhub/internal/levels"
	"trackhub/internal/logger"
)

// Session identifies the user submitting the event.
type Session struct {
	UserID string
}

type SessionSource interface {
	CurrentSession(ctx context.Context) (*Session, error)
}

type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, filename string) (string, error)
}

type EventWriter interface {
	CreateEventRecord(ctx context.Context, rec EventRecord) (string, error)
	CreateEventLevels(ctx context.Context, postID string, rows []levels.Selection) error
}

// Backend is everything a submission needs from the outside world.
type Backend interface {
	SessionSource
	ImageUploader
	EventWriter
}

// EventRecord is the event post written on submit.
type EventRecord struct {
	UserID       string
	Caption      string
	EventName    string
	Location     string
	EventDate    calendar.Date
	EventEndDate *calendar.Date
	IsMultiDay   bool
	ImageURL     string
	MembershipID string
}

type Outcome struct {
	PostID   string   `json:"post_id"`
	ImageURL string   `json:"image_url"`
	Warnings []string `json:"warnings,omitempty"`

	warnings []error
}

// Errors returns the non-fatal problems hit during submission.
func (o *Outcome) Errors() []error { return o.warnings }

func (o *Outcome) warn(err error) {
	o.warnings = append(o.warnings, err)
	o.Warnings = append(o.Warnings, err.Error())
}

// Record builds the event post from the current draft.
func (m *Machine) Record(userID, imageURL string) EventRecord {
	r := m.calendar.Range()
	rec := EventRecord{
		UserID:    userID,
		Caption:   strings.TrimSpace(m.title),
		EventName: strings.TrimSpace(m.eventName),
		Location:  strings.TrimSpace(m.location),
		ImageURL:  imageURL,
	}
	if rec.EventName == "" {
		rec.EventName = rec.Caption
	}
	if r.Start != nil {
		rec.EventDate = *r.Start
	}
	if r.MultiDay && r.End != nil {
		end := *r.End
		rec.EventEndDate = &end
		rec.IsMultiDay = true
	}
	if m.membersOnly {
		rec.MembershipID = m.membershipID
	}
	return rec
}

// Submit writes the draft through b. It is allowed from EditingDetails and,
// as a retry, from Failed.
func (m *Machine) Submit(ctx context.Context, b Backend) (*Outcome, error) {
	if m.state != EditingDetails && m.state != Failed {
		return nil, invalidTransition("submit", m.state)
	}
	if err := m.ValidateDetails(); err != nil {
		m.state = EditingDetails
		return nil, err
	}

	m.state = Submitting
	m.lastErr = nil

	sess, err := b.CurrentSession(ctx)
	if err != nil && !errors.Is(err, ErrAuthRequired) {
		return nil, m.fail(fmt.Errorf("session lookup: %w", err))
	}
	if sess == nil || sess.UserID == "" {
		m.state = EditingDetails
		return nil, ErrAuthRequired
	}

	out := &Outcome{ImageURL: m.opts.PlaceholderImageURL}
	if m.image != "" {
		url, err := m.uploadImage(ctx, b)
		if err != nil {
			logger.LogWarn("Image upload failed for user %s, using placeholder: %v", sess.UserID, err)
			out.warn(&UploadWarning{Err: err})
		} else {
			out.ImageURL = url
		}
	}

	postID, err := b.CreateEventRecord(ctx, m.Record(sess.UserID, out.ImageURL))
	if err != nil {
		return nil, m.fail(err)
	}
	out.PostID = postID

	if err := b.CreateEventLevels(ctx, postID, m.levels.Selections()); err != nil {
		logger.LogError("Event %s created without ticket levels: %v", postID, err)
		out.warn(&PartialWriteWarning{PostID: postID, Err: err})
	}

	logger.LogInfo("Event %s created by user %s", postID, sess.UserID)
	m.outcome = out
	m.reset()
	m.state = Success
	return out, nil
}

func (m *Machine) fail(err error) error {
	serr := &SubmissionError{Err: err}
	logger.LogError("Event submission failed: %v", err)
	m.lastErr = serr
	m.state = Failed
	return serr
}

func (m *Machine) uploadImage(ctx context.Context, b ImageUploader) (string, error) {
	mediaType, data, err := DecodeDataURL(m.image)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("event_%d%s", m.opts.Clock().UnixMilli(), imageExtension(mediaType))
	return b.UploadImage(ctx, data, name)
}
