package wizard

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrUnknownAction     = errors.New("unknown action")
	ErrUnknownMembership = errors.New("unknown membership")
	ErrAuthRequired      = errors.New("you must be logged in to create an event")
	ErrDraftNotFound     = errors.New("draft not found")
)

// ValidationError blocks a screen transition until the user fixes the field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UploadWarning means the image could not be stored and the event was
// created with the placeholder image instead.
type UploadWarning struct {
	Err error
}

func (w *UploadWarning) Error() string {
	return fmt.Sprintf("failed to upload image, using placeholder: %v", w.Err)
}

func (w *UploadWarning) Unwrap() error { return w.Err }

// SubmissionError means the event record was not written. The draft is kept
// so the user can retry.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to create event: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PartialWriteWarning means the event exists but its ticket levels were not
// saved. The event record is not rolled back.
type PartialWriteWarning struct {
	PostID string
	Err    error
}

func (w *PartialWriteWarning) Error() string {
	return fmt.Sprintf("event %s created but ticket levels were not saved: %v", w.PostID, w.Err)
}

func (w *PartialWriteWarning) Unwrap() error { return w.Err }

func invalidTransition(action string, state State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, action, state)
}
