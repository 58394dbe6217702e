// Package recovery finds events whose ticket levels never got written.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trackhub/internal/data"
	"trackhub/internal/logger"
)

// EventLister is the query the sweep runs.
type EventLister interface {
	EventsWithoutLevels(ctx context.Context, since, until time.Time) ([]data.Post, error)
}

// Notifier receives the summary when orphaned events are found.
type Notifier interface {
	Alert(subject, body string) error
}

// Service sweeps for event posts left without levels by a failed
// submission.
type Service struct {
	events        EventLister
	notify        Notifier
	maxRetries    int
	retryInterval time.Duration
}

func NewService(events EventLister, notify Notifier) *Service {
	return &Service{
		events:        events,
		notify:        notify,
		maxRetries:    3,
		retryInterval: time.Second * 2,
	}
}

// Sweep looks at events created in the day before now, skipping the most
// recent grace period so in-flight submissions are not reported. It returns
// the orphaned posts and alerts about them if any were found.
func (s *Service) Sweep(ctx context.Context, now time.Time, grace time.Duration) ([]data.Post, error) {
	until := now.Add(-grace)
	since := until.Add(-24 * time.Hour)

	orphans, err := s.listWithRetry(ctx, since, until)
	if err != nil {
		return nil, err
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	logger.LogWarn("Found %d events without ticket levels created between %s and %s",
		len(orphans), since.Format(time.RFC3339), until.Format(time.RFC3339))

	if s.notify != nil {
		subject := fmt.Sprintf("%d events are missing ticket levels", len(orphans))
		if err := s.notify.Alert(subject, summarize(orphans)); err != nil {
			logger.LogError("Failed to send orphaned event alert: %v", err)
		}
	}
	return orphans, nil
}

func (s *Service) listWithRetry(ctx context.Context, since, until time.Time) ([]data.Post, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		posts, err := s.events.EventsWithoutLevels(ctx, since, until)
		if err == nil {
			return posts, nil
		}

		lastErr = err
		logger.LogWarn("Orphaned event query attempt %d failed: %v", attempt, err)

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryInterval * time.Duration(attempt)):
			}
		}
	}

	return nil, fmt.Errorf("failed to list orphaned events after %d attempts: %w", s.maxRetries, lastErr)
}

func summarize(posts []data.Post) string {
	var b strings.Builder
	b.WriteString("These events were published but their ticket levels were not saved.\n")
	b.WriteString("Ask the authors to add the levels again or remove the events.\n\n")
	for _, p := range posts {
		name := p.EventName
		if name == "" {
			name = p.Caption
		}
		fmt.Fprintf(&b, "- %s %q by %s on %s (created %s)\n",
			p.ID, name, p.UserID, p.EventDate, p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}
