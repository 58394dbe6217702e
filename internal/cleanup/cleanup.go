package cleanup

import (
	"context"
	"time"

	"trackhub/internal/data"
	"trackhub/internal/logger"
	"trackhub/internal/middleware"
	"trackhub/internal/recovery"
	"trackhub/internal/security"
	"trackhub/internal/wizard"
)

const (
	cleanupHour       = 2  // 2 AM
	maxDeletionPerRun = 25 // Maximum sessions to delete per run
)

// Targets are the things the nightly job prunes. Nil fields are skipped.
type Targets struct {
	Sessions       *data.SessionRepository
	Drafts         *wizard.Store
	DraftRetention time.Duration
	Limiter        *middleware.RateLimiter
	Recovery       *recovery.Service
	RecoveryGrace  time.Duration
}

// Report counts what one run removed. OrphanedEvents are reported, not
// removed.
type Report struct {
	Sessions       int
	Drafts         int
	CSRFTokens     int
	RateBuckets    int
	OrphanedEvents int
}

func (r Report) Total() int {
	return r.Sessions + r.Drafts + r.CSRFTokens + r.RateBuckets
}

// StartCleanupRoutine starts the daily cleanup job. It stops when ctx ends.
func StartCleanupRoutine(ctx context.Context, t Targets) {
	go func() {
		logger.LogInfo("Cleanup routine started - will run daily at %d:00 AM", cleanupHour)

		for {
			now := time.Now()
			next := nextRun(now)
			logger.LogInfo("Next cleanup scheduled for %v (in %v)", next.Format("2006-01-02 15:04:05"), next.Sub(now))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.LogInfo("Cleanup routine stopped")
				return
			case <-timer.C:
			}

			RunOnce(ctx, t, time.Now())
		}
	}()
}

// nextRun returns the next cleanupHour strictly after now.
func nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), cleanupHour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunOnce performs one cleanup pass as of now.
func RunOnce(ctx context.Context, t Targets, now time.Time) Report {
	logger.LogInfo("Starting daily cleanup")
	var rep Report

	if t.Sessions != nil {
		n, err := t.Sessions.DeleteExpired(ctx, now, maxDeletionPerRun)
		if err != nil {
			logger.LogError("Failed to cleanup expired sessions: %v", err)
		} else if n > 0 {
			rep.Sessions = n
			logger.LogInfo("Cleaned up %d expired sessions", n)
		}
	}

	if t.Drafts != nil && t.DraftRetention > 0 {
		cutoff := now.Add(-t.DraftRetention)
		if n := t.Drafts.PurgeStale(cutoff); n > 0 {
			rep.Drafts = n
			logger.LogInfo("Cleaned up %d abandoned drafts untouched since %v", n, cutoff.Format("2006-01-02 15:04:05"))
		}
	}

	rep.CSRFTokens = security.PurgeExpiredCSRFTokens(now)

	if t.Limiter != nil {
		rep.RateBuckets = t.Limiter.Prune()
	}

	if t.Recovery != nil {
		orphans, err := t.Recovery.Sweep(ctx, now, t.RecoveryGrace)
		if err != nil {
			logger.LogError("Failed to sweep for orphaned events: %v", err)
		}
		rep.OrphanedEvents = len(orphans)
	}

	if rep.Total() == 0 {
		logger.LogInfo("Cleanup completed - nothing to remove")
	} else {
		logger.LogInfo("Cleanup completed - total %d records removed", rep.Total())
	}
	return rep
}
