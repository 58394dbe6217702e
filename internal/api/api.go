// Package api exposes the event wizard, calendar, memberships and feed as a
// JSON HTTP API.
package api

import (
	"errors"
	"net/http"
	"time"

	"trackhub/internal/backend"
	"trackhub/internal/catalog"
	"trackhub/internal/data"
	"trackhub/internal/levels"
	"trackhub/internal/logger"
	"trackhub/internal/middleware"
	"trackhub/internal/wizard"
)

type Options struct {
	WeekStart      time.Weekday
	MaxUploadBytes int64
	Clock          func() time.Time
}

type Handler struct {
	svc     *backend.Service
	catalog *catalog.Service
	drafts  *wizard.Store
	limiter *middleware.RateLimiter
	opts    Options
}

func NewHandler(svc *backend.Service, cat *catalog.Service, drafts *wizard.Store, limiter *middleware.RateLimiter, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	return &Handler{svc: svc, catalog: cat, drafts: drafts, limiter: limiter, opts: opts}
}

// Routes returns the API mux, meant to be mounted under /api.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	lookup := h.svc.LookupSession

	public := func(fn http.HandlerFunc) http.HandlerFunc {
		return middleware.PublicAPI(lookup, h.limiter, fn)
	}
	private := func(fn http.HandlerFunc) http.HandlerFunc {
		return middleware.API(lookup, h.limiter, fn)
	}

	mux.HandleFunc("GET /calendar", public(h.GetCalendar))
	mux.HandleFunc("GET /levels", public(h.GetLevels))
	mux.HandleFunc("GET /csrf-token", public(h.GetCSRFToken))
	mux.HandleFunc("GET /feed", public(h.GetFeed))
	mux.HandleFunc("GET /posts/{id}", public(h.GetPost))
	mux.HandleFunc("DELETE /posts/{id}", private(h.DeletePost))
	mux.HandleFunc("GET /profiles/{id}/posts", public(h.ListProfilePosts))

	mux.HandleFunc("POST /profiles", public(h.CreateProfile))
	mux.HandleFunc("GET /profiles/me", private(h.GetMe))
	mux.HandleFunc("DELETE /sessions/current", private(h.Logout))

	mux.HandleFunc("GET /memberships", private(h.ListMemberships))
	mux.HandleFunc("POST /memberships", private(h.CreateMembership))
	mux.HandleFunc("PATCH /memberships/{id}", private(h.UpdateMembership))
	mux.HandleFunc("DELETE /memberships/{id}", private(h.DeleteMembership))
	mux.HandleFunc("GET /memberships/{id}/members", private(h.ListMembers))
	mux.HandleFunc("POST /memberships/{id}/subscribe", private(h.Subscribe))
	mux.HandleFunc("DELETE /memberships/{id}/subscription", private(h.CancelSubscription))
	mux.HandleFunc("GET /subscriptions", private(h.ListSubscriptions))

	mux.HandleFunc("POST /wizards", private(h.CreateWizard))
	mux.HandleFunc("GET /wizards/{id}", private(h.GetWizard))
	mux.HandleFunc("DELETE /wizards/{id}", private(h.DeleteWizard))
	mux.HandleFunc("POST /wizards/{id}/actions", private(h.ApplyWizardAction))
	mux.HandleFunc("POST /wizards/{id}/submit", private(h.SubmitWizard))

	return mux
}

func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"levels":    h.catalog.Levels(),
		"loaded_at": h.catalog.LoadedAt(),
	})
}

// limitBody caps request bodies; image data URLs are base64 so a third
// larger than the raw upload limit.
func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes*4/3+64<<10)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteAPIError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", "")
		return
	}
	middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
}

// writeError maps domain errors onto HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *wizard.ValidationError
		submission *wizard.SubmissionError
	)

	switch {
	case errors.As(err, &validation):
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error", validation.Message, validation.Field)
	case errors.Is(err, wizard.ErrAuthRequired):
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "auth_required", err.Error(), "")
	case errors.As(err, &submission):
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "submission_failed", submission.Error(), "")
	case errors.Is(err, wizard.ErrDraftNotFound), errors.Is(err, data.ErrNotFound):
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, wizard.ErrInvalidTransition):
		middleware.WriteAPIError(w, r, http.StatusConflict, "invalid_transition", err.Error(), "")
	case errors.Is(err, data.ErrNotBusiness), errors.Is(err, backend.ErrNotOwner):
		middleware.WriteAPIError(w, r, http.StatusForbidden, "forbidden", err.Error(), "")
	case errors.Is(err, data.ErrConflict):
		middleware.WriteAPIError(w, r, http.StatusConflict, "conflict", err.Error(), "")
	case errors.Is(err, wizard.ErrUnknownAction),
		errors.Is(err, wizard.ErrUnknownMembership),
		errors.Is(err, levels.ErrUnknownLevel):
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_action", err.Error(), "")
	default:
		logger.LogError("Request failed: request_id=%s path=%s error=%v",
			middleware.GetRequestID(r.Context()), r.URL.Path, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "An internal error occurred", "")
	}
}
