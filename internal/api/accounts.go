package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"trackhub/internal/backend"
	"trackhub/internal/data"
	"trackhub/internal/middleware"
	"trackhub/internal/security"
)

type createProfileRequest struct {
	Kind     data.ProfileKind `json:"kind"`
	Username string           `json:"username"`
	FullName string           `json:"full_name"`
}

type createMembershipRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type updateMembershipRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
}

type subscribeRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := security.GenerateCSRFToken()
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]string{"csrf_token": token})
}

// CreateProfile registers a user and returns a session token. It needs a
// CSRF token from GET /api/csrf-token in the X-CSRF-Token header.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	if !security.ValidateCSRFToken(r.Header.Get("X-CSRF-Token")) {
		middleware.WriteAPIError(w, r, http.StatusForbidden, "invalid_csrf", "Missing or invalid CSRF token", "")
		return
	}

	h.limitBody(w, r)
	var req createProfileRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if !req.Kind.Valid() {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error",
			"kind must be enthusiast or business", "kind")
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error",
			"Please enter a username", "username")
		return
	}

	profile, token, err := h.svc.Register(r.Context(), req.Kind, req.Username, req.FullName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, map[string]interface{}{
		"profile": profile,
		"token":   token,
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.svc.Profile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, profile)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), middleware.GetToken(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, nil)
}

// ListMemberships lists a business's memberships, the caller's own by default.
func (h *Handler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		businessID = middleware.GetUserID(r.Context())
	}
	list, err := h.svc.Memberships(r.Context(), businessID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"memberships": list})
}

func (h *Handler) CreateMembership(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)
	var req createMembershipRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Price < 0 {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error",
			"Membership needs a name and a non-negative price", "name")
		return
	}

	m, err := h.svc.CreateMembership(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.Description, req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, m)
}

func (h *Handler) UpdateMembership(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)
	var req updateMembershipRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error",
			"Membership name cannot be empty", "name")
		return
	}
	if req.Price != nil && *req.Price < 0 {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "validation_error",
			"Membership price cannot be negative", "price")
		return
	}

	m, err := h.svc.UpdateMembership(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"),
		backend.MembershipChanges{Name: req.Name, Description: req.Description, Price: req.Price})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, m)
}

func (h *Handler) DeleteMembership(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMembership(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, nil)
}

// ListMembers shows a membership's subscribers to the business that owns it.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.MembershipMembers(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"members": members})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if r.ContentLength > 0 {
		h.limitBody(w, r)
		if err := middleware.ParseJSONRequest(r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}

	um, err := h.svc.Subscribe(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), req.ExpiresAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, um)
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelSubscription(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, nil)
}

func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.Subscriptions(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"subscriptions": subs})
}

// feedLimit reads ?limit=, defaulting to 50.
func feedLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 50, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 200 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200", "")
		return 0, false
	}
	return n, true
}

// GetFeed lists posts visible to the caller; anonymous callers see public
// posts only.
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := feedLimit(w, r)
	if !ok {
		return
	}

	posts, err := h.svc.Feed(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"posts": posts})
}

func (h *Handler) ListProfilePosts(w http.ResponseWriter, r *http.Request) {
	limit, ok := feedLimit(w, r)
	if !ok {
		return
	}

	posts, err := h.svc.UserPosts(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"posts": posts})
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.Post(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, post)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePost(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, nil)
}
