package api

import (
	"net/http"

	"trackhub/internal/levels"
	"trackhub/internal/middleware"
	"trackhub/internal/wizard"
)

type draftResponse struct {
	ID          string              `json:"id"`
	Draft       wizard.Draft        `json:"draft"`
	Catalog     []levels.Level      `json:"catalog"`
	Memberships []wizard.Membership `json:"memberships"`
}

type submitResponse struct {
	ID      string          `json:"id"`
	Outcome *wizard.Outcome `json:"outcome"`
	Draft   wizard.Draft    `json:"draft"`
}

// actionsRequest accepts a single action or a batch applied in order.
type actionsRequest struct {
	wizard.Action
	Actions []wizard.Action `json:"actions,omitempty"`
}

func draftOf(id string, m *wizard.Machine) draftResponse {
	return draftResponse{
		ID:          id,
		Draft:       m.Snapshot(),
		Catalog:     m.Catalog(),
		Memberships: m.Memberships(),
	}
}

// CreateWizard starts a draft for the signed-in user.
func (h *Handler) CreateWizard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	opts, err := h.svc.WizardOptions(r.Context(), userID, h.catalog.Levels())
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := h.drafts.Create(userID, opts)

	var resp draftResponse
	err = h.drafts.With(id, userID, func(m *wizard.Machine) error {
		resp = draftOf(id, m)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, resp)
}

func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var resp draftResponse
	err := h.drafts.With(id, middleware.GetUserID(r.Context()), func(m *wizard.Machine) error {
		resp = draftOf(id, m)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, resp)
}

func (h *Handler) DeleteWizard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.drafts.With(id, middleware.GetUserID(r.Context()), func(*wizard.Machine) error { return nil })
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.drafts.Delete(id)
	middleware.WriteAPISuccess(w, r, map[string]string{"id": id})
}

// ApplyWizardAction dispatches one action, or a batch, to the draft. A batch
// stops at the first failing action; earlier ones stay applied.
func (h *Handler) ApplyWizardAction(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	var req actionsRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	actions := req.Actions
	if req.Type != "" {
		actions = append([]wizard.Action{req.Action}, actions...)
	}
	if len(actions) == 0 {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "No action given", "")
		return
	}

	id := r.PathValue("id")
	var resp draftResponse
	err := h.drafts.With(id, middleware.GetUserID(r.Context()), func(m *wizard.Machine) error {
		for _, a := range actions {
			if err := m.Apply(a); err != nil {
				return err
			}
		}
		resp = draftOf(id, m)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccess(w, r, resp)
}

// SubmitWizard runs the submission pipeline. Warnings come back inside a
// successful response.
func (h *Handler) SubmitWizard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := middleware.GetUserID(r.Context())

	var resp submitResponse
	err := h.drafts.With(id, userID, func(m *wizard.Machine) error {
		out, err := m.Submit(r.Context(), h.svc.ForUser(userID))
		if err != nil {
			return err
		}
		resp = submitResponse{ID: id, Outcome: out, Draft: m.Snapshot()}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.WriteAPISuccessStatus(w, r, http.StatusCreated, resp)
}
