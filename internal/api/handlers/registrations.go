package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/eventhub-live/server/internal/api/middleware"
	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/registrations"
)

type RegistrationsHandler struct {
	Ledger *registrations.Ledger
	Env    string
}

func NewRegistrationsHandler(ledger *registrations.Ledger, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Ledger: ledger, Env: env}
}

type registrationResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UserName  string    `json:"userName,omitempty"`
	UserEmail string    `json:"userEmail,omitempty"`
}

func toRegistrationResponse(reg *registrations.Registration) registrationResponse {
	return registrationResponse{
		ID:        reg.ID,
		EventID:   reg.EventID,
		UserID:    reg.UserID,
		Status:    reg.Status,
		CreatedAt: reg.CreatedAt,
		UserName:  reg.UserName,
		UserEmail: reg.UserEmail,
	}
}

// Register handles POST /api/events/{id}/registrations.
func (h *RegistrationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	reg, err := h.Ledger.Register(r.Context(), pathParam(r, "id"), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistrationResponse(reg))
}

// Cancel handles DELETE /api/events/{id}/registrations/me: the caller
// cancels their own active registration on the event.
func (h *RegistrationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	if err := h.Ledger.Cancel(r.Context(), pathParam(r, "id"), user); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelByID handles DELETE /api/events/{id}/registrations/{regId}.
func (h *RegistrationsHandler) CancelByID(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	if err := h.Ledger.CancelByID(r.Context(), pathParam(r, "id"), pathParam(r, "regId"), user); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/events/{id}/registrations, owner only.
func (h *RegistrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	items, err := h.Ledger.ListForEvent(r.Context(), pathParam(r, "id"), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]registrationResponse, 0, len(items))
	for i := range items {
		out = append(out, toRegistrationResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RegistrationsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Event not found", err, h.Env)
	case errors.Is(err, registrations.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Registration not found", err, h.Env)
	case errors.Is(err, registrations.ErrEventFull):
		problem.Write(w, r, http.StatusConflict, "https://eventhub.live/problems/event-full", "Event is full", err, h.Env)
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		problem.Write(w, r, http.StatusConflict, "https://eventhub.live/problems/already-registered", "Already registered", err, h.Env)
	case errors.Is(err, registrations.ErrNotRegistered):
		problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-registered", "No active registration", err, h.Env)
	case errors.Is(err, registrations.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/forbidden", "Not allowed", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
	}
}
