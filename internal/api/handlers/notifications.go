package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/eventhub-live/server/internal/api/middleware"
	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/domain/notifications"
)

type NotificationsHandler struct {
	Store *notifications.Store
	Env   string
}

func NewNotificationsHandler(store *notifications.Store, env string) *NotificationsHandler {
	return &NotificationsHandler{Store: store, Env: env}
}

type notificationResponse struct {
	ID        string    `json:"id"`
	EventID   *string   `json:"eventId,omitempty"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// List handles GET /api/notifications, newest first.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	items, err := h.Store.List(r.Context(), user.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}

	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:        n.ID,
			EventID:   n.EventID,
			Type:      n.Type,
			Content:   n.Content,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// MarkRead handles PUT /api/notifications/{id}/read. A notification
// owned by someone else responds 404, never 403.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	err := h.Store.MarkRead(r.Context(), pathParam(r, "id"), user.ID)
	if err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Notification not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	if err := h.Store.MarkAllRead(r.Context(), user.ID); err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
