package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/eventhub-live/server/internal/api/middleware"
	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/messages"
)

type MessagesHandler struct {
	Board *messages.Board
	Env   string
}

func NewMessagesHandler(board *messages.Board, env string) *MessagesHandler {
	return &MessagesHandler{Board: board, Env: env}
}

type messageInput struct {
	Content string `json:"content" validate:"required,max=1000"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMessageResponse(msg *messages.Message) messageResponse {
	return messageResponse{
		ID:        msg.ID,
		EventID:   msg.EventID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

// List handles GET /api/events/{id}/messages.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())

	items, err := h.Board.List(r.Context(), pathParam(r, "id"), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]messageResponse, 0, len(items))
	for i := range items {
		out = append(out, toMessageResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// Post handles POST /api/events/{id}/messages.
func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	var input messageInput
	if !decodeAndValidate(w, r, &input, h.Env) {
		return
	}

	user := middleware.IdentityFromContext(r.Context())
	msg, err := h.Board.Post(r.Context(), pathParam(r, "id"), user, input.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *MessagesHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Event not found", err, h.Env)
	case errors.Is(err, messages.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/forbidden", "Not allowed to view this board", err, h.Env)
	case errors.Is(err, messages.ErrInvalidInput):
		problem.Write(w, r, http.StatusBadRequest, "https://eventhub.live/problems/validation", "Invalid message content", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
	}
}
