package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/auth"
	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/realtime"
	"github.com/rs/zerolog"
)

// heartbeatInterval keeps idle connections alive through proxies.
const heartbeatInterval = 25 * time.Second

type EventSource interface {
	GetByID(ctx context.Context, id string) (*events.Event, error)
}

// StreamHandler adapts hub subscriptions onto Server-Sent Events.
// EventSource clients cannot set headers, so the credential arrives as
// a query parameter and authentication happens here instead of in the
// bearer middleware.
type StreamHandler struct {
	Hub    *realtime.Hub
	Gate   *identity.Gate
	Policy *access.Policy
	Events EventSource
	Env    string
}

func NewStreamHandler(hub *realtime.Hub, gate *identity.Gate, policy *access.Policy, eventSource EventSource, env string) *StreamHandler {
	return &StreamHandler{Hub: hub, Gate: gate, Policy: policy, Events: eventSource, Env: env}
}

// StreamEvent handles GET /api/realtime/events/{id}.
func (h *StreamHandler) StreamEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	event, err := h.Events.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Event not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}

	allowed, err := h.Policy.CanView(r.Context(), event, user.ID, access.ScopeRealtimeStream)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	if !allowed {
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/forbidden", "Not registered for this event", nil, h.Env)
		return
	}

	h.serve(w, r, realtime.ChannelEvent, event.ID)
}

// StreamUser handles GET /api/realtime/users/{id}. Only the user
// themselves (or an admin) may attach to a user channel.
func (h *StreamHandler) StreamUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	targetID := pathParam(r, "id")
	if targetID == "me" {
		targetID = user.ID
	}
	if targetID != user.ID && !user.IsAdmin() {
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/forbidden", "Cannot attach to another user's stream", nil, h.Env)
		return
	}

	h.serve(w, r, realtime.ChannelUser, targetID)
}

func (h *StreamHandler) authenticate(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	token, err := auth.TokenFromQuery(r.URL.Query())
	if err != nil {
		token, err = auth.TokenFromHeader(r.Header.Get("Authorization"))
	}
	if err != nil {
		problem.Write(w, r, http.StatusUnauthorized, "https://eventhub.live/problems/unauthorized", "Missing credentials", err, h.Env)
		return nil, false
	}

	user, err := h.Gate.Authenticate(r.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		title := "Invalid credentials"
		if errors.Is(err, identity.ErrBlocked) {
			status = http.StatusForbidden
			title = "Account blocked"
		}
		problem.Write(w, r, status, "https://eventhub.live/problems/unauthorized", title, err, h.Env)
		return nil, false
	}
	return user, true
}

// serve subscribes, streams frames until the client goes away, and
// always unsubscribes on the way out.
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, kind realtime.ChannelKind, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Streaming unsupported", nil, h.Env)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Comment frame confirms the subscription before any payload.
	fmt.Fprint(w, ":ok\n\n")
	flusher.Flush()

	sub := h.Hub.Subscribe(kind, id)
	defer h.Hub.Unsubscribe(sub)

	logger := zerolog.Ctx(r.Context())
	logger.Debug().Str("channel", string(kind)).Str("id", id).Str("conn_id", sub.ID()).Msg("stream opened")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("channel", string(kind)).Str("id", id).Str("conn_id", sub.ID()).Msg("stream closed")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ":ping\n\n")
			flusher.Flush()
		case data := <-sub.Receive():
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
