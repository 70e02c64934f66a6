package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/metrics"
	"github.com/eventhub-live/server/internal/sanitize"
	"github.com/rs/zerolog"
)

type EventSource interface {
	GetByID(ctx context.Context, id string) (*events.Event, error)
}

type NotificationAppender interface {
	Append(ctx context.Context, params notifications.AppendParams) (*notifications.Notification, error)
}

type Publisher interface {
	PublishEvent(eventID string, payload any)
	PublishUser(userID string, payload any)
}

// Board is the per-event message log. Listing and posting share one
// permission rule: event owner, or holder of an active registration.
type Board struct {
	repo   Repository
	events EventSource
	policy *access.Policy
	notifs NotificationAppender
	hub    Publisher
	logger zerolog.Logger
}

func NewBoard(repo Repository, eventSource EventSource, policy *access.Policy, notifs NotificationAppender, hub Publisher, logger zerolog.Logger) *Board {
	return &Board{
		repo:   repo,
		events: eventSource,
		policy: policy,
		notifs: notifs,
		hub:    hub,
		logger: logger.With().Str("component", "messages").Logger(),
	}
}

type messagePayload struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	User      payloadUser `json:"user"`
	CreatedAt string      `json:"createdAt"`
}

type payloadUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type notificationPayload struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
	Content        string `json:"content"`
}

// List returns the event's messages, oldest first.
func (b *Board) List(ctx context.Context, eventID, viewerID string) ([]Message, error) {
	event, err := b.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	allowed, err := b.policy.CanView(ctx, event, viewerID, access.ScopeMessages)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	return b.repo.ListByEvent(ctx, event.ID)
}

// Post appends a message. Content is clamped and HTML-escaped before it
// reaches storage or any push payload, so neither the message list nor
// the live stream can carry injected markup.
func (b *Board) Post(ctx context.Context, eventID string, author *identity.Identity, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}

	event, err := b.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	allowed, err := b.policy.CanView(ctx, event, author.ID, access.ScopeMessages)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	safeContent := sanitize.Content(content, sanitize.MaxContentLength)
	if safeContent == "" {
		return nil, ErrInvalidInput
	}
	safeName := sanitize.Content(author.Name, sanitize.MaxContentLength)

	msg, err := b.repo.Insert(ctx, CreateParams{EventID: event.ID, UserID: author.ID, Content: safeContent})
	if err != nil {
		return nil, err
	}
	msg.UserName = safeName
	metrics.MessagesPosted.Inc()

	b.hub.PublishEvent(event.ID, messagePayload{
		Type:      "message",
		ID:        msg.ID,
		Content:   msg.Content,
		User:      payloadUser{ID: author.ID, Name: safeName},
		CreatedAt: msg.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
	b.notifyOwner(ctx, event, fmt.Sprintf("%s: %s", safeName, msg.Content))

	return msg, nil
}

func (b *Board) notifyOwner(ctx context.Context, event *events.Event, content string) {
	eventID := event.ID
	notif, err := b.notifs.Append(ctx, notifications.AppendParams{
		UserID:  event.OwnerID,
		EventID: &eventID,
		Type:    notifications.TypeMessage,
		Content: content,
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("event_id", event.ID).Msg("owner notification append failed")
		return
	}

	b.hub.PublishUser(event.OwnerID, notificationPayload{
		Type:           "notification",
		NotificationID: notif.ID,
		Content:        notif.Content,
	})
}
