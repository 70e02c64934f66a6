package events

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// RegistrantSource lists the users currently holding an active
// registration, used to fan out event_update notifications.
type RegistrantSource interface {
	ActiveUserIDs(ctx context.Context, eventID string) ([]string, error)
}

type NotificationAppender interface {
	Append(ctx context.Context, params notifications.AppendParams) (*notifications.Notification, error)
}

type Publisher interface {
	PublishEvent(eventID string, payload any)
	PublishUser(userID string, payload any)
}

type Service struct {
	repo        Repository
	registrants RegistrantSource
	notifs      NotificationAppender
	hub         Publisher
	logger      zerolog.Logger
}

func NewService(repo Repository, registrants RegistrantSource, notifs NotificationAppender, hub Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		registrants: registrants,
		notifs:      notifs,
		hub:         hub,
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Event, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) GetByID(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, ownerID string) ([]Event, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// ListSubscribed returns the events the user actively registered for.
func (s *Service) ListSubscribed(ctx context.Context, userID string) ([]Event, error) {
	return s.repo.ListByActiveRegistrant(ctx, userID)
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Event, error) {
	params.Title = sanitize.Text(params.Title)
	params.Description = sanitize.Text(params.Description)
	params.Category = sanitize.Text(params.Category)
	params.City = sanitize.Text(params.City)
	if params.Status == "" {
		params.Status = StatusPublished
	}
	return s.repo.Create(ctx, params)
}

type eventUpdatePayload struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Title   string `json:"title"`
}

type notificationPayload struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
	Content        string `json:"content"`
}

// Update applies a partial update as the owner, then tells every active
// registrant their event changed: a durable notification per registrant
// plus an event_update frame on the event channel.
func (s *Service) Update(ctx context.Context, id, requesterID string, params UpdateParams) (*Event, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != requesterID {
		return nil, ErrForbidden
	}

	if params.Title != nil {
		*params.Title = sanitize.Text(*params.Title)
	}
	if params.Description != nil {
		*params.Description = sanitize.Text(*params.Description)
	}
	if params.Category != nil {
		*params.Category = sanitize.Text(*params.Category)
	}
	if params.City != nil {
		*params.City = sanitize.Text(*params.City)
	}

	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, err
	}

	s.notifyRegistrants(ctx, updated)
	s.hub.PublishEvent(updated.ID, eventUpdatePayload{
		Type:    "event_update",
		EventID: updated.ID,
		Title:   updated.Title,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id, requesterID string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.OwnerID != requesterID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// notifyRegistrants appends an event_update notification to each active
// registrant. Failures are logged and swallowed; the update already
// committed.
func (s *Service) notifyRegistrants(ctx context.Context, event *Event) {
	userIDs, err := s.registrants.ActiveUserIDs(ctx, event.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("registrant lookup failed")
		return
	}

	content := fmt.Sprintf("Event %s was updated", event.Title)
	for _, userID := range userIDs {
		eventID := event.ID
		notif, err := s.notifs.Append(ctx, notifications.AppendParams{
			UserID:  userID,
			EventID: &eventID,
			Type:    notifications.TypeEventUpdate,
			Content: content,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", event.ID).Str("user_id", userID).Msg("event_update notification append failed")
			continue
		}
		s.hub.PublishUser(userID, notificationPayload{
			Type:           "notification",
			NotificationID: notif.ID,
			Content:        notif.Content,
		})
	}
}
