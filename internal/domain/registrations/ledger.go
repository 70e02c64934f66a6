package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/metrics"
	"github.com/eventhub-live/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// EventSource is the slice of the events repository the ledger reads.
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

// ConfirmationMailer queues the signup confirmation email. Delivery is
// fire-and-forget; registration success never depends on it.
type ConfirmationMailer interface {
	QueueConfirmation(ctx context.Context, params ConfirmationParams) error
}

type ConfirmationParams struct {
	To         string
	EventTitle string
	EventCity  string
	StartsAt   string
}

// Ledger owns the registration state machine: capacity-bounded signup,
// idempotent cancellation, and the owner-facing listing.
type Ledger struct {
	repo   Repository
	events EventSource
	policy *access.Policy
	notifs NotificationAppender
	hub    Publisher
	mailer ConfirmationMailer
	logger zerolog.Logger
}

func NewLedger(repo Repository, eventSource EventSource, policy *access.Policy, notifs NotificationAppender, hub Publisher, mailer ConfirmationMailer, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		events: eventSource,
		policy: policy,
		notifs: notifs,
		hub:    hub,
		mailer: mailer,
		logger: logger.With().Str("component", "registrations").Logger(),
	}
}

type registrationPayload struct {
	Type     string `json:"type"`
	EventID  string `json:"eventId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type notificationPayload struct {
	Type           string `json:"type"`
	NotificationID string `json:"notificationId"`
	Content        string `json:"content"`
}

// Register creates an active registration for user on the event. The
// capacity check and insert are one atomic unit in the repository, so
// concurrent signups on a capacity-C event yield at most C active rows.
func (l *Ledger) Register(ctx context.Context, eventID string, user *identity.Identity) (*Registration, error) {
	event, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	reg, err := l.repo.CreateActive(ctx, event.ID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrEventFull):
			metrics.RegistrationsTotal.WithLabelValues("event_full").Inc()
		case errors.Is(err, ErrAlreadyRegistered):
			metrics.RegistrationsTotal.WithLabelValues("already_registered").Inc()
		}
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("created").Inc()

	userName := sanitize.Text(user.Name)
	l.notifyOwner(ctx, event, fmt.Sprintf("%s registered for %s", userName, event.Title))
	l.hub.PublishEvent(event.ID, registrationPayload{
		Type:     "registration",
		EventID:  event.ID,
		UserID:   user.ID,
		UserName: userName,
	})

	if l.mailer != nil {
		params := ConfirmationParams{
			To:         user.Email,
			EventTitle: event.Title,
			EventCity:  event.City,
			StartsAt:   event.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST"),
		}
		if err := l.mailer.QueueConfirmation(ctx, params); err != nil {
			l.logger.Warn().Err(err).Str("event_id", event.ID).Msg("confirmation email enqueue failed")
		}
	}

	return reg, nil
}

// Cancel ends the caller's active registration for the event. Canceling
// twice, or without ever registering, returns ErrNotRegistered.
func (l *Ledger) Cancel(ctx context.Context, eventID string, user *identity.Identity) error {
	event, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	reg, err := l.repo.FindActive(ctx, event.ID, user.ID)
	if err != nil {
		return err
	}
	if err := l.repo.Cancel(ctx, reg.ID); err != nil {
		return err
	}

	l.publishCancellation(ctx, event, user)
	return nil
}

// CancelByID ends a registration addressed by its own id. Only the user
// who registered may cancel it, and the registration must belong to the
// event named in the path.
func (l *Ledger) CancelByID(ctx context.Context, eventID, regID string, requester *identity.Identity) error {
	reg, err := l.repo.GetByID(ctx, regID)
	if err != nil {
		return err
	}
	if reg.EventID != eventID {
		return ErrNotFound
	}
	if reg.UserID != requester.ID {
		return ErrForbidden
	}
	if reg.Status != StatusActive {
		return ErrNotRegistered
	}

	event, err := l.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return err
	}
	if err := l.repo.Cancel(ctx, reg.ID); err != nil {
		return err
	}

	l.publishCancellation(ctx, event, requester)
	return nil
}

// ListForEvent returns every registration for the event, any status,
// with the minimal user projection. Owner only.
func (l *Ledger) ListForEvent(ctx context.Context, eventID, requesterID string) ([]Registration, error) {
	event, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	allowed, err := l.policy.CanView(ctx, event, requesterID, access.ScopeRegistrationsList)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	return l.repo.ListByEvent(ctx, event.ID)
}

func (l *Ledger) publishCancellation(ctx context.Context, event *events.Event, user *identity.Identity) {
	metrics.RegistrationsTotal.WithLabelValues("canceled").Inc()
	l.hub.PublishEvent(event.ID, registrationPayload{
		Type:    "registration_canceled",
		EventID: event.ID,
		UserID:  user.ID,
	})
	l.notifyOwner(ctx, event, fmt.Sprintf("%s canceled their registration", sanitize.Text(user.Name)))
}

// notifyOwner appends a notification for the event owner and pushes it
// on their user channel. Failures are logged and swallowed: the primary
// operation already committed and its outcome must not be downgraded.
func (l *Ledger) notifyOwner(ctx context.Context, event *events.Event, content string) {
	eventID := event.ID
	notif, err := l.notifs.Append(ctx, notifications.AppendParams{
		UserID:  event.OwnerID,
		EventID: &eventID,
		Type:    notifications.TypeRegistration,
		Content: content,
	})
	if err != nil {
		l.logger.Warn().Err(err).Str("event_id", event.ID).Msg("owner notification append failed")
		return
	}

	l.hub.PublishUser(event.OwnerID, notificationPayload{
		Type:           "notification",
		NotificationID: notif.ID,
		Content:        notif.Content,
	})
}
