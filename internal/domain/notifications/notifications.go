package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/eventhub-live/server/internal/metrics"
)

var ErrNotFound = errors.New("notification not found")

const (
	TypeRegistration = "registration"
	TypeEventUpdate  = "event_update"
	TypeMessage      = "message"
)

type Notification struct {
	ID        string
	UserID    string
	EventID   *string
	Type      string
	Content   string
	Read      bool
	CreatedAt time.Time
}

type AppendParams struct {
	UserID  string
	EventID *string
	Type    string
	Content string
}

type Repository interface {
	Insert(ctx context.Context, params AppendParams) (*Notification, error)
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// Store is the append-only per-recipient notification record.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Append persists a notification. It has no side effects beyond the
// insert; realtime delivery is the caller's concern.
func (s *Store) Append(ctx context.Context, params AppendParams) (*Notification, error) {
	n, err := s.repo.Insert(ctx, params)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsAppended.WithLabelValues(params.Type).Inc()
	return n, nil
}

// List returns the recipient's notifications, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Notification, error) {
	return s.repo.ListByUser(ctx, userID)
}

// MarkRead flips the read flag. A notification belonging to another
// user is indistinguishable from a missing one.
func (s *Store) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}
