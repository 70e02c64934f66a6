package messages

import (
	"context"
	"errors"
	"time"
)

var (
	ErrForbidden    = errors.New("not allowed to view this event's messages")
	ErrInvalidInput = errors.New("invalid message content")
)

// Message is append-only: never mutated or deleted once posted.
type Message struct {
	ID        string
	EventID   string
	UserID    string
	UserName  string
	Content   string
	CreatedAt time.Time
}

type CreateParams struct {
	EventID string
	UserID  string
	Content string
}

type Repository interface {
	Insert(ctx context.Context, params CreateParams) (*Message, error)
	// ListByEvent returns messages ordered by creation ascending.
	ListByEvent(ctx context.Context, eventID string) ([]Message, error)
}
