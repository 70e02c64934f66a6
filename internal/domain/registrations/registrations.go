package registrations

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEventFull: the event's capacity is reached by active registrations.
	ErrEventFull = errors.New("event full")
	// ErrAlreadyRegistered: the user already holds an active registration.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotRegistered: no active registration to cancel.
	ErrNotRegistered = errors.New("not registered")
	// ErrNotFound: the registration row does not exist.
	ErrNotFound = errors.New("registration not found")
	// ErrForbidden: the requester does not own the registration.
	ErrForbidden = errors.New("not the registration owner")
)

const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// Registration rows are never deleted; cancellation flips Status and the
// row stays as history. Re-registering after a cancel creates a new row.
type Registration struct {
	ID        string
	EventID   string
	UserID    string
	Status    string
	CreatedAt time.Time

	// Minimal user projection, populated on owner-facing listings only.
	UserName  string
	UserEmail string
}

type Repository interface {
	// CreateActive atomically checks capacity and inserts an active
	// registration. The capacity recount and the insert run as one unit
	// against concurrent callers: implementations lock the event row,
	// recount active rows, and rely on a partial unique index over the
	// active (event, user) pair as a backstop. Returns ErrEventFull or
	// ErrAlreadyRegistered on conflict.
	CreateActive(ctx context.Context, eventID, userID string) (*Registration, error)

	// FindActive returns the single active registration for the pair,
	// or ErrNotRegistered.
	FindActive(ctx context.Context, eventID, userID string) (*Registration, error)

	// GetByID returns any-status registration, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Registration, error)

	// Cancel transitions an active registration to canceled. Returns
	// ErrNotRegistered when the row is already canceled or missing, so
	// repeated cancels stay idempotent from the caller's perspective.
	Cancel(ctx context.Context, id string) error

	// ListByEvent returns all registrations (any status) with the user
	// projection populated.
	ListByEvent(ctx context.Context, eventID string) ([]Registration, error)

	HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error)
}
