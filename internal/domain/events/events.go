package events

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("not the event owner")
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

type Event struct {
	ID          string
	OwnerID     string
	OwnerName   string
	Title       string
	Description string
	Category    string
	City        string
	ImageURL    *string
	Lat         *float64
	Lng         *float64
	StartsAt    time.Time
	EndsAt      *time.Time
	Capacity    *int
	Status      string
	CreatedAt   time.Time
}

type CreateParams struct {
	OwnerID     string
	Title       string
	Description string
	Category    string
	City        string
	ImageURL    *string
	Lat         *float64
	Lng         *float64
	StartsAt    time.Time
	EndsAt      *time.Time
	Capacity    *int
	Status      string
}

// UpdateParams carries partial updates; nil means leave unchanged.
type UpdateParams struct {
	Title       *string
	Description *string
	Category    *string
	City        *string
	ImageURL    *string
	Lat         *float64
	Lng         *float64
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
	Status      *string
}

type Filters struct {
	Query    string
	Category string
	City     string
	DateFrom *time.Time
	DateTo   *time.Time
}

type Repository interface {
	List(ctx context.Context, filters Filters) ([]Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Event, error)
	ListByActiveRegistrant(ctx context.Context, userID string) ([]Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	Create(ctx context.Context, params CreateParams) (*Event, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Event, error)
	Delete(ctx context.Context, id string) error
}
