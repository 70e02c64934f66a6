package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBlocked      = errors.New("user blocked")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the verified caller of an operation. The core only ever
// reads it; credential issuance lives outside this service.
type Identity struct {
	ID            string
	Email         string
	Name          string
	Role          string
	Blocked       bool
	EmailVerified bool
	CreatedAt     time.Time
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type Repository interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	Create(ctx context.Context, params CreateParams) (*Identity, error)
}

type CreateParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         string
}

// TokenValidator verifies a signed credential and returns its subject
// and role claims.
type TokenValidator interface {
	Subject(token string) (id string, role string, err error)
}

// Gate authenticates bearer credentials. Every mutating operation and
// every stream subscription passes through here first.
type Gate struct {
	tokens TokenValidator
	repo   Repository
}

func NewGate(tokens TokenValidator, repo Repository) *Gate {
	return &Gate{tokens: tokens, repo: repo}
}

// Authenticate validates the token, loads the current user record and
// rejects blocked identities. The stored role wins over the token claim
// so a demotion takes effect before the token expires.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Identity, error) {
	id, _, err := g.tokens.Subject(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := g.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if user.Blocked {
		return nil, ErrBlocked
	}
	return user, nil
}
