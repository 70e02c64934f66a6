package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ identity.Repository = (*UserRepository)(nil)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *UserRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const userColumns = `id, email, name, role, blocked, email_verified, created_at`

func scanIdentity(row pgx.Row) (*identity.Identity, error) {
	var user identity.Identity
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.Blocked, &user.EmailVerified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.Identity, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanIdentity(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	row := r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanIdentity(row)
}

func (r *UserRepository) Create(ctx context.Context, params identity.CreateParams) (*identity.Identity, error) {
	role := params.Role
	if role == "" {
		role = identity.RoleUser
	}
	row := r.queryer().QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		params.Email, params.Name, params.PasswordHash, role,
	)
	user, err := scanIdentity(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user: email taken: %w", err)
		}
		return nil, err
	}
	return user, nil
}
