package postgres

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/messages"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository bundles the per-area repositories over one pool.
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	users         *UserRepository
	events        *EventRepository
	registrations *RegistrationRepository
	messages      *MessageRepository
	notifications *NotificationRepository
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{
		pool:          pool,
		users:         &UserRepository{pool: pool},
		events:        &EventRepository{pool: pool},
		registrations: &RegistrationRepository{pool: pool},
		messages:      &MessageRepository{pool: pool},
		notifications: &NotificationRepository{pool: pool},
	}, nil
}

// WithTx executes fn against a transaction-bound view of every area
// repository. An error from fn rolls the transaction back.
func (r *Repository) WithTx(ctx context.Context, fn func(*Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &Repository{
		pool:          r.pool,
		tx:            tx,
		users:         &UserRepository{pool: r.pool, tx: tx},
		events:        &EventRepository{pool: r.pool, tx: tx},
		registrations: &RegistrationRepository{pool: r.pool, tx: tx},
		messages:      &MessageRepository{pool: r.pool, tx: tx},
		notifications: &NotificationRepository{pool: r.pool, tx: tx},
	}

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) Users() identity.Repository {
	return r.users
}

func (r *Repository) Events() events.Repository {
	return r.events
}

func (r *Repository) Registrations() registrations.Repository {
	return r.registrations
}

// ActiveRegistrants exposes the registrant lookup used by event update
// fan-out.
func (r *Repository) ActiveRegistrants() events.RegistrantSource {
	return r.registrations
}

func (r *Repository) Messages() messages.Repository {
	return r.messages
}

func (r *Repository) Notifications() notifications.Repository {
	return r.notifications
}
