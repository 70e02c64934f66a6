package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ registrations.Repository = (*RegistrationRepository)(nil)

type RegistrationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *RegistrationRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const registrationColumns = `id, event_id, user_id, status, created_at`

func scanRegistration(row pgx.Row) (*registrations.Registration, error) {
	var reg registrations.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// CreateActive runs the capacity check and the insert in one transaction.
// The event row is locked FOR UPDATE so concurrent registrations for the
// same event serialize on the recount; the partial unique index on the
// active (event_id, user_id) pair backstops the duplicate check.
func (r *RegistrationRepository) CreateActive(ctx context.Context, eventID, userID string) (*registrations.Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txRepo := &RegistrationRepository{pool: r.pool, tx: tx}

	var capacity *int
	err = txRepo.queryer().QueryRow(ctx, `SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	if capacity != nil {
		var active int
		err = txRepo.queryer().QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'active'`,
			eventID,
		).Scan(&active)
		if err != nil {
			return nil, fmt.Errorf("count active registrations: %w", err)
		}
		if active >= *capacity {
			return nil, registrations.ErrEventFull
		}
	}

	reg, err := scanRegistration(txRepo.queryer().QueryRow(ctx, `
		INSERT INTO registrations (event_id, user_id, status)
		VALUES ($1, $2, 'active')
		RETURNING `+registrationColumns,
		eventID, userID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, registrations.ErrAlreadyRegistered
		}
		if isInvalidUUID(err) {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registration tx: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) FindActive(ctx context.Context, eventID, userID string) (*registrations.Registration, error) {
	reg, err := scanRegistration(r.queryer().QueryRow(ctx, `
		SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND user_id = $2 AND status = 'active'`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, registrations.ErrNotRegistered
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*registrations.Registration, error) {
	reg, err := scanRegistration(r.queryer().QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// Cancel only touches active rows, so canceling twice reports
// ErrNotRegistered the second time.
func (r *RegistrationRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE registrations SET status = 'canceled' WHERE id = $1 AND status = 'active'`, id,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return registrations.ErrNotRegistered
		}
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrNotRegistered
	}
	return nil
}

func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]registrations.Registration, error) {
	rows, err := r.queryer().Query(ctx, `
		SELECT r.id, r.event_id, r.user_id, r.status, r.created_at, u.name, u.email
		FROM registrations r
		JOIN users u ON u.id = r.user_id
		WHERE r.event_id = $1
		ORDER BY r.created_at ASC`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []registrations.Registration
	for rows.Next() {
		var reg registrations.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.CreatedAt, &reg.UserName, &reg.UserEmail); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (r *RegistrationRepository) HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM registrations
			WHERE event_id = $1 AND user_id = $2 AND status = 'active'
		)`, eventID, userID).Scan(&exists)
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return exists, nil
}

// ActiveUserIDs feeds event_update fan-out.
func (r *RegistrationRepository) ActiveUserIDs(ctx context.Context, eventID string) ([]string, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT user_id FROM registrations WHERE event_id = $1 AND status = 'active'`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list active registrants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registrant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
