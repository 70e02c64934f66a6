package postgres

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ notifications.Repository = (*NotificationRepository)(nil)

type NotificationRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *NotificationRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const notificationColumns = `id, user_id, event_id, type, content, read, created_at`

func (r *NotificationRepository) Insert(ctx context.Context, params notifications.AppendParams) (*notifications.Notification, error) {
	var n notifications.Notification
	err := r.queryer().QueryRow(ctx, `
		INSERT INTO notifications (user_id, event_id, type, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+notificationColumns,
		params.UserID, params.EventID, params.Type, params.Content,
	).Scan(&n.ID, &n.UserID, &n.EventID, &n.Type, &n.Content, &n.Read, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &n, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]notifications.Notification, error) {
	rows, err := r.queryer().Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		var n notifications.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &n.Type, &n.Content, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead scopes on the owner so a foreign id reads as not found.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := r.queryer().Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return notifications.ErrNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) error {
	_, err := r.queryer().Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
