package postgres

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/messages"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ messages.Repository = (*MessageRepository)(nil)

type MessageRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *MessageRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *MessageRepository) Insert(ctx context.Context, params messages.CreateParams) (*messages.Message, error) {
	var msg messages.Message
	err := r.queryer().QueryRow(ctx, `
		INSERT INTO messages (event_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, event_id, user_id, content, created_at`,
		params.EventID, params.UserID, params.Content,
	).Scan(&msg.ID, &msg.EventID, &msg.UserID, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (r *MessageRepository) ListByEvent(ctx context.Context, eventID string) ([]messages.Message, error) {
	rows, err := r.queryer().Query(ctx, `
		SELECT m.id, m.event_id, m.user_id, u.name, m.content, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.event_id = $1
		ORDER BY m.created_at ASC`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []messages.Message
	for rows.Next() {
		var msg messages.Message
		if err := rows.Scan(&msg.ID, &msg.EventID, &msg.UserID, &msg.UserName, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
