package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ events.Repository = (*EventRepository)(nil)

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) queryer() DBTX {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const eventColumns = `e.id, e.owner_id, u.name, e.title, e.description, e.category, e.city,
	e.image_url, e.lat, e.lng, e.starts_at, e.ends_at, e.capacity, e.status, e.created_at`

const eventSelect = `SELECT ` + eventColumns + ` FROM events e JOIN users u ON u.id = e.owner_id`

func scanEvent(row pgx.Row) (*events.Event, error) {
	var ev events.Event
	err := row.Scan(
		&ev.ID, &ev.OwnerID, &ev.OwnerName, &ev.Title, &ev.Description, &ev.Category, &ev.City,
		&ev.ImageURL, &ev.Lat, &ev.Lng, &ev.StartsAt, &ev.EndsAt, &ev.Capacity, &ev.Status, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &ev, nil
}

func collectEvents(rows pgx.Rows) ([]events.Event, error) {
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (r *EventRepository) List(ctx context.Context, filters events.Filters) ([]events.Event, error) {
	var sb strings.Builder
	sb.WriteString(eventSelect)
	sb.WriteString(` WHERE e.status = 'published'`)

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filters.Query); q != "" {
		p := arg("%" + q + "%")
		sb.WriteString(` AND (e.title ILIKE ` + p + ` OR e.description ILIKE ` + p + `)`)
	}
	if filters.Category != "" {
		sb.WriteString(` AND e.category = ` + arg(filters.Category))
	}
	if filters.City != "" {
		sb.WriteString(` AND e.city ILIKE ` + arg(filters.City))
	}
	if filters.DateFrom != nil {
		sb.WriteString(` AND e.starts_at >= ` + arg(*filters.DateFrom))
	}
	if filters.DateTo != nil {
		sb.WriteString(` AND e.starts_at <= ` + arg(*filters.DateTo))
	}
	sb.WriteString(` ORDER BY e.starts_at ASC`)

	rows, err := r.queryer().Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventRepository) ListByOwner(ctx context.Context, ownerID string) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+` WHERE e.owner_id = $1 ORDER BY e.starts_at ASC`, ownerID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list events by owner: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventRepository) ListByActiveRegistrant(ctx context.Context, userID string) ([]events.Event, error) {
	rows, err := r.queryer().Query(ctx, eventSelect+`
		JOIN registrations reg ON reg.event_id = e.id
		WHERE reg.user_id = $1 AND reg.status = 'active'
		ORDER BY e.starts_at ASC`, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list subscribed events: %w", err)
	}
	return collectEvents(rows)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	row := r.queryer().QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id)
	return scanEvent(row)
}

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	var id string
	err := r.queryer().QueryRow(ctx, `
		INSERT INTO events (owner_id, title, description, category, city, image_url, lat, lng, starts_at, ends_at, capacity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		params.OwnerID, params.Title, params.Description, params.Category, params.City,
		params.ImageURL, params.Lat, params.Lng, params.StartsAt, params.EndsAt, params.Capacity, params.Status,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *EventRepository) Update(ctx context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	var sets []string
	var args []any
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Title != nil {
		set("title", *params.Title)
	}
	if params.Description != nil {
		set("description", *params.Description)
	}
	if params.Category != nil {
		set("category", *params.Category)
	}
	if params.City != nil {
		set("city", *params.City)
	}
	if params.ImageURL != nil {
		set("image_url", *params.ImageURL)
	}
	if params.Lat != nil {
		set("lat", *params.Lat)
	}
	if params.Lng != nil {
		set("lng", *params.Lng)
	}
	if params.StartsAt != nil {
		set("starts_at", *params.StartsAt)
	}
	if params.EndsAt != nil {
		set("ends_at", *params.EndsAt)
	}
	if params.Capacity != nil {
		set("capacity", *params.Capacity)
	}
	if params.Status != nil {
		set("status", *params.Status)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE events SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := r.queryer().Exec(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return events.ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}
