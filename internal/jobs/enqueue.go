package jobs

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Enqueuer hands registration confirmations to the job queue. It is
// the registrations ledger's ConfirmationMailer: enqueueing is cheap
// and transactional failures never block the signup that triggered it.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

var _ registrations.ConfirmationMailer = (*Enqueuer)(nil)

func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) QueueConfirmation(ctx context.Context, params registrations.ConfirmationParams) error {
	if e.client == nil {
		return fmt.Errorf("job client not configured")
	}

	_, err := e.client.Insert(ctx, ConfirmationEmailArgs{
		To:         params.To,
		EventTitle: params.EventTitle,
		EventCity:  params.EventCity,
		StartsAt:   params.StartsAt,
	}, &river.InsertOpts{MaxAttempts: ConfirmationEmailMaxAttempts})
	if err != nil {
		return fmt.Errorf("enqueue confirmation email: %w", err)
	}
	return nil
}
