package jobs

import (
	"context"
	"fmt"

	"github.com/eventhub-live/server/internal/email"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

type ConfirmationEmailArgs struct {
	To         string `json:"to"`
	EventTitle string `json:"event_title"`
	EventCity  string `json:"event_city"`
	StartsAt   string `json:"starts_at"`
}

func (ConfirmationEmailArgs) Kind() string { return JobKindConfirmationEmail }

// ConfirmationEmailWorker delivers the registration confirmation
// through the email service. Send failures surface to River for retry.
type ConfirmationEmailWorker struct {
	river.WorkerDefaults[ConfirmationEmailArgs]
	Emails *email.Service
}

func (ConfirmationEmailWorker) Kind() string { return JobKindConfirmationEmail }

func (w ConfirmationEmailWorker) Work(ctx context.Context, job *river.Job[ConfirmationEmailArgs]) error {
	if w.Emails == nil {
		return fmt.Errorf("email service not configured")
	}
	return w.Emails.SendConfirmation(ctx, job.Args.To, email.ConfirmationData{
		EventTitle: job.Args.EventTitle,
		EventCity:  job.Args.EventCity,
		StartsAt:   job.Args.StartsAt,
	})
}

type NotificationsCleanupArgs struct{}

func (NotificationsCleanupArgs) Kind() string { return JobKindNotificationsCleanup }

// NotificationsCleanupWorker prunes read notifications older than 90
// days. The store is append-only from the application's point of view;
// this is the only thing that ever deletes rows.
type NotificationsCleanupWorker struct {
	river.WorkerDefaults[NotificationsCleanupArgs]
	Pool *pgxpool.Pool
}

func (NotificationsCleanupWorker) Kind() string { return JobKindNotificationsCleanup }

func (w NotificationsCleanupWorker) Work(ctx context.Context, _ *river.Job[NotificationsCleanupArgs]) error {
	if w.Pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	const deleteQuery = `DELETE FROM notifications WHERE read = TRUE AND created_at < now() - interval '90 days'`
	if _, err := w.Pool.Exec(ctx, deleteQuery); err != nil {
		return fmt.Errorf("prune read notifications: %w", err)
	}
	return nil
}

// NewWorkers registers every worker the server runs.
func NewWorkers(emails *email.Service, pool *pgxpool.Pool) (*river.Workers, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely[ConfirmationEmailArgs](workers, ConfirmationEmailWorker{Emails: emails}); err != nil {
		return nil, fmt.Errorf("register confirmation email worker: %w", err)
	}
	if err := river.AddWorkerSafely[NotificationsCleanupArgs](workers, NotificationsCleanupWorker{Pool: pool}); err != nil {
		return nil, fmt.Errorf("register notifications cleanup worker: %w", err)
	}
	return workers, nil
}
