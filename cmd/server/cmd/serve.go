package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventhub-live/server/internal/api"
	"github.com/eventhub-live/server/internal/auth"
	"github.com/eventhub-live/server/internal/config"
	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/messages"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/eventhub-live/server/internal/email"
	"github.com/eventhub-live/server/internal/jobs"
	"github.com/eventhub-live/server/internal/realtime"
	"github.com/eventhub-live/server/internal/storage/postgres"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the EventHub HTTP server",
	Long: `Start the EventHub HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables
- Bootstrap an admin user if ADMIN_* env vars are set
- Start background job workers for email delivery and cleanup
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  server serve --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting eventhub server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.NewPool(poolCtx, cfg.Database.URL)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := bootstrapAdminUser(bootstrapCtx, repo, cfg.AdminBootstrap, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootstrapCancel()

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	gate := identity.NewGate(tokens, repo.Users())
	policy := access.NewPolicy(repo.Registrations())
	hub := realtime.NewHub(logger)
	store := notifications.NewStore(repo.Notifications())
	eventsService := events.NewService(repo.Events(), repo.ActiveRegistrants(), store, hub, logger)

	emails, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service init failed: %w", err)
	}

	workers, err := jobs.NewWorkers(emails, pool)
	if err != nil {
		return fmt.Errorf("job workers init failed: %w", err)
	}
	riverClient, err := jobs.NewClient(pool, workers, nil)
	if err != nil {
		return fmt.Errorf("job client init failed: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("job workers failed to start: %w", err)
	}
	logger.Info().Msg("background job workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("job workers shutdown error")
		} else {
			logger.Info().Msg("job workers stopped")
		}
	}()

	ledger := registrations.NewLedger(repo.Registrations(), repo.Events(), policy, store, hub, jobs.NewEnqueuer(riverClient), logger)
	board := messages.NewBoard(repo.Messages(), repo.Events(), policy, store, hub, logger)

	handler := api.NewRouter(cfg, api.Dependencies{
		Pool:          pool,
		Gate:          gate,
		Policy:        policy,
		Hub:           hub,
		Events:        eventsService,
		Registrations: ledger,
		Messages:      board,
		Notifications: store,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // SSE streams hold the response open indefinitely
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		logger.Info().Msg("shutting down http server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// bootstrapAdminUser creates the admin account from ADMIN_* env vars on
// first start. The check and the insert run in one transaction; runs are
// idempotent and an existing account is left alone.
func bootstrapAdminUser(ctx context.Context, repo *postgres.Repository, bootstrap config.AdminBootstrapConfig, logger zerolog.Logger) error {
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(bootstrap.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	created := false
	err = repo.WithTx(ctx, func(txRepo *postgres.Repository) error {
		_, err := txRepo.Users().GetByEmail(ctx, bootstrap.Email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return fmt.Errorf("check admin user: %w", err)
		}

		_, err = txRepo.Users().Create(ctx, identity.CreateParams{
			Email:        bootstrap.Email,
			Name:         bootstrap.Name,
			PasswordHash: string(hash),
			Role:         identity.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return err
	}

	if created {
		logger.Info().Str("email", bootstrap.Email).Msg("admin user created")
	}
	return nil
}
