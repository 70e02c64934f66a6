package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"

	"github.com/eventhub-live/server/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// Service sends transactional mail through Resend. With Enabled=false
// it degrades to logging, which keeps local development keyless.
type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	logger       zerolog.Logger
}

type ConfirmationData struct {
	EventTitle string
	EventCity  string
	StartsAt   string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>You're in!</h2>
  <p>Your registration for <strong>{{.EventTitle}}</strong> is confirmed.</p>
  <p>{{if .EventCity}}{{.EventCity}} &middot; {{end}}{{.StartsAt}}</p>
  <p>If your plans change you can cancel from the event page.</p>
</body>
</html>`))

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	svc := &Service{
		config: cfg,
		logger: logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled {
		svc.resendClient = resend.NewClient(cfg.APIKey)
	}
	return svc, nil
}

// SendConfirmation delivers the registration confirmation email.
func (s *Service) SendConfirmation(ctx context.Context, to string, data ConfirmationData) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("event", data.EventTitle).
			Msg("email service disabled, skipping confirmation email")
		return nil
	}

	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render confirmation template: %w", err)
	}

	subject := fmt.Sprintf("Registration confirmed: %s", data.EventTitle)
	return s.sendViaResend(ctx, to, subject, body.String())
}

// validateEmailAddress rejects malformed addresses and header injection
// attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}
