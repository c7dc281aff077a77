// Package emailer sends templated transactional email. Handlers depend only
// on the Sender interface; the concrete client speaks the SendGrid v3 API.
package emailer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// TemplateEmail describes one templated send.
type TemplateEmail struct {
	To           string
	TemplateID   string
	TemplateData map[string]interface{}
}

// Sender is the narrow capability handlers require.
type Sender interface {
	SendTemplate(ctx context.Context, email TemplateEmail) error
}

// SendGridConfig holds the client's settings. BaseURL is overridable so
// tests can point the client at a local server.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	BaseURL   string
	Timeout   time.Duration
}

// NewSendGridConfigDefaults provides defaults for an API key and sender
// address.
func NewSendGridConfigDefaults(apiKey, fromEmail string) *SendGridConfig {
	return &SendGridConfig{
		APIKey:    apiKey,
		FromEmail: fromEmail,
		BaseURL:   "https://api.sendgrid.com",
		Timeout:   15 * time.Second,
	}
}

// SendGridClient implements Sender against the SendGrid v3 mail send
// endpoint.
type SendGridClient struct {
	cfg    *SendGridConfig
	logger zerolog.Logger
}

// NewSendGridClient creates a client.
func NewSendGridClient(cfg *SendGridConfig, logger zerolog.Logger) (*SendGridClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sendgrid config cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SendGridClient{
		cfg:    cfg,
		logger: logger.With().Str("component", "SendGridClient").Logger(),
	}, nil
}

// SendTemplate delivers one templated email. Non-2xx responses are returned
// as errors with the provider's body included for diagnosis.
func (c *SendGridClient) SendTemplate(ctx context.Context, email TemplateEmail) error {
	if email.To == "" {
		return fmt.Errorf("recipient address is required")
	}
	if email.TemplateID == "" {
		return fmt.Errorf("template id is required")
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(c.cfg.FromName, c.cfg.FromEmail))
	message.SetTemplateID(email.TemplateID)

	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail("", email.To))
	for key, value := range email.TemplateData {
		personalization.SetDynamicTemplateData(key, value)
	}
	message.AddPersonalizations(personalization)

	request := sendgrid.GetRequest(c.cfg.APIKey, "/v3/mail/send", c.cfg.BaseURL)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := sendgrid.MakeRequestWithContext(sendCtx, request)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("sendgrid returned %d: %s", response.StatusCode, response.Body)
	}

	c.logger.Info().Str("to", email.To).Str("template_id", email.TemplateID).Msg("Templated email sent.")
	return nil
}
