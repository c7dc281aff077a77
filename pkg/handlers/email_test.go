package handlers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/handlers"
)

const resetPayload = `{
	"crmProcess": "resetPasswordRequest",
	"customer": {"email": "jo@example.com"},
	"token": "0123456789abcdef0123456789abcdef",
	"metadata": {}
}`

func TestResetPasswordHandler_SendsTokenEmail(t *testing.T) {
	sender := &mockSender{}
	handler := handlers.NewResetPasswordHandler(sender, testTemplates(), zerolog.Nop())

	result, err := handler.Process(context.Background(), eventFromJSON(t, resetPayload))
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, sender.sent, 1)
	sent := sender.sent[0]
	assert.Equal(t, "jo@example.com", sent.To)
	assert.Equal(t, "d-reset-password", sent.TemplateID)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", sent.TemplateData["token"])
	assert.Equal(t, time.Now().Year(), sent.TemplateData["year"])
}

func TestResetPasswordHandler_SendFailureFails(t *testing.T) {
	sender := &mockSender{sendErr: errors.New("sendgrid returned 503")}
	handler := handlers.NewResetPasswordHandler(sender, testTemplates(), zerolog.Nop())

	result, err := handler.Process(context.Background(), eventFromJSON(t, resetPayload))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestNewRegistrationHandler_SendsWelcome(t *testing.T) {
	sender := &mockSender{}
	handler := handlers.NewNewRegistrationHandler(sender, testTemplates(), zerolog.Nop())

	payload := `{
		"crmProcess": "newRegistrationEmail",
		"customer": {"email": "jo@example.com", "name": "Jo"},
		"metadata": {}
	}`
	result, err := handler.Process(context.Background(), eventFromJSON(t, payload))
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "d-new-registration", sender.sent[0].TemplateID)
	assert.Equal(t, "Jo", sender.sent[0].TemplateData["name"])
}

func TestNewRegistrationHandler_FallbackSalutation(t *testing.T) {
	sender := &mockSender{}
	handler := handlers.NewNewRegistrationHandler(sender, testTemplates(), zerolog.Nop())

	payload := `{
		"crmProcess": "newRegistrationEmail",
		"customer": {"email": "jo@example.com"},
		"metadata": {}
	}`
	_, err := handler.Process(context.Background(), eventFromJSON(t, payload))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Valued Customer", sender.sent[0].TemplateData["name"])
}
