package emailer_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *emailer.SendGridClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := emailer.NewSendGridConfigDefaults("test-key", "crm@example.com")
	cfg.FromName = "CRM Relay"
	cfg.BaseURL = server.URL

	client, err := emailer.NewSendGridClient(cfg, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestNewSendGridClient_Validation(t *testing.T) {
	_, err := emailer.NewSendGridClient(nil, zerolog.Nop())
	require.Error(t, err)

	_, err = emailer.NewSendGridClient(&emailer.SendGridConfig{FromEmail: "a@b.com"}, zerolog.Nop())
	require.ErrorContains(t, err, "API key")

	_, err = emailer.NewSendGridClient(&emailer.SendGridConfig{APIKey: "k"}, zerolog.Nop())
	require.ErrorContains(t, err, "from address")
}

func TestSendTemplate_BuildsV3Request(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.SendTemplate(context.Background(), emailer.TemplateEmail{
		To:         "customer@example.com",
		TemplateID: "d-reset-password",
		TemplateData: map[string]interface{}{
			"name":      "Jo",
			"resetLink": "https://example.com/reset?token=abc",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "d-reset-password", gotBody["template_id"])

	from := gotBody["from"].(map[string]interface{})
	assert.Equal(t, "crm@example.com", from["email"])
	assert.Equal(t, "CRM Relay", from["name"])

	personalizations := gotBody["personalizations"].([]interface{})
	require.Len(t, personalizations, 1)
	p := personalizations[0].(map[string]interface{})
	to := p["to"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "customer@example.com", to["email"])
	data := p["dynamic_template_data"].(map[string]interface{})
	assert.Equal(t, "Jo", data["name"])
}

func TestSendTemplate_ProviderErrorSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad api key"}]}`))
	})

	err := client.SendTemplate(context.Background(), emailer.TemplateEmail{
		To:         "customer@example.com",
		TemplateID: "d-welcome",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad api key")
}

func TestSendTemplate_RequiresRecipientAndTemplate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.SendTemplate(context.Background(), emailer.TemplateEmail{TemplateID: "d-welcome"})
	require.ErrorContains(t, err, "recipient")

	err = client.SendTemplate(context.Background(), emailer.TemplateEmail{To: "a@b.com"})
	require.ErrorContains(t, err, "template id")
}
