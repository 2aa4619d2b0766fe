package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.WhatsAppConfig{BaseURL: baseURL})
}

func TestRegisterWebhook(t *testing.T) {
	var gotPath, gotKey string
	var gotBody WebhookConfigRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("D360-API-KEY")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.RegisterWebhook(context.Background(), "key-123", "https://example.com/webhooks/whatsapp")
	require.NoError(t, err)

	assert.Equal(t, "/v1/configs/webhook", gotPath)
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "https://example.com/webhooks/whatsapp", gotBody.URL)
}

func TestRegisterWebhookRequiresConfig(t *testing.T) {
	client := newTestClient("http://unused")

	err := client.RegisterWebhook(context.Background(), "", "https://example.com/hook")
	assert.ErrorIs(t, err, domain.ErrConfig)

	err = client.RegisterWebhook(context.Background(), "key", "")
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized maps to auth error", http.StatusUnauthorized, domain.ErrAuth},
		{"forbidden maps to permission error", http.StatusForbidden, domain.ErrPermission},
		{"not found maps to endpoint error", http.StatusNotFound, domain.ErrEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			err := client.RegisterWebhook(context.Background(), "key", "https://example.com/hook")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOtherStatusKeepsCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream sad")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendText(context.Background(), Credentials{IntegrationID: "i1", APIKey: "key"}, "+15550001111", "hi")
	require.Error(t, err)

	var httpErr *domain.HTTPStatusError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "upstream sad")
}

func TestSendTextUsesDigitsOnlyRecipient(t *testing.T) {
	var got SendTextRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"messages":[{"id":"wamid.OUT1"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.SendText(context.Background(), Credentials{IntegrationID: "i1", APIKey: "key"}, "+852 9123-4567", "hello there")
	require.NoError(t, err)

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "85291234567", got.To, "sandbox requires digits-only recipients")
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "hello there", got.Text.Body)
	assert.Equal(t, "wamid.OUT1", resp.FirstMessageID())
}

func TestSendTemplateShape(t *testing.T) {
	var raw map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, `{"messages":[{"id":"wamid.TPL1"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.SendTemplate(context.Background(), Credentials{IntegrationID: "i1", APIKey: "key"}, "15550001111", "welcome_pack", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "wamid.TPL1", resp.FirstMessageID())

	tpl, ok := raw["template"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "welcome_pack", tpl["name"])

	lang, ok := tpl["language"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "en", lang["code"], "language defaults to en")

	components, ok := tpl["components"].([]interface{})
	require.True(t, ok, "components must be an array, not null")
	assert.Empty(t, components)
}

func TestSendTemplateRequiresName(t *testing.T) {
	client := newTestClient("http://unused")
	_, err := client.SendTemplate(context.Background(), Credentials{}, "15550001111", "", "en", nil)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestNoRetriesOnFailure(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SendText(context.Background(), Credentials{IntegrationID: "i1", APIKey: "key"}, "15550001111", "hi")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a failed call is not retried")
}

func TestMalformedAckIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok but not json")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.SendText(context.Background(), Credentials{IntegrationID: "i1", APIKey: "key"}, "15550001111", "hi")
	require.NoError(t, err)
	assert.Empty(t, resp.FirstMessageID())
}
