// Package provider implements the 360dialog WhatsApp API client. Credentials
// are per integration and supplied on every call; the client itself holds no
// key material.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	webhookConfigPath = "/v1/configs/webhook"
	messagesPath      = "/v1/messages"

	apiKeyHeader = "D360-API-KEY"

	registerWebhookTimeout = 15 * time.Second
	sendTextTimeout        = 15 * time.Second
	sendTemplateTimeout    = 20 * time.Second
)

// Credentials identify one integration and its unsealed provider key.
type Credentials struct {
	IntegrationID string
	APIKey        string
}

// Gateway is the outbound WhatsApp surface the services depend on.
type Gateway interface {
	RegisterWebhook(ctx context.Context, apiKey, webhookURL string) error
	SendText(ctx context.Context, creds Credentials, to, body string) (*SendResponse, error)
	SendTemplate(ctx context.Context, creds Credentials, to, templateName, languageCode string, components []map[string]interface{}) (*SendResponse, error)
}

// Client handles communication with the 360dialog API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	ratePerSecond float64
	burst         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a new 360dialog API client
func NewClient(cfg *config.WhatsAppConfig) *Client {
	burst := cfg.SendBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		HTTPClient: &http.Client{
			// Per-call deadlines are tighter; this is the hard ceiling.
			Timeout: 60 * time.Second,
		},
		ratePerSecond: cfg.SendRatePerSecond,
		burst:         burst,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// WebhookConfigRequest sets the inbound webhook URL for an API key.
type WebhookConfigRequest struct {
	URL string `json:"url"`
}

// TextContent is the body of a text message.
type TextContent struct {
	Body string `json:"body"`
}

// SendTextRequest is the wire shape for a text send. The sandbox requires a
// digits-only recipient.
type SendTextRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             TextContent `json:"text"`
}

// TemplateLanguage selects the template translation.
type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplatePayload names a pre-approved template and its parameters.
type TemplatePayload struct {
	Name       string                   `json:"name"`
	Language   TemplateLanguage         `json:"language"`
	Components []map[string]interface{} `json:"components"`
}

// SendTemplateRequest is the wire shape for a template send.
type SendTemplateRequest struct {
	To               string          `json:"to"`
	MessagingProduct string          `json:"messaging_product"`
	Type             string          `json:"type"`
	Template         TemplatePayload `json:"template"`
}

// SentMessage is one accepted message in a send response.
type SentMessage struct {
	ID string `json:"id"`
}

// SendResponse is the provider's acknowledgment of a send.
type SendResponse struct {
	Messages []SentMessage `json:"messages,omitempty"`
}

// FirstMessageID returns the provider id of the first accepted message, or
// empty when the provider returned none.
func (r *SendResponse) FirstMessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// RegisterWebhook points the provider at our inbound webhook URL.
func (c *Client) RegisterWebhook(ctx context.Context, apiKey, webhookURL string) error {
	if apiKey == "" {
		return fmt.Errorf("api key is required: %w", domain.ErrConfig)
	}
	if webhookURL == "" {
		return fmt.Errorf("webhook URL is required: %w", domain.ErrConfig)
	}

	body, err := c.post(ctx, apiKey, webhookConfigPath, WebhookConfigRequest{URL: webhookURL}, registerWebhookTimeout)
	if err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	logger.Base().Info("webhook registered with provider",
		zap.String("url", webhookURL),
		zap.Int("response_bytes", len(body)),
	)
	return nil
}

// SendText sends a plain text message to the recipient.
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (*SendResponse, error) {
	if err := c.waitSend(ctx, creds.IntegrationID); err != nil {
		return nil, fmt.Errorf("send rate limit wait: %w", err)
	}

	request := SendTextRequest{
		MessagingProduct: "whatsapp",
		To:               phone.ToDigits(to),
		Type:             "text",
		Text:             TextContent{Body: body},
	}

	respBody, err := c.post(ctx, creds.APIKey, messagesPath, request, sendTextTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}

	return c.decodeSendResponse(respBody)
}

// SendTemplate sends a pre-approved template message to the recipient.
func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to, templateName, languageCode string, components []map[string]interface{}) (*SendResponse, error) {
	if templateName == "" {
		return nil, fmt.Errorf("template name is required: %w", domain.ErrConfig)
	}
	if languageCode == "" {
		languageCode = "en"
	}
	if components == nil {
		components = []map[string]interface{}{}
	}

	if err := c.waitSend(ctx, creds.IntegrationID); err != nil {
		return nil, fmt.Errorf("send rate limit wait: %w", err)
	}

	request := SendTemplateRequest{
		To:               phone.ToDigits(to),
		MessagingProduct: "whatsapp",
		Type:             "template",
		Template: TemplatePayload{
			Name:       templateName,
			Language:   TemplateLanguage{Code: languageCode},
			Components: components,
		},
	}

	respBody, err := c.post(ctx, creds.APIKey, messagesPath, request, sendTemplateTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to send template: %w", err)
	}

	return c.decodeSendResponse(respBody)
}

func (c *Client) decodeSendResponse(body []byte) (*SendResponse, error) {
	var response SendResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &response); err != nil {
			// The send went through; a malformed ack only costs us the
			// provider message id.
			logger.Base().Warn("unparseable provider send response", zap.Int("bytes", len(body)))
			return &SendResponse{}, nil
		}
	}
	logger.Base().Info("message accepted by provider", zap.String("provider_msg_id", response.FirstMessageID()))
	return &response, nil
}

// post performs one API call with a bounded deadline. Requests are never
// retried; transient failures surface to the caller.
func (c *Client) post(ctx context.Context, apiKey, path string, payload interface{}, timeout time.Duration) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.BaseURL + path
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if err := mapStatusError(resp.StatusCode, bodyBytes); err != nil {
		logger.Base().Warn("provider call rejected",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, err
	}
	return bodyBytes, nil
}

// mapStatusError translates provider HTTP statuses into the error taxonomy:
// 401 invalid key, 403 missing permission, 404 bad endpoint, anything else
// non-2xx keeps its status code.
func mapStatusError(statusCode int, body []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized:
		return fmt.Errorf("provider rejected api key: %w", domain.ErrAuth)
	case statusCode == http.StatusForbidden:
		return fmt.Errorf("api key lacks permission: %w", domain.ErrPermission)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("provider endpoint not found: %w", domain.ErrEndpoint)
	default:
		return domain.NewHTTPStatusError(statusCode, string(body))
	}
}

func (c *Client) waitSend(ctx context.Context, integrationID string) error {
	if c.ratePerSecond <= 0 {
		return nil
	}

	c.mu.Lock()
	lim, ok := c.limiters[integrationID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.ratePerSecond), c.burst)
		c.limiters[integrationID] = lim
	}
	c.mu.Unlock()

	return lim.Wait(ctx)
}
