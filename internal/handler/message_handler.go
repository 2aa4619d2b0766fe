package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// MessageHandler exposes the operator send endpoints. Sends here are manual:
// they bypass the scheduler and evaluation loop but still land in the
// conversation ledger.
type MessageHandler struct {
	repos    repository.RepositoryManager
	whatsapp provider.Gateway
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(repos repository.RepositoryManager, whatsapp provider.Gateway) *MessageHandler {
	return &MessageHandler{repos: repos, whatsapp: whatsapp}
}

// SendTextRequest is the operator payload for a manual text send. Either
// integration_id or tenant_id selects the integration; tenant_id picks the
// tenant's sandbox integration.
type SendTextRequest struct {
	IntegrationID string `json:"integration_id"`
	TenantID      string `json:"tenant_id"`
	To            string `json:"to"`
	Text          string `json:"text"`
}

// Validate enforces the required fields.
func (r SendTextRequest) Validate() error {
	if r.IntegrationID == "" && r.TenantID == "" {
		return fmt.Errorf("integration_id or tenant_id is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required),
		validation.Field(&r.Text, validation.Required),
	)
}

// SendTemplateRequest is the operator payload for a manual template send.
type SendTemplateRequest struct {
	IntegrationID string                   `json:"integration_id"`
	TenantID      string                   `json:"tenant_id"`
	To            string                   `json:"to"`
	TemplateName  string                   `json:"template_name"`
	LanguageCode  string                   `json:"language_code"`
	Components    []map[string]interface{} `json:"components"`
}

// Validate enforces the required fields.
func (r SendTemplateRequest) Validate() error {
	if r.IntegrationID == "" && r.TenantID == "" {
		return fmt.Errorf("integration_id or tenant_id is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required),
		validation.Field(&r.TemplateName, validation.Required),
	)
}

// SendText sends one text message and records it on the recipient's
// conversation.
func (h *MessageHandler) SendText(w http.ResponseWriter, r *http.Request) {
	var req SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	integration, creds, ok := h.resolveCredentials(w, r, req.IntegrationID, req.TenantID)
	if !ok {
		return
	}

	resp, err := h.whatsapp.SendText(r.Context(), creds, req.To, req.Text)
	if err != nil {
		writeError(w, gatewayStatus(err), err)
		return
	}

	msgID := h.record(r, integration, req.To, resp, domain.KindText, req.Text, domain.FallbackPrefixOut)
	writeJSON(w, http.StatusOK, map[string]string{"message_id": msgID})
}

// SendTemplate sends one pre-approved template message and records it.
func (h *MessageHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var req SendTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	integration, creds, ok := h.resolveCredentials(w, r, req.IntegrationID, req.TenantID)
	if !ok {
		return
	}

	resp, err := h.whatsapp.SendTemplate(r.Context(), creds, req.To, req.TemplateName, req.LanguageCode, req.Components)
	if err != nil {
		writeError(w, gatewayStatus(err), err)
		return
	}

	text := fmt.Sprintf("[template: %s]", req.TemplateName)
	msgID := h.record(r, integration, req.To, resp, domain.KindTemplate, text, domain.FallbackPrefixTemplate)
	writeJSON(w, http.StatusOK, map[string]string{"message_id": msgID})
}

// resolveCredentials loads the integration and unseals its provider key. On
// failure it writes the response itself and returns ok=false. Unseal failures
// surface as a config error that never echoes key material.
func (h *MessageHandler) resolveCredentials(w http.ResponseWriter, r *http.Request, integrationID, tenantID string) (*domain.Integration, provider.Credentials, bool) {
	var (
		integration *domain.Integration
		err         error
	)
	if integrationID != "" {
		integration, err = h.repos.Integration().GetByID(r.Context(), integrationID)
	} else {
		integration, err = h.repos.Integration().GetByTenantAndMode(r.Context(), tenantID, domain.IntegrationModeSandbox)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, provider.Credentials{}, false
	}
	if integration == nil {
		writeErrorMessage(w, http.StatusNotFound, "routing", "integration not found")
		return nil, provider.Credentials{}, false
	}

	apiKey, err := crypto.Open(integration.ProviderKeySealed)
	if err != nil {
		logger.Base().Error("failed to unseal provider key",
			zap.String("integration_id", integration.ID),
			zap.Error(err),
		)
		writeErrorMessage(w, http.StatusInternalServerError, "crypto", "provider key unavailable")
		return nil, provider.Credentials{}, false
	}

	return integration, provider.Credentials{IntegrationID: integration.ID, APIKey: apiKey}, true
}

// record appends the sent message to the recipient's live conversation and
// returns the stored provider message id.
func (h *MessageHandler) record(r *http.Request, integration *domain.Integration, to string, resp *provider.SendResponse, kind domain.MessageKind, text, fallbackPrefix string) string {
	waID := phone.ToE164(to)
	if waID == "" {
		waID = to
	}

	conv, _, err := h.repos.Conversation().OpenOrCreate(r.Context(), integration.ID, waID, domain.StartedByAdmin)
	if err != nil {
		logger.Base().Error("failed to open conversation for manual send",
			zap.String("integration_id", integration.ID),
			zap.Error(err),
		)
		return resp.FirstMessageID()
	}

	msgID := resp.FirstMessageID()
	if msgID == "" {
		msgID = fmt.Sprintf("%s%d", fallbackPrefix, time.Now().UnixNano())
	}

	msg := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           waID,
		ProviderMsgID:  msgID,
		Kind:           kind,
		Text:           text,
	}
	if err := h.repos.Message().AppendOutbound(r.Context(), msg); err != nil {
		logger.Base().Error("failed to record manual send",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}
	return msgID
}
