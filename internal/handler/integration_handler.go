package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/cache"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// IntegrationHandler exposes the operator integration endpoints.
type IntegrationHandler struct {
	repos        repository.RepositoryManager
	whatsapp     provider.Gateway
	whatsappCfg  *config.WhatsAppConfig
	integrations *cache.IntegrationCache
}

// NewIntegrationHandler creates an integration handler.
func NewIntegrationHandler(repos repository.RepositoryManager, whatsapp provider.Gateway, whatsappCfg *config.WhatsAppConfig, integrations *cache.IntegrationCache) *IntegrationHandler {
	return &IntegrationHandler{
		repos:        repos,
		whatsapp:     whatsapp,
		whatsappCfg:  whatsappCfg,
		integrations: integrations,
	}
}

// ConnectSandboxRequest is the operator payload for binding a sandbox
// provider account to a tenant.
type ConnectSandboxRequest struct {
	TenantID           string `json:"tenant_id"`
	APIKey             string `json:"api_key"`
	TesterMSISDN       string `json:"tester_msisdn"`
	ClientContext      string `json:"client_context,omitempty"`
	ProjectContext     string `json:"project_context,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// Validate enforces the required fields.
func (r ConnectSandboxRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.APIKey, validation.Required),
		validation.Field(&r.TesterMSISDN, validation.Required),
	)
}

// ConnectSandbox registers our webhook with the provider, seals and stores
// the key, and opens the tester conversation.
func (h *IntegrationHandler) ConnectSandbox(w http.ResponseWriter, r *http.Request) {
	var req ConnectSandboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if h.whatsappCfg.WebhookPublicURL == "" {
		writeError(w, http.StatusInternalServerError, domain.ErrConfig)
		return
	}

	// Verify the key against the provider before persisting anything.
	if err := h.whatsapp.RegisterWebhook(r.Context(), req.APIKey, h.whatsappCfg.WebhookPublicURL); err != nil {
		writeError(w, gatewayStatus(err), err)
		return
	}

	integration, err := h.repos.Integration().Upsert(r.Context(), &domain.UpsertIntegrationRequest{
		TenantID:           req.TenantID,
		Mode:               domain.IntegrationModeSandbox,
		ProviderKeyPlain:   req.APIKey,
		TesterMSISDN:       req.TesterMSISDN,
		ClientContext:      req.ClientContext,
		ProjectContext:     req.ProjectContext,
		CustomInstructions: req.CustomInstructions,
	})
	req.APIKey = ""
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.integrations != nil {
		h.integrations.Put(integration)
	}

	// The tester conversation exists from the start so the first outreach
	// cycle has something to nudge.
	conv, created, err := h.repos.Conversation().OpenOrCreate(r.Context(), integration.ID, integration.TesterMSISDN, domain.StartedByAdmin)
	if err != nil {
		logger.Base().Warn("failed to open tester conversation",
			zap.String("integration_id", integration.ID),
			zap.Error(err),
		)
	} else if created {
		logger.Base().Info("tester conversation opened",
			zap.String("integration_id", integration.ID),
			zap.String("conversation_id", conv.ID),
		)
	}

	writeJSON(w, http.StatusOK, map[string]string{"integration_id": integration.ID})
}

// integrationView is the list representation: the provider key appears only
// in masked ciphertext form.
type integrationView struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Mode         string `json:"mode"`
	TesterMSISDN string `json:"tester_msisdn"`
	MaskedKey    string `json:"masked_key"`
	CreatedAt    string `json:"created_at"`
}

// ListIntegrations returns all integrations with masked keys.
func (h *IntegrationHandler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.repos.Integration().GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]integrationView, 0, len(integrations))
	for _, integration := range integrations {
		views = append(views, integrationView{
			ID:           integration.ID,
			TenantID:     integration.TenantID,
			Mode:         string(integration.Mode),
			TesterMSISDN: integration.TesterMSISDN,
			MaskedKey:    integration.MaskedProviderKey(),
			CreatedAt:    integration.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"integrations": views})
}

// gatewayStatus maps provider errors onto upstream-failure statuses.
func gatewayStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrAuth), errors.Is(err, domain.ErrPermission):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEndpoint):
		return http.StatusBadGateway
	default:
		var httpErr *domain.HTTPStatusError
		if errors.As(err, &httpErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
