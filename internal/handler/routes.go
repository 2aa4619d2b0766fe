package handler

import (
	"net/http"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/cache"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/internal/services/ingress"
	"github.com/ClareAI/astra-sales-agent/internal/storage"
	"github.com/gorilla/mux"
)

// HandlerManager holds the HTTP handlers and wires them into a router.
type HandlerManager struct {
	repos repository.RepositoryManager

	webhook      *WebhookHandler
	integration  *IntegrationHandler
	message      *MessageHandler
	conversation *ConversationHandler
	tenant       *TenantHandler
}

// NewHandlerManager builds all handlers from the shared dependencies.
func NewHandlerManager(
	repos repository.RepositoryManager,
	whatsapp provider.Gateway,
	whatsappCfg *config.WhatsAppConfig,
	integrations *cache.IntegrationCache,
	ingressSvc *ingress.Service,
	jobs job.Queue,
	transcripts *storage.TranscriptExporter,
) *HandlerManager {
	return &HandlerManager{
		repos:        repos,
		webhook:      NewWebhookHandler(ingressSvc),
		integration:  NewIntegrationHandler(repos, whatsapp, whatsappCfg, integrations),
		message:      NewMessageHandler(repos, whatsapp),
		conversation: NewConversationHandler(repos, jobs, transcripts),
		tenant:       NewTenantHandler(repos),
	}
}

// SetupRoutes builds the HTTP router. The provider webhook and the health
// check are public; everything else sits behind the operator API key.
func (m *HandlerManager) SetupRoutes(cfg *config.ServiceConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigins))

	// Public surface. The provider retries on non-200, so the webhook route
	// carries no auth of its own; routing trust comes from tester matching.
	router.HandleFunc("/healthz", m.HandleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/webhooks/whatsapp/provider", m.webhook.HandleProviderWebhook).Methods(http.MethodPost)

	authed := router.PathPrefix("/").Subrouter()
	authed.Use(APIKeyMiddleware(cfg.OperatorAPISecret))

	authed.HandleFunc("/integrations/sandbox/connect", m.integration.ConnectSandbox).Methods(http.MethodPost)

	api := authed.PathPrefix("/api").Subrouter()
	api.HandleFunc("/integrations", m.integration.ListIntegrations).Methods(http.MethodGet)

	api.HandleFunc("/tenants", m.tenant.CreateTenant).Methods(http.MethodPost)
	api.HandleFunc("/tenants", m.tenant.ListTenants).Methods(http.MethodGet)
	api.HandleFunc("/tenants/llm-config", m.tenant.UpsertLLMConfig).Methods(http.MethodPut)
	api.HandleFunc("/tenants/schedule", m.tenant.UpsertSchedule).Methods(http.MethodPut)

	api.HandleFunc("/send-text", m.message.SendText).Methods(http.MethodPost)
	api.HandleFunc("/send-template", m.message.SendTemplate).Methods(http.MethodPost)

	api.HandleFunc("/conversations/by-number/{wa_id}", m.conversation.GetConversationByNumber).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}", m.conversation.GetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/transcript", m.conversation.GetTranscript).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/close", m.conversation.CloseConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/reply", m.conversation.RequestReply).Methods(http.MethodPost)

	return router
}

// HandleHealthz reports liveness, including database reachability.
func (m *HandlerManager) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := m.repos.Ping(r.Context()); err != nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "storage", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
