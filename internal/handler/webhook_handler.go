package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ClareAI/astra-sales-agent/internal/services/ingress"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

// WebhookHandler receives provider events. It always answers 200: any other
// status makes the provider retry and the at-most-once key already absorbs
// redeliveries.
type WebhookHandler struct {
	ingress *ingress.Service
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(svc *ingress.Service) *WebhookHandler {
	return &WebhookHandler{ingress: svc}
}

// HandleProviderWebhook processes one provider event body.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var payload ingress.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Base().Warn("unparseable webhook body", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	result := h.ingress.ProcessWebhook(r.Context(), &payload)
	logger.Base().Debug("webhook processed",
		zap.Int("received", result.Received),
		zap.Int("stored", result.Stored),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("dropped", result.Dropped),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
