package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

// errorBody is the structured error shape operator endpoints return. The
// category comes from the error taxonomy; the message never contains secret
// material.
type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Base().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{
		Error:    err.Error(),
		Category: domain.ErrorCategory(err),
	})
}

func writeErrorMessage(w http.ResponseWriter, status int, category, message string) {
	writeJSON(w, status, errorBody{Error: message, Category: category})
}
