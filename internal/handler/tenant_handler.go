package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TenantHandler exposes tenant provisioning and per-tenant configuration.
type TenantHandler struct {
	repos repository.RepositoryManager
}

// NewTenantHandler creates a tenant handler.
func NewTenantHandler(repos repository.RepositoryManager) *TenantHandler {
	return &TenantHandler{repos: repos}
}

// CreateTenantRequest is the operator payload for provisioning a tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// Validate enforces the required fields.
func (r CreateTenantRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// CreateTenant provisions a new tenant.
func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tenant, err := h.repos.Tenant().Create(r.Context(), &domain.CreateTenantRequest{Name: req.Name})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// ListTenants returns all tenants.
func (h *TenantHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.repos.Tenant().GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

// UpsertLLMConfigRequest configures a tenant's model settings. The API key is
// write-only: it is sealed at rest and never returned.
type UpsertLLMConfigRequest struct {
	TenantID    string  `json:"tenant_id"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Validate enforces the required fields and ranges.
func (r UpsertLLMConfigRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.Model, validation.Required, validation.In(
			string(domain.ModelTierFast), string(domain.ModelTierAccurate), string(domain.ModelTierExtended),
		)),
		validation.Field(&r.Temperature, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&r.MaxTokens, validation.Required, validation.Min(1), validation.Max(domain.MaxTokensCeiling)),
	)
}

// UpsertLLMConfig writes a tenant's model settings.
func (h *TenantHandler) UpsertLLMConfig(w http.ResponseWriter, r *http.Request) {
	var req UpsertLLMConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if exists, err := h.repos.Tenant().Exists(r.Context(), req.TenantID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if !exists {
		writeErrorMessage(w, http.StatusNotFound, "routing", "tenant not found")
		return
	}

	cfg, err := h.repos.Tenant().UpsertLLMConfig(r.Context(), &domain.UpsertLLMConfigRequest{
		TenantID:    req.TenantID,
		APIKeyPlain: req.APIKey,
		Model:       domain.ModelTier(req.Model),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	req.APIKey = ""
	if err != nil {
		if errors.Is(err, domain.ErrInvariant) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":   cfg.TenantID,
		"model":       cfg.Model,
		"temperature": cfg.Temperature,
		"max_tokens":  cfg.MaxTokens,
	})
}

// UpsertScheduleRequest configures a tenant's outreach cadence.
type UpsertScheduleRequest struct {
	TenantID  string `json:"tenant_id"`
	Frequency string `json:"frequency"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

// Validate enforces the required fields.
func (r UpsertScheduleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantID, validation.Required),
		validation.Field(&r.Frequency, validation.Required, validation.In(
			string(domain.FrequencyMinute), string(domain.FrequencyDaily),
			string(domain.FrequencyWeekly), string(domain.FrequencyMonthly),
			string(domain.FrequencyDisabled),
		)),
	)
}

// UpsertSchedule writes a tenant's outreach cadence.
func (h *TenantHandler) UpsertSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpsertScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if exists, err := h.repos.Tenant().Exists(r.Context(), req.TenantID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	} else if !exists {
		writeErrorMessage(w, http.StatusNotFound, "routing", "tenant not found")
		return
	}

	schedule, err := h.repos.Schedule().Upsert(r.Context(), &domain.UpsertScheduleRequest{
		TenantID:  req.TenantID,
		Frequency: domain.ScheduleFrequency(req.Frequency),
		IsActive:  req.IsActive,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}
