package repository

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormIntegrationRepository implements IntegrationRepository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GORM integration repository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// Upsert creates or updates the integration for (tenant, mode). The plaintext
// provider key is sealed before persistence and scrubbed from the request; an
// empty key keeps the previously stored one.
func (r *GormIntegrationRepository) Upsert(ctx context.Context, req *domain.UpsertIntegrationRequest) (*domain.Integration, error) {
	defer req.Scrub()

	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}
	if req.Mode == "" {
		req.Mode = domain.IntegrationModeSandbox
	}

	var integration domain.Integration
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND mode = ?", req.TenantID, req.Mode).
		First(&integration).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		integration = domain.Integration{
			ID:       uuid.New().String(),
			TenantID: req.TenantID,
			Mode:     req.Mode,
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}

	if req.ProviderKeyPlain != "" {
		sealed, err := crypto.Seal(req.ProviderKeyPlain)
		if err != nil {
			return nil, fmt.Errorf("failed to seal provider key: %w", err)
		}
		integration.ProviderKeySealed = sealed
	}
	if req.TesterMSISDN != "" {
		// Stored canonically so inbound sender lookups can match on form.
		integration.TesterMSISDN = phone.ToE164(req.TesterMSISDN)
	}
	if req.ClientContext != "" {
		integration.ClientContext = req.ClientContext
	}
	if req.ProjectContext != "" {
		integration.ProjectContext = req.ProjectContext
	}
	if req.CustomInstructions != "" {
		integration.CustomInstructions = req.CustomInstructions
	}

	if err := r.db.WithContext(ctx).Save(&integration).Error; err != nil {
		return nil, fmt.Errorf("failed to save integration: %w", err)
	}
	return &integration, nil
}

// GetByID retrieves an integration by ID
func (r *GormIntegrationRepository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	var integration domain.Integration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&integration).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return &integration, nil
}

// GetByTenantAndMode retrieves the integration for a tenant in a given mode
func (r *GormIntegrationRepository) GetByTenantAndMode(ctx context.Context, tenantID string, mode domain.IntegrationMode) (*domain.Integration, error) {
	var integration domain.Integration
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND mode = ?", tenantID, mode).
		First(&integration).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return &integration, nil
}

// GetByTenantID retrieves all integrations of a tenant
func (r *GormIntegrationRepository) GetByTenantID(ctx context.Context, tenantID string) ([]*domain.Integration, error) {
	var integrations []*domain.Integration
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// GetAll retrieves all integrations
func (r *GormIntegrationRepository) GetAll(ctx context.Context) ([]*domain.Integration, error) {
	var integrations []*domain.Integration
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// FindByTesterForms resolves an inbound sender to its integration by matching
// the tester MSISDN against the given forms. Forms arrive in matching
// precedence order (+E164, digits, raw) and the first form with a hit wins,
// same as the in-memory index. When several integrations share the winning
// form the earliest-created one is kept and the ambiguity is logged.
func (r *GormIntegrationRepository) FindByTesterForms(ctx context.Context, forms []string) (*domain.Integration, error) {
	if len(forms) == 0 {
		return nil, nil
	}

	var integrations []*domain.Integration
	if err := r.db.WithContext(ctx).
		Where("tester_msisdn IN ?", forms).
		Order("created_at ASC").
		Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to find integration by tester: %w", err)
	}
	if len(integrations) == 0 {
		return nil, nil
	}

	byStored := make(map[string][]*domain.Integration, len(integrations))
	for _, it := range integrations {
		byStored[it.TesterMSISDN] = append(byStored[it.TesterMSISDN], it)
	}

	for _, form := range forms {
		candidates := byStored[form]
		if len(candidates) == 0 {
			continue
		}
		if len(candidates) > 1 {
			ids := make([]string, 0, len(candidates))
			for _, it := range candidates {
				ids = append(ids, it.ID)
			}
			logger.L().Warn("multiple integrations share a tester msisdn, using the earliest",
				zap.Strings("integration_ids", ids),
			)
		}
		return candidates[0], nil
	}
	return nil, nil
}
