package repository

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GORM tenant repository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Create creates a new tenant
func (r *GormTenantRepository) Create(ctx context.Context, req *domain.CreateTenantRequest) (*domain.Tenant, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("tenant name cannot be empty")
	}

	tenant := &domain.Tenant{
		ID:   uuid.New().String(),
		Name: req.Name,
	}
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

// GetByID retrieves a tenant by ID
func (r *GormTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetAll retrieves all tenants
func (r *GormTenantRepository) GetAll(ctx context.Context) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// Exists checks if a tenant exists by ID
func (r *GormTenantRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Tenant{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return count > 0, nil
}

// UpsertLLMConfig creates or updates the tenant's LLM settings. The plaintext
// API key on the request is sealed before persistence and scrubbed from the
// request; an empty key keeps the previously stored one.
func (r *GormTenantRepository) UpsertLLMConfig(ctx context.Context, req *domain.UpsertLLMConfigRequest) (*domain.LLMConfig, error) {
	defer req.Scrub()

	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}

	var cfg domain.LLMConfig
	err := r.db.WithContext(ctx).Where("tenant_id = ?", req.TenantID).First(&cfg).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		cfg = domain.LLMConfig{TenantID: req.TenantID}
	case err != nil:
		return nil, fmt.Errorf("failed to load llm config: %w", err)
	}

	cfg.Model = req.Model
	cfg.Temperature = req.Temperature
	cfg.MaxTokens = req.MaxTokens
	if req.APIKeyPlain != "" {
		sealed, err := crypto.Seal(req.APIKeyPlain)
		if err != nil {
			return nil, fmt.Errorf("failed to seal llm api key: %w", err)
		}
		cfg.APIKeySealed = sealed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}

	if err := r.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to save llm config: %w", err)
	}
	return &cfg, nil
}

// GetLLMConfig retrieves the tenant's LLM settings
func (r *GormTenantRepository) GetLLMConfig(ctx context.Context, tenantID string) (*domain.LLMConfig, error) {
	var cfg domain.LLMConfig
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get llm config: %w", err)
	}
	return &cfg, nil
}
