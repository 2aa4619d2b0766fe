package domain

import (
	"time"
)

// ModelTier selects one of the configured model classes rather than a raw
// model name, so tenants cannot point the service at arbitrary models.
type ModelTier string

const (
	ModelTierFast     ModelTier = "fast"
	ModelTierAccurate ModelTier = "accurate"
	ModelTierExtended ModelTier = "extended"
)

const (
	// MaxTokensCeiling bounds per-tenant max_tokens configuration.
	MaxTokensCeiling = 4000
)

// LLMConfig is the per-tenant language model configuration. The tenant's LLM
// API key is sealed with the same master key as provider credentials.
type LLMConfig struct {
	TenantID     string    `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;primaryKey"`
	APIKeySealed []byte    `json:"-" db:"api_key_sealed" gorm:"column:api_key_sealed"`
	Model        ModelTier `json:"model" db:"model" gorm:"column:model"`
	Temperature  float64   `json:"temperature" db:"temperature" gorm:"column:temperature"`
	MaxTokens    int       `json:"max_tokens" db:"max_tokens" gorm:"column:max_tokens"`
	CreatedAt    time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (LLMConfig) TableName() string {
	return "llm_configs"
}

// Validate enforces the configuration ranges: temperature in [0,1] and
// max_tokens in [1,4000].
func (c *LLMConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 1 {
		return ErrInvariant
	}
	if c.MaxTokens < 1 || c.MaxTokens > MaxTokensCeiling {
		return ErrInvariant
	}
	switch c.Model {
	case ModelTierFast, ModelTierAccurate, ModelTierExtended:
	default:
		return ErrInvariant
	}
	return nil
}

// UpsertLLMConfigRequest carries write-time LLM configuration. APIKeyPlain is
// sealed by the repository and scrubbed before persistence.
type UpsertLLMConfigRequest struct {
	TenantID    string    `json:"tenant_id"`
	APIKeyPlain string    `json:"api_key,omitempty"`
	Model       ModelTier `json:"model"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Scrub zeroes the plaintext API key.
func (r *UpsertLLMConfigRequest) Scrub() {
	r.APIKeyPlain = ""
}
