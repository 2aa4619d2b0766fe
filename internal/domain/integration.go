package domain

import (
	"encoding/base64"
	"time"
)

// IntegrationMode distinguishes the provider environment an integration
// points at. A tenant has at most one integration per mode.
type IntegrationMode string

const (
	IntegrationModeSandbox IntegrationMode = "sandbox"
	IntegrationModeProd    IntegrationMode = "prod"
)

// Integration binds a tenant to one WhatsApp provider account. The provider
// API key is stored sealed; ProviderKeySealed never holds plaintext, and the
// plaintext accepted at write time is zeroed before the row is persisted.
type Integration struct {
	ID                 string          `json:"id" db:"id" gorm:"column:id;primaryKey"`
	TenantID           string          `json:"tenant_id" db:"tenant_id" gorm:"column:tenant_id;uniqueIndex:uni_wa_integrations_tenant_mode"`
	Mode               IntegrationMode `json:"mode" db:"mode" gorm:"column:mode;uniqueIndex:uni_wa_integrations_tenant_mode"`
	ProviderKeySealed  []byte          `json:"-" db:"provider_key_sealed" gorm:"column:provider_key_sealed"`
	TesterMSISDN       string          `json:"tester_msisdn" db:"tester_msisdn" gorm:"column:tester_msisdn;index"`
	ClientContext      string          `json:"client_context" db:"client_context" gorm:"column:client_context"`
	ProjectContext     string          `json:"project_context" db:"project_context" gorm:"column:project_context"`
	CustomInstructions string          `json:"custom_instructions" db:"custom_instructions" gorm:"column:custom_instructions"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Integration) TableName() string {
	return "wa_integrations"
}

// MaskedProviderKey renders the sealed key for display: first and last eight
// bytes of the ciphertext in hex-free base form, middle elided. Plaintext is
// never recoverable from this.
func (i *Integration) MaskedProviderKey() string {
	sealed := i.ProviderKeySealed
	if len(sealed) == 0 {
		return "no key"
	}
	enc := encodeKeyPreview(sealed)
	if len(enc) <= 4 {
		return "***"
	}
	if len(enc) <= 16 {
		return "***" + enc[:4] + "***"
	}
	return enc[:8] + "***" + enc[len(enc)-8:]
}

// UpsertIntegrationRequest carries the write-time fields for an integration.
// ProviderKeyPlain is consumed by the repository, which seals it and zeroes
// the field before the entity leaves the write path.
type UpsertIntegrationRequest struct {
	TenantID           string          `json:"tenant_id"`
	Mode               IntegrationMode `json:"mode"`
	ProviderKeyPlain   string          `json:"api_key,omitempty"`
	TesterMSISDN       string          `json:"tester_msisdn"`
	ClientContext      string          `json:"client_context,omitempty"`
	ProjectContext     string          `json:"project_context,omitempty"`
	CustomInstructions string          `json:"custom_instructions,omitempty"`
}

// Scrub zeroes the plaintext key so it cannot outlive the write path.
func (r *UpsertIntegrationRequest) Scrub() {
	r.ProviderKeyPlain = ""
}

func encodeKeyPreview(sealed []byte) string {
	return base64.RawStdEncoding.EncodeToString(sealed)
}
