package domain

import (
	"time"
)

// Tenant is the isolation boundary: one organization's integrations,
// conversations, schedule and LLM configuration are invisible to another.
type Tenant struct {
	ID        string    `json:"id" db:"id" gorm:"column:id;primaryKey"`
	Name      string    `json:"name" db:"name" gorm:"column:name"`
	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Tenant) TableName() string {
	return "agent_tenants"
}

// CreateTenantRequest creates a new tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}
