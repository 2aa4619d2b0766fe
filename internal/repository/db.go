package repository

import (
	"context"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"gorm.io/gorm"
)

// TenantRepository defines the interface for tenant operations, including
// the per-tenant LLM settings row.
type TenantRepository interface {
	// Create operations
	Create(ctx context.Context, req *domain.CreateTenantRequest) (*domain.Tenant, error)

	// Read operations
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetAll(ctx context.Context) ([]*domain.Tenant, error)

	// LLM settings
	UpsertLLMConfig(ctx context.Context, req *domain.UpsertLLMConfigRequest) (*domain.LLMConfig, error)
	GetLLMConfig(ctx context.Context, tenantID string) (*domain.LLMConfig, error)

	// Utility operations
	Exists(ctx context.Context, id string) (bool, error)
}

// IntegrationRepository defines the interface for WhatsApp integration operations
type IntegrationRepository interface {
	// Upsert creates or updates the integration for (tenant, mode). The
	// plaintext provider key on the request is sealed before persistence
	// and scrubbed from the request.
	Upsert(ctx context.Context, req *domain.UpsertIntegrationRequest) (*domain.Integration, error)

	// Read operations
	GetByID(ctx context.Context, id string) (*domain.Integration, error)
	GetByTenantAndMode(ctx context.Context, tenantID string, mode domain.IntegrationMode) (*domain.Integration, error)
	GetByTenantID(ctx context.Context, tenantID string) ([]*domain.Integration, error)
	GetAll(ctx context.Context) ([]*domain.Integration, error)

	// FindByTesterForms resolves an inbound sender to its integration by
	// matching any canonical form of the tester MSISDN.
	FindByTesterForms(ctx context.Context, forms []string) (*domain.Integration, error)
}

// RepositoryManager combines all repositories
type RepositoryManager interface {
	Tenant() TenantRepository
	Integration() IntegrationRepository
	Conversation() *ConversationRepository
	Message() *MessageRepository
	Summary() *SummaryRepository
	Schedule() *ScheduleRepository

	// Transaction support
	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db              *gorm.DB
	tenantRepo      *GormTenantRepository
	integrationRepo *GormIntegrationRepository
	convRepo        *ConversationRepository
	messageRepo     *MessageRepository
	summaryRepo     *SummaryRepository
	scheduleRepo    *ScheduleRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:              db,
		tenantRepo:      NewGormTenantRepository(db),
		integrationRepo: NewGormIntegrationRepository(db),
		convRepo:        NewConversationRepository(db),
		messageRepo:     NewMessageRepository(db),
		summaryRepo:     NewSummaryRepository(db),
		scheduleRepo:    NewScheduleRepository(db),
	}
}

// Tenant returns the tenant repository
func (m *GormRepositoryManager) Tenant() TenantRepository {
	return m.tenantRepo
}

// Integration returns the integration repository
func (m *GormRepositoryManager) Integration() IntegrationRepository {
	return m.integrationRepo
}

// Conversation returns the conversation repository
func (m *GormRepositoryManager) Conversation() *ConversationRepository {
	return m.convRepo
}

// Message returns the message repository
func (m *GormRepositoryManager) Message() *MessageRepository {
	return m.messageRepo
}

// Summary returns the summary repository
func (m *GormRepositoryManager) Summary() *SummaryRepository {
	return m.summaryRepo
}

// Schedule returns the schedule repository
func (m *GormRepositoryManager) Schedule() *ScheduleRepository {
	return m.scheduleRepo
}

// WithTx executes a function within a database transaction
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
