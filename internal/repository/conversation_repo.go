package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// outreachEligibleStatuses are the statuses the dispatcher may nudge.
// CONTINUE means the client is engaged and an outreach message would be
// noise; CLOSED is terminal.
var outreachEligibleStatuses = []domain.ConversationStatus{
	domain.StatusOpen, domain.StatusScheduleLater, domain.StatusEvaluating,
}

// ConversationRepository handles database operations for conversations
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// OpenOrCreate returns the live (non-terminal) conversation for
// (integration, waID), creating a fresh OPEN one when none exists. The
// second return value reports whether a conversation was created.
func (r *ConversationRepository) OpenOrCreate(ctx context.Context, integrationID, waID string, startedBy domain.StartedBy) (*domain.Conversation, bool, error) {
	if integrationID == "" || waID == "" {
		return nil, false, fmt.Errorf("integration ID and wa ID cannot be empty")
	}

	var conv domain.Conversation
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("integration_id = ? AND wa_id = ? AND status IN ?", integrationID, waID, domain.NonTerminalStatuses).
			Order("last_msg_at DESC").
			First(&conv).Error
		if err == nil {
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to find conversation: %w", err)
		}

		now := time.Now().UTC()
		conv = domain.Conversation{
			ID:            uuid.New().String(),
			IntegrationID: integrationID,
			WaID:          waID,
			StartedBy:     startedBy,
			Status:        domain.StatusOpen,
			StartedAt:     now,
			LastMsgAt:     now,
		}
		if err := tx.Create(&conv).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// LatestByWaID retrieves the most recent conversation for (integration, waID)
// in any status, for inspection.
func (r *ConversationRepository) LatestByWaID(ctx context.Context, integrationID, waID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("integration_id = ? AND wa_id = ?", integrationID, waID).
		Order("last_msg_at DESC").
		First(&conv).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// LatestByWaIDAny retrieves the most recent conversation for an MSISDN
// across all integrations, for the by-number inspection endpoint.
func (r *ConversationRepository) LatestByWaIDAny(ctx context.Context, waID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("wa_id = ?", waID).
		Order("last_msg_at DESC").
		First(&conv).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// UpdateStatus transitions a conversation to the given status. The update is
// a guarded single statement that refuses to touch CLOSED rows, so the
// terminal state can never be left. It reports whether a row changed.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, id string, status domain.ConversationStatus) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid conversation status %q: %w", status, domain.ErrInvariant)
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND status <> ?", id, domain.StatusClosed).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update conversation status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListEvaluationCandidates returns the non-terminal conversations of the
// given integrations, oldest activity first.
func (r *ConversationRepository) ListEvaluationCandidates(ctx context.Context, integrationIDs []string) ([]*domain.Conversation, error) {
	if len(integrationIDs) == 0 {
		return nil, nil
	}

	var convs []*domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("integration_id IN ? AND status IN ?", integrationIDs, domain.NonTerminalStatuses).
		Order("last_msg_at ASC").
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list evaluation candidates: %w", err)
	}
	return convs, nil
}

// LatestOutreachCandidate returns the most recent conversation of the
// integration eligible for a periodic nudge, or nil when none is.
func (r *ConversationRepository) LatestOutreachCandidate(ctx context.Context, integrationID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("integration_id = ? AND status IN ?", integrationID, outreachEligibleStatuses).
		Order("last_msg_at DESC").
		First(&conv).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find outreach candidate: %w", err)
	}
	return &conv, nil
}

// ListStaleEvaluating returns conversations stuck in EVALUATING since before
// the given instant. Used by the startup recovery sweep.
func (r *ConversationRepository) ListStaleEvaluating(ctx context.Context, olderThan time.Time) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusEvaluating, olderThan).
		Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale evaluating conversations: %w", err)
	}
	return convs, nil
}
