package repository

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SummaryRepository handles database operations for conversation summaries
type SummaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Get retrieves the summary of a conversation, or nil when none exists yet
func (r *SummaryRepository) Get(ctx context.Context, conversationID string) (*domain.Summary, error) {
	var summary domain.Summary
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&summary).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// Upsert writes the summary, inserting or overwriting the row for its
// conversation.
func (r *SummaryRepository) Upsert(ctx context.Context, summary *domain.Summary) error {
	if summary.ConversationID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "msg_count_at_snapshot", "updated_at"}),
	}).Create(summary).Error; err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}
