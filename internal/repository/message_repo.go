package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendInbound inserts an inbound message at most once per
// (integration_id, provider_msg_id) and advances the conversation's
// last_msg_at. It reports false when the provider message was already
// stored, whether by an earlier delivery or by a concurrent one.
func (r *MessageRepository) AppendInbound(ctx context.Context, msg *domain.Message) (bool, error) {
	msg.Direction = domain.DirectionIn
	r.fillDefaults(msg)

	if msg.ProviderMsgID != "" {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Message{}).
			Where("integration_id = ? AND provider_msg_id = ?", msg.IntegrationID, msg.ProviderMsgID).
			Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to check message existence: %w", err)
		}
		if count > 0 {
			return false, nil
		}
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		// Lost a race with a concurrent delivery of the same provider
		// message; the unique index kept exactly one row.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create inbound message: %w", err)
	}

	if err := r.touchConversation(ctx, msg.ConversationID, msg.CreatedAt); err != nil {
		return true, err
	}
	return true, nil
}

// AppendOutbound inserts an outbound message and advances the conversation's
// last_msg_at. Fabricated provider ids can collide when two sends share a
// timestamp; the collision is resolved by suffixing rather than dropping.
func (r *MessageRepository) AppendOutbound(ctx context.Context, msg *domain.Message) error {
	msg.Direction = domain.DirectionOut
	r.fillDefaults(msg)

	err := r.db.WithContext(ctx).Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) && msg.ProviderMsgID != "" {
		msg.ProviderMsgID = fmt.Sprintf("%s_%s", msg.ProviderMsgID, uuid.New().String()[:8])
		err = r.db.WithContext(ctx).Create(msg).Error
	}
	if err != nil {
		return fmt.Errorf("failed to create outbound message: %w", err)
	}

	return r.touchConversation(ctx, msg.ConversationID, msg.CreatedAt)
}

// ListByConversation returns the messages of a conversation in append order.
// A non-positive limit returns all of them.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*domain.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// RecentTail returns the last n messages of a conversation in append order.
func (r *MessageRepository) RecentTail(ctx context.Context, conversationID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	var messages []*domain.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to get message tail: %w", err)
	}

	// Reverse into append order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Latest returns the most recent message of a conversation, or nil when the
// conversation has none.
func (r *MessageRepository) Latest(ctx context.Context, conversationID string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return &msg, nil
}

// LatestInbound returns the most recent inbound message of a conversation,
// or nil when there is none.
func (r *MessageRepository) LatestInbound(ctx context.Context, conversationID string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND direction = ?", conversationID, domain.DirectionIn).
		Order("created_at DESC, id DESC").
		First(&msg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest inbound message: %w", err)
	}
	return &msg, nil
}

// CountByConversation returns the number of messages in a conversation.
func (r *MessageRepository) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(count), nil
}

// HasOutboundSince reports whether the conversation received an outbound
// message at or after the given instant. Used for the outreach quiet window.
func (r *MessageRepository) HasOutboundSince(ctx context.Context, conversationID string, since time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND direction = ? AND created_at >= ?", conversationID, domain.DirectionOut, since).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check outbound messages: %w", err)
	}
	return count > 0, nil
}

func (r *MessageRepository) fillDefaults(msg *domain.Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Kind == "" {
		msg.Kind = domain.KindText
	}
}

func (r *MessageRepository) touchConversation(ctx context.Context, conversationID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_msg_at": at,
			"updated_at":  time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
