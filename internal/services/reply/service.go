// Package reply generates context-aware replies on conversations where the
// client spoke last and the evaluator judged the exchange worth continuing.
package reply

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/llm"
	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/prompts"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/ClareAI/astra-sales-agent/pkg/events"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

const (
	replyTemperature = 0.7
	replyMaxTokens   = 300

	// replyTailSize is how much recent history the model sees as turns.
	replyTailSize = 5
)

// Service generates and sends replies.
type Service struct {
	repos     repository.RepositoryManager
	llm       llm.Gateway
	llmCfg    *config.LLMConfig
	whatsapp  provider.Gateway
	publisher *events.Publisher
}

// New creates a reply service. Publisher may be nil.
func New(repos repository.RepositoryManager, gateway llm.Gateway, llmCfg *config.LLMConfig, whatsapp provider.Gateway, publisher *events.Publisher) *Service {
	return &Service{
		repos:     repos,
		llm:       gateway,
		llmCfg:    llmCfg,
		whatsapp:  whatsapp,
		publisher: publisher,
	}
}

// MaybeReply sends one reply on the conversation when it is in CONTINUE and
// the latest message is inbound. Every other state skips without error. The
// last-message direction is rechecked immediately before the send so two
// concurrent reply jobs produce at most one outbound message.
func (s *Service) MaybeReply(ctx context.Context, conversationID string) (*domain.Message, bool, error) {
	conv, err := s.repos.Conversation().GetByID(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, false, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	if conv.Status != domain.StatusContinue {
		logger.Base().Debug("reply skipped, conversation not in continue",
			zap.String("conversation_id", conv.ID),
			zap.String("status", string(conv.Status)),
		)
		return nil, true, nil
	}

	latest, err := s.repos.Message().Latest(ctx, conv.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load latest message: %w", err)
	}
	if latest == nil || latest.Direction != domain.DirectionIn {
		return nil, true, nil
	}

	integration, err := s.repos.Integration().GetByID(ctx, conv.IntegrationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load integration: %w", err)
	}
	if integration == nil {
		return nil, false, fmt.Errorf("integration %s: %w", conv.IntegrationID, domain.ErrNotFound)
	}

	apiKey, err := crypto.Open(integration.ProviderKeySealed)
	if err != nil {
		// An unopenable key disables the integration for sending.
		return nil, true, fmt.Errorf("provider key unavailable for integration %s: %w", integration.ID, err)
	}

	tenantCfg, err := s.repos.Tenant().GetLLMConfig(ctx, integration.TenantID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load llm config: %w", err)
	}

	summaryText := ""
	if summary, err := s.repos.Summary().Get(ctx, conv.ID); err == nil && summary != nil {
		summaryText = summary.Content
	}

	tail, err := s.repos.Message().RecentTail(ctx, conv.ID, replyTailSize)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load message tail: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(tail)+1)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: prompts.SystemPrompt(integration, summaryText),
	})
	for _, m := range tail {
		role := llm.RoleAssistant
		if m.Direction == domain.DirectionIn {
			role = llm.RoleUser
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: m.Text})
	}

	req := &llm.ChatRequest{
		Model:       s.llmCfg.ModelForTier(tierOf(tenantCfg)),
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
		Messages:    messages,
	}
	replyText, err := s.llm.Chat(ctx, llm.TenantKey(tenantCfg), req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate reply: %w", err)
	}

	// Anti-loop recheck: another worker may have replied while the model
	// was generating.
	recheck, err := s.repos.Message().Latest(ctx, conv.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to recheck latest message: %w", err)
	}
	if recheck == nil || recheck.Direction != domain.DirectionIn {
		logger.Base().Info("reply skipped, conversation already answered",
			zap.String("conversation_id", conv.ID),
		)
		return nil, true, nil
	}

	creds := provider.Credentials{IntegrationID: integration.ID, APIKey: apiKey}
	response, err := s.whatsapp.SendText(ctx, creds, conv.WaID, replyText)
	if err != nil {
		return nil, false, fmt.Errorf("failed to send reply: %w", err)
	}

	providerMsgID := response.FirstMessageID()
	if providerMsgID == "" {
		providerMsgID = fmt.Sprintf("%s%d", domain.FallbackPrefixAIReply, time.Now().UnixNano())
	}

	msg := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		ProviderMsgID:  providerMsgID,
		Kind:           domain.KindText,
		Text:           replyText,
	}
	if err := s.repos.Message().AppendOutbound(ctx, msg); err != nil {
		return nil, false, fmt.Errorf("reply sent but not persisted: %w", err)
	}

	s.publisher.Publish(ctx, events.Event{
		Type:           events.TypeMessageSent,
		TenantID:       integration.TenantID,
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		Attributes:     map[string]string{"origin": "ai_reply"},
	})

	logger.Base().Info("reply sent",
		zap.String("conversation_id", conv.ID),
		zap.String("provider_msg_id", providerMsgID),
	)
	return msg, false, nil
}

func tierOf(cfg *domain.LLMConfig) string {
	if cfg == nil {
		return ""
	}
	return string(cfg.Model)
}
