// Package summarizer maintains the incremental per-conversation summary that
// feeds the evaluator and the reply generator. Summaries are derived state:
// previous summary plus the unread message tail, merged by the model.
package summarizer

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/llm"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/prompts"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 800
)

// Service refreshes conversation summaries.
type Service struct {
	repos repository.RepositoryManager
	llm   llm.Gateway
	cfg   *config.LLMConfig
}

// New creates a summarizer service.
func New(repos repository.RepositoryManager, gateway llm.Gateway, cfg *config.LLMConfig) *Service {
	return &Service{repos: repos, llm: gateway, cfg: cfg}
}

// Refresh brings the summary of a conversation up to date. When no new
// messages arrived since the snapshot the existing summary is returned
// unchanged. Without force, the refresh is also skipped until the unread
// tail exceeds the refresh delta.
func (s *Service) Refresh(ctx context.Context, conv *domain.Conversation, tenantCfg *domain.LLMConfig, force bool) (*domain.Summary, error) {
	count, err := s.repos.Message().CountByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	existing, err := s.repos.Summary().Get(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}

	if existing != nil && count <= existing.MsgCountAtSnapshot {
		return existing, nil
	}
	if existing != nil && !force && !existing.NeedsRefresh(count) {
		return existing, nil
	}
	if count == 0 {
		return existing, nil
	}

	all, err := s.repos.Message().ListByConversation(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	snapshot := 0
	priorText := ""
	priorContent := ""
	if existing != nil {
		snapshot = existing.MsgCountAtSnapshot
		priorContent = existing.Content
		priorText = domain.StripEvaluationFooter(existing.Content)
	}
	if snapshot > len(all) {
		snapshot = 0
	}
	tail := all[snapshot:]
	if len(tail) == 0 {
		return existing, nil
	}

	req := &llm.ChatRequest{
		Model:       s.cfg.ModelForTier(tierOf(tenantCfg)),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: prompts.SummarySystemPrompt},
			{Role: llm.RoleUser, Content: prompts.SummaryUserPrompt(priorText, prompts.TranscriptLines(tail))},
		},
	}

	content, err := s.llm.Chat(ctx, llm.TenantKey(tenantCfg), req)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize conversation %s: %w", conv.ID, err)
	}

	// Carry the last classification footer forward so it stays inspectable
	// until the next evaluation replaces it.
	if status, confidence, ok := domain.ParseEvaluationFooter(priorContent); ok {
		content = domain.AppendEvaluationFooter(content, status, confidence)
	}

	summary := &domain.Summary{
		ConversationID:     conv.ID,
		Content:            content,
		MsgCountAtSnapshot: len(all),
	}
	if err := s.repos.Summary().Upsert(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to persist summary: %w", err)
	}

	logger.Base().Debug("summary refreshed",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(all)),
		zap.Int("new_messages", len(tail)),
	)
	return summary, nil
}

func tierOf(cfg *domain.LLMConfig) string {
	if cfg == nil {
		return ""
	}
	return string(cfg.Model)
}
