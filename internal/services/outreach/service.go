// Package outreach implements periodic dispatch: for each integration of a
// due tenant it picks the most recent nudgeable conversation, asks the model
// for an outreach line and sends it. Conversation status is never touched
// here; that is the evaluator's job on the next cycle.
package outreach

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
	outreachTemperature = 0.7
	outreachMaxTokens   = 200
)

// Counts reports the outcome of one tenant dispatch run.
type Counts struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Service sends periodic outreach messages.
type Service struct {
	repos     repository.RepositoryManager
	llm       llm.Gateway
	llmCfg    *config.LLMConfig
	whatsapp  provider.Gateway
	publisher *events.Publisher

	// QuietWindow suppresses outreach to conversations with any activity
	// inside it; nudging an active exchange is noise.
	QuietWindow time.Duration
}

// New creates an outreach service. Publisher may be nil.
func New(repos repository.RepositoryManager, gateway llm.Gateway, llmCfg *config.LLMConfig, whatsapp provider.Gateway, publisher *events.Publisher, quietDays int) *Service {
	if quietDays < 0 {
		quietDays = 0
	}
	return &Service{
		repos:       repos,
		llm:         gateway,
		llmCfg:      llmCfg,
		whatsapp:    whatsapp,
		publisher:   publisher,
		QuietWindow: time.Duration(quietDays) * 24 * time.Hour,
	}
}

// DispatchTenant sends at most one outreach message per integration of the
// tenant. Integrations without an openable provider key are skipped, as are
// conversations inside the quiet window.
func (s *Service) DispatchTenant(ctx context.Context, tenantID string) (Counts, error) {
	var counts Counts

	llmCfg, err := s.repos.Tenant().GetLLMConfig(ctx, tenantID)
	if err != nil {
		return counts, fmt.Errorf("failed to load llm config: %w", err)
	}
	if llmCfg == nil {
		logger.Base().Debug("tenant has no llm config, skipping dispatch", zap.String("tenant_id", tenantID))
		return counts, nil
	}

	integrations, err := s.repos.Integration().GetByTenantID(ctx, tenantID)
	if err != nil {
		return counts, fmt.Errorf("failed to load integrations: %w", err)
	}

	for _, integration := range integrations {
		sent, err := s.dispatchIntegration(ctx, integration, llmCfg, tenantID)
		switch {
		case err != nil:
			counts.Failed++
			logger.Base().Warn("outreach failed",
				zap.String("integration_id", integration.ID),
				zap.Error(err),
			)
		case sent:
			counts.Sent++
		default:
			counts.Skipped++
		}
	}

	logger.Base().Info("tenant dispatch done",
		zap.String("tenant_id", tenantID),
		zap.Int("sent", counts.Sent),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
	return counts, nil
}

func (s *Service) dispatchIntegration(ctx context.Context, integration *domain.Integration, llmCfg *domain.LLMConfig, tenantID string) (bool, error) {
	conv, err := s.repos.Conversation().LatestOutreachCandidate(ctx, integration.ID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}

	if s.QuietWindow > 0 && time.Since(conv.LastMsgAt) < s.QuietWindow {
		logger.Base().Debug("outreach suppressed, conversation inside quiet window",
			zap.String("conversation_id", conv.ID),
			zap.Time("last_msg_at", conv.LastMsgAt),
		)
		return false, nil
	}

	apiKey, err := crypto.Open(integration.ProviderKeySealed)
	if err != nil {
		// Treated as an integration without a key: skip, never surface
		// anything derived from the ciphertext.
		logger.Base().Warn("provider key unavailable, skipping integration",
			zap.String("integration_id", integration.ID),
		)
		return false, nil
	}

	summaryText := ""
	if summary, err := s.repos.Summary().Get(ctx, conv.ID); err == nil && summary != nil {
		summaryText = summary.Content
	}

	req := &llm.ChatRequest{
		Model:       s.llmCfg.ModelForTier(string(llmCfg.Model)),
		Temperature: outreachTemperature,
		MaxTokens:   outreachMaxTokens,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: prompts.SystemPrompt(integration, summaryText)},
			{Role: llm.RoleUser, Content: prompts.OutreachUserMessage},
		},
	}
	text, err := s.llm.Chat(ctx, llm.TenantKey(llmCfg), req)
	if err != nil {
		return false, fmt.Errorf("failed to generate outreach message: %w", err)
	}

	creds := provider.Credentials{IntegrationID: integration.ID, APIKey: apiKey}
	response, err := s.whatsapp.SendText(ctx, creds, conv.WaID, text)
	if err != nil {
		return false, fmt.Errorf("failed to send outreach message: %w", err)
	}

	providerMsgID := response.FirstMessageID()
	if providerMsgID == "" {
		providerMsgID = fmt.Sprintf("%s%d", domain.FallbackPrefixPeriodic, time.Now().UnixNano())
	}

	msg := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		ProviderMsgID:  providerMsgID,
		Kind:           domain.KindText,
		Text:           text,
	}
	if err := s.repos.Message().AppendOutbound(ctx, msg); err != nil {
		return false, fmt.Errorf("outreach sent but not persisted: %w", err)
	}

	s.publisher.Publish(ctx, events.Event{
		Type:           events.TypeMessageSent,
		TenantID:       tenantID,
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		Attributes:     map[string]string{"origin": "periodic"},
	})

	logger.Base().Info("outreach sent",
		zap.String("conversation_id", conv.ID),
		zap.String("provider_msg_id", providerMsgID),
	)
	return true, nil
}
