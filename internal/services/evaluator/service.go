// Package evaluator classifies the health of every live conversation of a
// tenant and writes the outcome back to the conversation status. It is the
// only component allowed to transition statuses besides the explicit close
// action.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/llm"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/prompts"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/internal/services/summarizer"
	"github.com/ClareAI/astra-sales-agent/pkg/events"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	redispkg "github.com/ClareAI/astra-sales-agent/pkg/redis"
	"go.uber.org/zap"
)

const (
	evaluationTemperature = 0.2
	evaluationMaxTokens   = 600

	// contextTailSize bounds the recent-message context handed to the
	// classifier alongside the summary.
	contextTailSize = 5

	// tenantLockTTL bounds how long one instance may hold the per-tenant
	// evaluation lock.
	tenantLockTTL = 2 * time.Minute
)

// Counts reports the outcome of one tenant evaluation run.
type Counts struct {
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Service evaluates tenant conversations.
type Service struct {
	repos      repository.RepositoryManager
	llm        llm.Gateway
	llmCfg     *config.LLMConfig
	summarizer *summarizer.Service
	publisher  *events.Publisher
	redis      *redispkg.RedisService
	instanceID string

	// StaleAfter is the age at which an EVALUATING row is considered
	// abandoned by a crashed job.
	StaleAfter time.Duration
}

// New creates an evaluator. Publisher and redis may be nil.
func New(repos repository.RepositoryManager, gateway llm.Gateway, llmCfg *config.LLMConfig, sum *summarizer.Service, publisher *events.Publisher, redis *redispkg.RedisService, instanceID string, staleAfter time.Duration) *Service {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Service{
		repos:      repos,
		llm:        gateway,
		llmCfg:     llmCfg,
		summarizer: sum,
		publisher:  publisher,
		redis:      redis,
		instanceID: instanceID,
		StaleAfter: staleAfter,
	}
}

// EvaluateTenant classifies every live conversation of the tenant. Tenants
// without an LLM configuration or without integrations are skipped. Failures
// are isolated per conversation.
func (s *Service) EvaluateTenant(ctx context.Context, tenantID string) (Counts, error) {
	var counts Counts

	llmCfg, err := s.repos.Tenant().GetLLMConfig(ctx, tenantID)
	if err != nil {
		return counts, fmt.Errorf("failed to load llm config: %w", err)
	}
	if llmCfg == nil {
		logger.Base().Debug("tenant has no llm config, skipping evaluation", zap.String("tenant_id", tenantID))
		return counts, nil
	}

	integrations, err := s.repos.Integration().GetByTenantID(ctx, tenantID)
	if err != nil {
		return counts, fmt.Errorf("failed to load integrations: %w", err)
	}
	if len(integrations) == 0 {
		return counts, nil
	}

	unlock, acquired := s.acquireTenantLock(ctx, tenantID)
	if !acquired {
		logger.Base().Debug("tenant evaluation already running elsewhere", zap.String("tenant_id", tenantID))
		return counts, nil
	}
	defer unlock()

	integrationIDs := make([]string, 0, len(integrations))
	for _, integration := range integrations {
		integrationIDs = append(integrationIDs, integration.ID)
	}

	candidates, err := s.repos.Conversation().ListEvaluationCandidates(ctx, integrationIDs)
	if err != nil {
		return counts, fmt.Errorf("failed to list candidates: %w", err)
	}

	for _, conv := range candidates {
		switch outcome := s.evaluateConversation(ctx, conv, llmCfg, tenantID); outcome {
		case outcomeEvaluated:
			counts.Evaluated++
		case outcomeSkipped:
			counts.Skipped++
		default:
			counts.Failed++
		}
	}

	logger.Base().Info("tenant evaluation done",
		zap.String("tenant_id", tenantID),
		zap.Int("evaluated", counts.Evaluated),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
	return counts, nil
}

type outcome int

const (
	outcomeEvaluated outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Service) evaluateConversation(ctx context.Context, conv *domain.Conversation, llmCfg *domain.LLMConfig, tenantID string) outcome {
	count, err := s.repos.Message().CountByConversation(ctx, conv.ID)
	if err != nil {
		logger.Base().Warn("failed to count messages", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}
	if count == 0 {
		return outcomeSkipped
	}

	existing, err := s.repos.Summary().Get(ctx, conv.ID)
	if err != nil {
		logger.Base().Warn("failed to load summary", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}
	if existing != nil && count <= existing.MsgCountAtSnapshot {
		// Nothing happened since the last evaluation.
		return outcomeSkipped
	}

	priorStatus := conv.Status
	changed, err := s.repos.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusEvaluating)
	if err != nil || !changed {
		logger.Base().Warn("failed to enter evaluating state", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}

	summary, err := s.summarizer.Refresh(ctx, conv, llmCfg, true)
	if err != nil {
		s.revert(ctx, conv.ID, priorStatus)
		logger.Base().Warn("summary refresh failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}

	tail, err := s.repos.Message().RecentTail(ctx, conv.ID, contextTailSize)
	if err != nil {
		s.revert(ctx, conv.ID, priorStatus)
		logger.Base().Warn("failed to load message tail", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}

	summaryText := ""
	if summary != nil {
		summaryText = domain.StripEvaluationFooter(summary.Content)
	}
	contextText := strings.Join(prompts.TranscriptLines(tail), "\n")

	req := &llm.ChatRequest{
		Model:       s.modelFor(llmCfg),
		Temperature: evaluationTemperature,
		MaxTokens:   evaluationMaxTokens,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: prompts.EvaluationSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.EvaluationUserPrompt(summaryText, contextText)},
		},
	}

	evaluation, err := s.llm.Classify(ctx, llm.TenantKey(llmCfg), req)
	if err != nil {
		// Provider failures degrade to the safe default inside the gateway;
		// an error here means the job context died. Put the conversation
		// back for the next run.
		s.revert(ctx, conv.ID, priorStatus)
		logger.Base().Warn("classification aborted", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}

	newStatus := evaluation.Status.ConversationStatus()
	if _, err := s.repos.Conversation().UpdateStatus(ctx, conv.ID, newStatus); err != nil {
		s.revert(ctx, conv.ID, priorStatus)
		logger.Base().Warn("failed to write evaluated status", zap.String("conversation_id", conv.ID), zap.Error(err))
		return outcomeFailed
	}

	if summary != nil {
		summary.Content = domain.AppendEvaluationFooter(summary.Content, evaluation.Status, evaluation.Confidence)
		if err := s.repos.Summary().Upsert(ctx, summary); err != nil {
			logger.Base().Warn("failed to persist evaluation footer", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	if newStatus != priorStatus {
		s.publisher.Publish(ctx, events.Event{
			Type:           events.TypeConversationStatusChanged,
			TenantID:       tenantID,
			IntegrationID:  conv.IntegrationID,
			ConversationID: conv.ID,
			Attributes: map[string]string{
				"from":       string(priorStatus),
				"to":         string(newStatus),
				"confidence": fmt.Sprintf("%.2f", evaluation.Confidence),
			},
		})
	}

	logger.Base().Info("conversation evaluated",
		zap.String("conversation_id", conv.ID),
		zap.String("status", string(newStatus)),
		zap.Float64("confidence", evaluation.Confidence),
		zap.String("sentiment", evaluation.ClientSentiment),
		zap.String("engagement", evaluation.EngagementLevel),
	)
	return outcomeEvaluated
}

// RecoverStale sweeps conversations abandoned in EVALUATING by a crashed job
// back to their prior status: the one recorded in the summary footer, or
// OPEN when no footer exists. Called on startup.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.StaleAfter)
	stale, err := s.repos.Conversation().ListStaleEvaluating(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale evaluating conversations: %w", err)
	}

	recovered := 0
	for _, conv := range stale {
		target := domain.StatusOpen
		if summary, err := s.repos.Summary().Get(ctx, conv.ID); err == nil && summary != nil {
			if status, _, ok := domain.ParseEvaluationFooter(summary.Content); ok {
				target = status.ConversationStatus()
			}
		}

		if _, err := s.repos.Conversation().UpdateStatus(ctx, conv.ID, target); err != nil {
			logger.Base().Warn("failed to recover stale conversation",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
			continue
		}
		recovered++
		logger.Base().Info("recovered stale evaluating conversation",
			zap.String("conversation_id", conv.ID),
			zap.String("status", string(target)),
		)
	}
	return recovered, nil
}

// modelFor resolves the tenant's configured tier to a concrete model name.
func (s *Service) modelFor(cfg *domain.LLMConfig) string {
	if s.llmCfg == nil || cfg == nil {
		return ""
	}
	return s.llmCfg.ModelForTier(string(cfg.Model))
}

func (s *Service) revert(ctx context.Context, conversationID string, prior domain.ConversationStatus) {
	if prior == domain.StatusEvaluating {
		prior = domain.StatusOpen
	}
	if _, err := s.repos.Conversation().UpdateStatus(ctx, conversationID, prior); err != nil {
		logger.Base().Warn("failed to revert conversation status",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (s *Service) acquireTenantLock(ctx context.Context, tenantID string) (func(), bool) {
	if s.redis == nil || !s.redis.Enabled() {
		return func() {}, true
	}

	key := s.redis.GenerateKey(redispkg.EVAL_LOCK, tenantID)
	ok, err := s.redis.SetNX(ctx, key, s.instanceID, tenantLockTTL)
	if err != nil {
		// Redis being down must not stop evaluations; the database writes
		// are safe without the lock, it only avoids duplicate LLM spend.
		logger.Base().Warn("tenant lock unavailable, proceeding", zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() {
		if err := s.redis.DelValue(context.Background(), key); err != nil {
			logger.Base().Debug("failed to release tenant lock", zap.Error(err))
		}
	}, true
}
