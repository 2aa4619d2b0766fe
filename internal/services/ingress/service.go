// Package ingress routes inbound provider webhooks: parse the event, find
// the owning integration, open or reuse the conversation, store the message
// at most once and hand the tenant to the evaluator queue. Failures are
// isolated per message; the webhook endpoint always acknowledges.
package ingress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/cache"
	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	redispkg "github.com/ClareAI/astra-sales-agent/pkg/redis"
	"go.uber.org/zap"
)

// dedupWindow is the fast-path duplicate suppression TTL. The database
// unique key remains the authority; this only saves round trips on provider
// redeliveries in quick succession.
const dedupWindow = 30 * time.Second

// Result summarizes one processed webhook body.
type Result struct {
	Received   int `json:"received"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
}

// Service processes provider webhook events.
type Service struct {
	repos        repository.RepositoryManager
	integrations *cache.IntegrationCache
	queue        job.Queue
	redis        *redispkg.RedisService
}

// New creates an ingress service. The integration cache and redis are
// optional; without them every lookup goes to the database.
func New(repos repository.RepositoryManager, integrations *cache.IntegrationCache, queue job.Queue, redis *redispkg.RedisService) *Service {
	return &Service{
		repos:        repos,
		integrations: integrations,
		queue:        queue,
		redis:        redis,
	}
}

// ProcessWebhook handles one provider event body. It never fails the caller:
// per-message errors are logged, counted and swallowed so the endpoint can
// acknowledge and suppress provider retries.
func (s *Service) ProcessWebhook(ctx context.Context, payload *WebhookPayload) Result {
	var result Result

	messages := payload.AllMessages()
	result.Received = len(messages)
	if len(messages) == 0 {
		return result
	}

	evaluate := make(map[string]struct{})
	for _, msg := range messages {
		tenantID, stored, err := s.processMessage(ctx, msg)
		switch {
		case err != nil:
			result.Dropped++
			logger.Base().Warn("inbound message dropped",
				zap.String("from", msg.From),
				zap.String("provider_msg_id", msg.ID),
				zap.Error(err),
			)
		case stored:
			result.Stored++
			evaluate[tenantID] = struct{}{}
		default:
			result.Duplicates++
		}
	}

	for tenantID := range evaluate {
		s.queue.Enqueue(job.Job{Kind: job.KindEvaluateTenant, TenantID: tenantID})
	}
	return result
}

// processMessage stores one inbound message. Returns the owning tenant id
// and whether a new row was written.
func (s *Service) processMessage(ctx context.Context, msg *InboundMessage) (string, bool, error) {
	from := phone.ToE164(msg.From)
	if from == "" {
		return "", false, fmt.Errorf("sender %q has no digits: %w", msg.From, domain.ErrRoutingMiss)
	}

	integration, err := s.resolveIntegration(ctx, from)
	if err != nil {
		return "", false, err
	}

	conv, created, err := s.repos.Conversation().OpenOrCreate(ctx, integration.ID, from, domain.StartedByContact)
	if err != nil {
		return "", false, fmt.Errorf("failed to open conversation: %w", err)
	}
	if created {
		logger.Base().Info("conversation opened",
			zap.String("conversation_id", conv.ID),
			zap.String("integration_id", integration.ID),
			zap.String("wa_id", from),
		)
	}

	providerMsgID := msg.ID
	if providerMsgID == "" {
		providerMsgID = fmt.Sprintf("in_%s_%s", phone.ToDigits(from), msg.Timestamp)
	}

	if s.isFastPathDuplicate(ctx, integration.ID, providerMsgID) {
		return integration.TenantID, false, nil
	}

	kind, text := msg.Content()
	record := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           from,
		ProviderMsgID:  providerMsgID,
		Kind:           kind,
		Text:           text,
		Payload:        msg.Raw,
	}
	isNew, err := s.repos.Message().AppendInbound(ctx, record)
	if err != nil {
		return "", false, fmt.Errorf("failed to store inbound message: %w", err)
	}
	if !isNew {
		logger.Base().Debug("duplicate inbound message suppressed",
			zap.String("integration_id", integration.ID),
			zap.String("provider_msg_id", providerMsgID),
		)
		return integration.TenantID, false, nil
	}

	return integration.TenantID, true, nil
}

// resolveIntegration maps a canonical sender to its integration, cache
// first, database on a miss.
func (s *Service) resolveIntegration(ctx context.Context, from string) (*domain.Integration, error) {
	if s.integrations != nil {
		if integration := s.integrations.FindByTester(from); integration != nil {
			return integration, nil
		}
	}

	integration, err := s.repos.Integration().FindByTesterForms(ctx, cache.TesterForms(from))
	if err != nil {
		return nil, fmt.Errorf("failed to look up integration: %w", err)
	}
	if integration == nil {
		return nil, fmt.Errorf("sender %s: %w", from, domain.ErrRoutingMiss)
	}

	if s.integrations != nil {
		s.integrations.Put(integration)
	}
	return integration, nil
}

func (s *Service) isFastPathDuplicate(ctx context.Context, integrationID, providerMsgID string) bool {
	if s.redis == nil || !s.redis.Enabled() || providerMsgID == "" {
		return false
	}

	key := s.redis.GenerateKey(redispkg.INBOUND_DEDUP, integrationID+":"+providerMsgID)
	fresh, err := s.redis.SetNX(ctx, key, "1", dedupWindow)
	if err != nil {
		// Redis trouble never blocks ingestion; the unique index decides.
		return false
	}
	return !fresh
}

// titleKind renders a message kind for the bracketed placeholder text, e.g.
// "image" -> "Image".
func titleKind(kind domain.MessageKind) string {
	s := string(kind)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
