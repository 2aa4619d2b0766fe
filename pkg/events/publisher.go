// Package events publishes conversation lifecycle events to Pub/Sub for
// downstream consumers (analytics, CRM sync). The publisher is optional: a
// nil *Publisher is a silent no-op, so the engine runs unchanged without a
// Pub/Sub project configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types emitted by the engine.
const (
	TypeConversationStatusChanged = "conversation.status_changed"
	TypeMessageSent               = "message.sent"
)

// Event is the JSON payload published per occurrence.
type Event struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	TenantID       string            `json:"tenant_id,omitempty"`
	IntegrationID  string            `json:"integration_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// Publisher wraps one Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisherFromEnv builds a publisher from PUBSUB_PROJECT_ID and
// PUBSUB_TOPIC. Returns nil (no error) when either is unset.
func NewPublisherFromEnv(ctx context.Context) (*Publisher, error) {
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	topicName := os.Getenv("PUBSUB_TOPIC")
	if projectID == "" || topicName == "" {
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  client.Topic(topicName),
	}, nil
}

// Publish sends one event. Safe on a nil publisher. Publish failures are
// logged and swallowed: lifecycle events are best-effort and must never fail
// the job that emitted them.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.topic == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Base().Error("failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": event.Type,
			"tenant_id":  event.TenantID,
		},
	})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			logger.Base().Warn("event publish failed",
				zap.String("type", event.Type),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}()
}

// Close flushes pending publishes and releases the client. Safe on nil.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
