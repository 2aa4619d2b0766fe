package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/cache"
	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	crypto.SetMasterKey("ingress-test-master-key")
	m.Run()
}

func newTestManager(t *testing.T) repository.RepositoryManager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	return repository.NewGormRepositoryManager(db)
}

func seedIntegration(t *testing.T, m repository.RepositoryManager, tenantName, tester string) (*domain.Tenant, *domain.Integration) {
	t.Helper()
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: tenantName})
	require.NoError(t, err)
	integration, err := m.Integration().Upsert(ctx, &domain.UpsertIntegrationRequest{
		TenantID:         tenant.ID,
		Mode:             domain.IntegrationModeSandbox,
		ProviderKeyPlain: "d360-secret-key",
		TesterMSISDN:     tester,
	})
	require.NoError(t, err)
	return tenant, integration
}

// recordingQueue captures enqueued jobs.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []job.Job
}

func (q *recordingQueue) Enqueue(j job.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, j)
	return true
}

func (q *recordingQueue) kinds() []job.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]job.Kind, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Kind)
	}
	return out
}

func nestedPayload(t *testing.T, body string) *WebhookPayload {
	t.Helper()
	var payload WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	return &payload
}

func TestProcessWebhookStoresAndEnqueues(t *testing.T) {
	m := newTestManager(t)
	_, integration := seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	payload := nestedPayload(t, `{
		"entry": [{"id": "acc", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [{"from": "15550001111", "id": "wamid.001", "type": "text", "timestamp": "1700000000", "text": {"body": "hi there"}}]
		}}]}]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 0, result.Dropped)

	conv, err := m.Conversation().LatestByWaID(context.Background(), integration.ID, "+15550001111")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, domain.StartedByContact, conv.StartedBy)

	messages, err := m.Message().ListByConversation(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.DirectionIn, messages[0].Direction)
	assert.Equal(t, "hi there", messages[0].Text)
	assert.Equal(t, "wamid.001", messages[0].ProviderMsgID)

	require.Len(t, queue.kinds(), 1)
	assert.Equal(t, job.KindEvaluateTenant, queue.kinds()[0])
}

func TestProcessWebhookSuppressesRedelivery(t *testing.T) {
	m := newTestManager(t)
	seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	body := `{
		"messages": [{"from": "+1 (555) 000-1111", "id": "wamid.dup", "type": "text", "timestamp": "1700000000", "text": {"body": "hello"}}]
	}`

	first := svc.ProcessWebhook(context.Background(), nestedPayload(t, body))
	assert.Equal(t, 1, first.Stored)

	second := svc.ProcessWebhook(context.Background(), nestedPayload(t, body))
	assert.Equal(t, 0, second.Stored)
	assert.Equal(t, 1, second.Duplicates)

	// Only the first delivery triggers an evaluation.
	assert.Len(t, queue.kinds(), 1)
}

func TestProcessWebhookDropsUnknownSender(t *testing.T) {
	m := newTestManager(t)
	seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	payload := nestedPayload(t, `{
		"messages": [{"from": "19998887777", "id": "wamid.x", "type": "text", "timestamp": "1700000000", "text": {"body": "who dis"}}]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 1, result.Dropped)
	assert.Empty(t, queue.kinds())
}

func TestProcessWebhookFabricatesMissingProviderID(t *testing.T) {
	m := newTestManager(t)
	_, integration := seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	payload := nestedPayload(t, `{
		"messages": [{"from": "15550001111", "type": "text", "timestamp": "1700000123", "text": {"body": "no id"}}]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 1, result.Stored)

	conv, err := m.Conversation().LatestByWaID(context.Background(), integration.ID, "+15550001111")
	require.NoError(t, err)
	messages, err := m.Message().ListByConversation(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "in_15550001111_1700000123", messages[0].ProviderMsgID)
}

func TestProcessWebhookStoresMediaPlaceholder(t *testing.T) {
	m := newTestManager(t)
	_, integration := seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	payload := nestedPayload(t, `{
		"messages": [{"from": "15550001111", "id": "wamid.img", "type": "image", "timestamp": "1700000000", "image": {"id": "media-123", "caption": "roof sketch"}}]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 1, result.Stored)

	conv, err := m.Conversation().LatestByWaID(context.Background(), integration.ID, "+15550001111")
	require.NoError(t, err)
	messages, err := m.Message().ListByConversation(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.KindImage, messages[0].Kind)
	assert.Equal(t, "[Image: media-123]", messages[0].Text)
	assert.NotNil(t, messages[0].Payload["image"])
}

func TestProcessWebhookRoutesThroughCache(t *testing.T) {
	m := newTestManager(t)
	_, integration := seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}

	integrations := cache.NewIntegrationCache()
	integrations.ReplaceAll([]*domain.Integration{integration})
	svc := New(m, integrations, queue, nil)

	payload := nestedPayload(t, `{
		"messages": [{"from": "15550001111", "id": "wamid.c1", "type": "text", "timestamp": "1700000000", "text": {"body": "via cache"}}]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 1, result.Stored)
}

func TestProcessWebhookOneEvaluationPerTenant(t *testing.T) {
	m := newTestManager(t)
	seedIntegration(t, m, "acme", "+15550001111")
	queue := &recordingQueue{}
	svc := New(m, nil, queue, nil)

	payload := nestedPayload(t, `{
		"messages": [
			{"from": "15550001111", "id": "wamid.a", "type": "text", "timestamp": "1700000000", "text": {"body": "first"}},
			{"from": "15550001111", "id": "wamid.b", "type": "text", "timestamp": "1700000001", "text": {"body": "second"}}
		]
	}`)

	result := svc.ProcessWebhook(context.Background(), payload)
	assert.Equal(t, 2, result.Stored)
	assert.Len(t, queue.kinds(), 1)
}
