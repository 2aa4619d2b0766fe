package reply

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/llm"
	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/config"
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
	crypto.SetMasterKey("reply-test-master-key")
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

// stubLLM returns a scripted reply, with an optional hook that runs before
// the response is returned.
type stubLLM struct {
	response   string
	beforeChat func()
}

func (s *stubLLM) Chat(ctx context.Context, apiKey string, req *llm.ChatRequest) (string, error) {
	if s.beforeChat != nil {
		s.beforeChat()
	}
	return s.response, nil
}

func (s *stubLLM) Classify(ctx context.Context, apiKey string, req *llm.ChatRequest) (*domain.Evaluation, error) {
	return nil, fmt.Errorf("not used")
}

// stubWhatsApp records sends.
type stubWhatsApp struct {
	sent      []string
	responses []*provider.SendResponse
	sendErr   error
	lastKey   string
}

func (s *stubWhatsApp) RegisterWebhook(ctx context.Context, apiKey, webhookURL string) error {
	return nil
}

func (s *stubWhatsApp) SendText(ctx context.Context, creds provider.Credentials, to, body string) (*provider.SendResponse, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sent = append(s.sent, body)
	s.lastKey = creds.APIKey
	if len(s.responses) > 0 {
		resp := s.responses[0]
		s.responses = s.responses[1:]
		return resp, nil
	}
	return &provider.SendResponse{Messages: []provider.SentMessage{{ID: "wamid.out"}}}, nil
}

func (s *stubWhatsApp) SendTemplate(ctx context.Context, creds provider.Credentials, to, templateName, languageCode string, components []map[string]interface{}) (*provider.SendResponse, error) {
	return &provider.SendResponse{}, nil
}

func testLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		ModelFast:     "fast-model",
		ModelAccurate: "accurate-model",
		ModelExtended: "extended-model",
	}
}

func seedContinueConversation(t *testing.T, m repository.RepositoryManager) *domain.Conversation {
	t.Helper()
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "acme"})
	require.NoError(t, err)
	integration, err := m.Integration().Upsert(ctx, &domain.UpsertIntegrationRequest{
		TenantID:         tenant.ID,
		Mode:             domain.IntegrationModeSandbox,
		ProviderKeyPlain: "d360-secret-key",
		TesterMSISDN:     "+15550001111",
	})
	require.NoError(t, err)
	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	inserted, err := m.Message().AppendInbound(ctx, &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		ProviderMsgID:  "wamid." + uuid.New().String(),
		Text:           "can we move the demo to Thursday?",
	})
	require.NoError(t, err)
	require.True(t, inserted)

	_, err = m.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusContinue)
	require.NoError(t, err)
	return conv
}

func TestMaybeReplySendsWhenClientSpokeLast(t *testing.T) {
	m := newTestManager(t)
	conv := seedContinueConversation(t, m)

	gateway := &stubLLM{response: "Thursday works, does 2pm suit you?"}
	whatsapp := &stubWhatsApp{}
	svc := New(m, gateway, testLLMConfig(), whatsapp, nil)

	msg, skipped, err := svc.MaybeReply(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.False(t, skipped)
	require.NotNil(t, msg)
	assert.Equal(t, domain.DirectionOut, msg.Direction)
	assert.Equal(t, "wamid.out", msg.ProviderMsgID)
	require.Len(t, whatsapp.sent, 1)
	assert.Equal(t, "Thursday works, does 2pm suit you?", whatsapp.sent[0])
	// The sealed provider key round-trips into plaintext for the send only.
	assert.Equal(t, "d360-secret-key", whatsapp.lastKey)
}

func TestMaybeReplySkipsOutsideContinue(t *testing.T) {
	m := newTestManager(t)
	conv := seedContinueConversation(t, m)
	_, err := m.Conversation().UpdateStatus(context.Background(), conv.ID, domain.StatusScheduleLater)
	require.NoError(t, err)

	whatsapp := &stubWhatsApp{}
	svc := New(m, &stubLLM{response: "hi"}, testLLMConfig(), whatsapp, nil)

	msg, skipped, err := svc.MaybeReply(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Nil(t, msg)
	assert.Empty(t, whatsapp.sent)
}

func TestMaybeReplySkipsWhenAgentSpokeLast(t *testing.T) {
	m := newTestManager(t)
	conv := seedContinueConversation(t, m)

	require.NoError(t, m.Message().AppendOutbound(context.Background(), &domain.Message{
		IntegrationID:  conv.IntegrationID,
		ConversationID: conv.ID,
		WaID:           conv.WaID,
		ProviderMsgID:  "wamid.already",
		Text:           "already answered",
	}))

	whatsapp := &stubWhatsApp{}
	svc := New(m, &stubLLM{response: "hi"}, testLLMConfig(), whatsapp, nil)

	msg, skipped, err := svc.MaybeReply(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Nil(t, msg)
	assert.Empty(t, whatsapp.sent)
}

func TestMaybeReplyAntiLoopRecheck(t *testing.T) {
	m := newTestManager(t)
	conv := seedContinueConversation(t, m)
	whatsapp := &stubWhatsApp{}

	// A concurrent worker answers while the model is generating.
	gateway := &stubLLM{
		response: "late reply",
		beforeChat: func() {
			require.NoError(t, m.Message().AppendOutbound(context.Background(), &domain.Message{
				IntegrationID:  conv.IntegrationID,
				ConversationID: conv.ID,
				WaID:           conv.WaID,
				ProviderMsgID:  "wamid.racer",
				Text:           "someone else replied",
			}))
		},
	}
	svc := New(m, gateway, testLLMConfig(), whatsapp, nil)

	msg, skipped, err := svc.MaybeReply(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Nil(t, msg)
	assert.Empty(t, whatsapp.sent)
}

func TestMaybeReplyFallbackProviderID(t *testing.T) {
	m := newTestManager(t)
	conv := seedContinueConversation(t, m)

	whatsapp := &stubWhatsApp{responses: []*provider.SendResponse{{}}}
	svc := New(m, &stubLLM{response: "reply"}, testLLMConfig(), whatsapp, nil)

	msg, skipped, err := svc.MaybeReply(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.False(t, skipped)
	require.NotNil(t, msg)
	assert.Contains(t, msg.ProviderMsgID, domain.FallbackPrefixAIReply)
}
