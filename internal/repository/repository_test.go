package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) RepositoryManager {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	return NewGormRepositoryManager(db)
}

func seedIntegration(t *testing.T, m RepositoryManager, tester string) (*domain.Tenant, *domain.Integration) {
	return seedIntegrationWithTenant(t, m, "acme", tester)
}

func TestMain(m *testing.M) {
	crypto.SetMasterKey("repository-test-master-key")
	m.Run()
}

func TestOpenOrCreateConversation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")

	conv, created, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.StatusOpen, conv.Status)
	assert.Equal(t, domain.StartedByContact, conv.StartedBy)

	again, created, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByAdmin)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)

	// Once the live conversation is closed, a new one is opened.
	updated, err := m.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusClosed)
	require.NoError(t, err)
	assert.True(t, updated)

	fresh, created, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestUpdateStatusRefusesLeavingClosed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")

	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	updated, err := m.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusClosed)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = m.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusOpen)
	require.NoError(t, err)
	assert.False(t, updated, "closed conversations must stay closed")

	got, err := m.Conversation().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Conversation().UpdateStatus(ctx, "whatever", domain.ConversationStatus("paused"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestAppendInboundDeduplicates(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")
	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	msg := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           "+15550001111",
		ProviderMsgID:  "wamid.abc123",
		Text:           "hello",
	}
	inserted, err := m.Message().AppendInbound(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           "+15550001111",
		ProviderMsgID:  "wamid.abc123",
		Text:           "hello again",
	}
	inserted, err = m.Message().AppendInbound(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := m.Message().CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The same provider id under another integration is a different message.
	_, other := seedIntegrationWithTenant(t, m, "other", "+15550002222")
	otherConv, _, err := m.Conversation().OpenOrCreate(ctx, other.ID, "+15550002222", domain.StartedByContact)
	require.NoError(t, err)
	inserted, err = m.Message().AppendInbound(ctx, &domain.Message{
		IntegrationID:  other.ID,
		ConversationID: otherConv.ID,
		WaID:           "+15550002222",
		ProviderMsgID:  "wamid.abc123",
		Text:           "hello",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func seedIntegrationWithTenant(t *testing.T, m RepositoryManager, name, tester string) (*domain.Tenant, *domain.Integration) {
	t.Helper()
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: name})
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

func TestAppendAdvancesLastMsgAt(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")
	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	before := conv.LastMsgAt
	time.Sleep(5 * time.Millisecond)

	_, err = m.Message().AppendInbound(ctx, &domain.Message{
		IntegrationID:  integration.ID,
		ConversationID: conv.ID,
		WaID:           "+15550001111",
		ProviderMsgID:  "wamid.t1",
		Text:           "ping",
	})
	require.NoError(t, err)

	got, err := m.Conversation().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.LastMsgAt.After(before), "last_msg_at should advance on append")
	assert.False(t, got.LastMsgAt.Before(got.StartedAt))
}

func TestMessageTailAndLatest(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")
	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		direction := domain.DirectionIn
		if i%2 == 1 {
			direction = domain.DirectionOut
		}
		msg := &domain.Message{
			IntegrationID:  integration.ID,
			ConversationID: conv.ID,
			WaID:           "+15550001111",
			ProviderMsgID:  fmt.Sprintf("wamid.%03d", i),
			Text:           fmt.Sprintf("msg %d", i),
		}
		var err error
		if direction == domain.DirectionIn {
			_, err = m.Message().AppendInbound(ctx, msg)
		} else {
			err = m.Message().AppendOutbound(ctx, msg)
		}
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	tail, err := m.Message().RecentTail(ctx, conv.ID, 5)
	require.NoError(t, err)
	require.Len(t, tail, 5)
	assert.Equal(t, "msg 2", tail[0].Text)
	assert.Equal(t, "msg 6", tail[4].Text)

	latest, err := m.Message().Latest(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "msg 6", latest.Text)
	assert.Equal(t, domain.DirectionIn, latest.Direction)

	latestIn, err := m.Message().LatestInbound(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "msg 6", latestIn.Text)

	all, err := m.Message().ListByConversation(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func TestIntegrationUpsertSealsProviderKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "acme"})
	require.NoError(t, err)

	req := &domain.UpsertIntegrationRequest{
		TenantID:         tenant.ID,
		Mode:             domain.IntegrationModeSandbox,
		ProviderKeyPlain: "super-secret-key",
		TesterMSISDN:     "+15550001111",
	}
	integration, err := m.Integration().Upsert(ctx, req)
	require.NoError(t, err)

	assert.Empty(t, req.ProviderKeyPlain, "plaintext must be scrubbed from the request")
	require.NotEmpty(t, integration.ProviderKeySealed)
	assert.NotContains(t, string(integration.ProviderKeySealed), "super-secret-key")

	plain, err := crypto.Open(integration.ProviderKeySealed)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-key", plain)

	// Upserting without a key keeps the stored one and updates the rest.
	updated, err := m.Integration().Upsert(ctx, &domain.UpsertIntegrationRequest{
		TenantID:      tenant.ID,
		Mode:          domain.IntegrationModeSandbox,
		TesterMSISDN:  "+15550002222",
		ClientContext: "ACME procurement team",
	})
	require.NoError(t, err)
	assert.Equal(t, integration.ID, updated.ID)
	assert.Equal(t, "+15550002222", updated.TesterMSISDN)
	assert.Equal(t, "ACME procurement team", updated.ClientContext)

	plain, err = crypto.Open(updated.ProviderKeySealed)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-key", plain)
}

func TestFindByTesterForms(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+852 9123 4567")

	assert.Equal(t, "+85291234567", integration.TesterMSISDN, "tester is stored canonically")

	found, err := m.Integration().FindByTesterForms(ctx, []string{"85291234567", "+85291234567"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, integration.ID, found.ID)

	missing, err := m.Integration().FindByTesterForms(ctx, []string{"+10000000000"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindByTesterFormsHonorsPrecedence(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	m := NewGormRepositoryManager(db)
	ctx := context.Background()

	tenantA, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "canonical co"})
	require.NoError(t, err)
	tenantB, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "digits co"})
	require.NoError(t, err)

	// Rows written before tester canonicalization can carry the bare-digits
	// form; seed both shapes directly so the lookup has to choose.
	canonical := &domain.Integration{
		ID:           uuid.New().String(),
		TenantID:     tenantA.ID,
		Mode:         domain.IntegrationModeSandbox,
		TesterMSISDN: "+85291234567",
	}
	require.NoError(t, db.Create(canonical).Error)
	time.Sleep(5 * time.Millisecond)
	digits := &domain.Integration{
		ID:           uuid.New().String(),
		TenantID:     tenantB.ID,
		Mode:         domain.IntegrationModeSandbox,
		TesterMSISDN: "85291234567",
	}
	require.NoError(t, db.Create(digits).Error)

	// The digits row is newer, but the +E164 form outranks it.
	found, err := m.Integration().FindByTesterForms(ctx, []string{"+85291234567", "85291234567", "+852 9123 4567"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, canonical.ID, found.ID)

	// Without an E164 hit the digits form wins.
	found, err = m.Integration().FindByTesterForms(ctx, []string{"+99912345678", "85291234567"})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, digits.ID, found.ID)
}

func TestLatestOutreachCandidateSkipsContinue(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")

	engaged, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)
	_, err = m.Conversation().UpdateStatus(ctx, engaged.ID, domain.StatusContinue)
	require.NoError(t, err)

	candidate, err := m.Conversation().LatestOutreachCandidate(ctx, integration.ID)
	require.NoError(t, err)
	assert.Nil(t, candidate, "engaged conversations are not nudged")

	idle, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550002222", domain.StartedByAdmin)
	require.NoError(t, err)

	candidate, err = m.Conversation().LatestOutreachCandidate(ctx, integration.ID)
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, idle.ID, candidate.ID)
}

func TestListStaleEvaluating(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")

	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)
	_, err = m.Conversation().UpdateStatus(ctx, conv.ID, domain.StatusEvaluating)
	require.NoError(t, err)

	stale, err := m.Conversation().ListStaleEvaluating(ctx, time.Now().UTC().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale, "a just-updated row is not stale")

	stale, err = m.Conversation().ListStaleEvaluating(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, conv.ID, stale[0].ID)
}

func TestScheduleMarkSentConditionalAdvance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "acme"})
	require.NoError(t, err)
	_, err = m.Schedule().Upsert(ctx, &domain.UpsertScheduleRequest{
		TenantID:  tenant.ID,
		Frequency: domain.FrequencyDaily,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	won, err := m.Schedule().MarkSent(ctx, tenant.ID, nil, now)
	require.NoError(t, err)
	assert.True(t, won)

	// A racer holding the same prior view loses.
	won, err = m.Schedule().MarkSent(ctx, tenant.ID, nil, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := m.Schedule().GetByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSent)

	won, err = m.Schedule().MarkSent(ctx, tenant.ID, stored.LastSent, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, won)
}

func TestDueSchedules(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "acme"})
	require.NoError(t, err)
	_, err = m.Schedule().Upsert(ctx, &domain.UpsertScheduleRequest{
		TenantID:  tenant.ID,
		Frequency: domain.FrequencyDaily,
	})
	require.NoError(t, err)

	other, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "disabled co"})
	require.NoError(t, err)
	_, err = m.Schedule().Upsert(ctx, &domain.UpsertScheduleRequest{
		TenantID:  other.ID,
		Frequency: domain.FrequencyDisabled,
	})
	require.NoError(t, err)

	due, err := m.Schedule().DueSchedules(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1, "never-sent active schedule is due; disabled one is not")
	assert.Equal(t, tenant.ID, due[0].TenantID)

	won, err := m.Schedule().MarkSent(ctx, tenant.ID, nil, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, won)

	due, err = m.Schedule().DueSchedules(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due, "freshly sent daily schedule is not due again")
}

func TestSummaryUpsert(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	_, integration := seedIntegration(t, m, "+15550001111")
	conv, _, err := m.Conversation().OpenOrCreate(ctx, integration.ID, "+15550001111", domain.StartedByContact)
	require.NoError(t, err)

	require.NoError(t, m.Summary().Upsert(ctx, &domain.Summary{
		ConversationID:     conv.ID,
		Content:            "Client asked about pricing.",
		MsgCountAtSnapshot: 4,
	}))

	got, err := m.Summary().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.MsgCountAtSnapshot)

	require.NoError(t, m.Summary().Upsert(ctx, &domain.Summary{
		ConversationID:     conv.ID,
		Content:            "Client asked about pricing. Demo booked.\n\nStatus: continue\nConfidence: 0.80",
		MsgCountAtSnapshot: 9,
	}))

	got, err = m.Summary().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.MsgCountAtSnapshot)
	assert.Contains(t, got.Content, "Demo booked")
}

func TestLLMConfigUpsertSealsKey(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tenant, err := m.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "acme"})
	require.NoError(t, err)

	req := &domain.UpsertLLMConfigRequest{
		TenantID:    tenant.ID,
		APIKeyPlain: "sk-test-abc",
		Model:       domain.ModelTierFast,
		Temperature: 0.7,
		MaxTokens:   500,
	}
	cfg, err := m.Tenant().UpsertLLMConfig(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, req.APIKeyPlain)

	plain, err := crypto.Open(cfg.APIKeySealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-abc", plain)

	_, err = m.Tenant().UpsertLLMConfig(ctx, &domain.UpsertLLMConfigRequest{
		TenantID:    tenant.ID,
		Model:       domain.ModelTierFast,
		Temperature: 1.5,
		MaxTokens:   500,
	})
	require.Error(t, err, "temperature above 1 is rejected")
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestWithTxRollsBack(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.WithTx(ctx, func(ctx context.Context, repos RepositoryManager) error {
		if _, err := repos.Tenant().Create(ctx, &domain.CreateTenantRequest{Name: "ghost"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	tenants, err := m.Tenant().GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
