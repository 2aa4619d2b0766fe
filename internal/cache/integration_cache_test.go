package cache

import (
	"testing"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByTesterMatchesAllForms(t *testing.T) {
	c := NewIntegrationCache()
	c.Put(&domain.Integration{ID: "int-1", TenantID: "t1", TesterMSISDN: "+923001234567"})

	for _, form := range []string{"+923001234567", "923001234567", "92 300 1234567"} {
		got := c.FindByTester(form)
		require.NotNil(t, got, "form %q", form)
		assert.Equal(t, "int-1", got.ID)
	}

	assert.Nil(t, c.FindByTester("+15550000000"))
}

func TestFindByTesterDigitsOnlyStored(t *testing.T) {
	// Integration stored without the plus still routes a +-prefixed sender.
	c := NewIntegrationCache()
	c.Put(&domain.Integration{ID: "int-2", TenantID: "t1", TesterMSISDN: "923001234567"})

	got := c.FindByTester("+923001234567")
	require.NotNil(t, got)
	assert.Equal(t, "int-2", got.ID)
}

func TestReadsAreCopies(t *testing.T) {
	c := NewIntegrationCache()
	c.Put(&domain.Integration{ID: "int-3", TesterMSISDN: "+15551234", ClientContext: "original"})

	got := c.Get("int-3")
	require.NotNil(t, got)
	got.ClientContext = "mutated"

	again := c.Get("int-3")
	assert.Equal(t, "original", again.ClientContext)
}

func TestPutReindexesChangedTester(t *testing.T) {
	c := NewIntegrationCache()
	c.Put(&domain.Integration{ID: "int-4", TesterMSISDN: "+15550001111"})
	c.Put(&domain.Integration{ID: "int-4", TesterMSISDN: "+15550002222"})

	assert.Nil(t, c.FindByTester("+15550001111"))
	require.NotNil(t, c.FindByTester("+15550002222"))
}

func TestReplaceAllKeepsFirstOnAmbiguousTester(t *testing.T) {
	c := NewIntegrationCache()
	c.ReplaceAll([]*domain.Integration{
		{ID: "first", TesterMSISDN: "+923001234567"},
		{ID: "second", TesterMSISDN: "923001234567"},
	})

	got := c.FindByTester("+923001234567")
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ID)
	assert.Equal(t, 2, c.Len())
}
