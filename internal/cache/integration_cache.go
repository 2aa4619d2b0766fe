// Package cache keeps a read-optimized copy of the integration table in
// memory. Inbound webhook routing hits this cache on every message; the
// database stays the source of truth and the cache re-syncs on an interval
// and on every upsert.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"
)

// DefaultSyncInterval is how often the cache reloads from the database.
const DefaultSyncInterval = 5 * time.Minute

// IntegrationCache indexes integrations by id and by every canonical form of
// their tester MSISDN. Reads return deep copies so callers can never mutate
// cached state.
type IntegrationCache struct {
	mu           sync.RWMutex
	byID         map[string]*domain.Integration
	testerIndex  map[string]string // canonical tester form -> integration id
	syncInterval time.Duration
}

// NewIntegrationCache creates an empty cache.
func NewIntegrationCache() *IntegrationCache {
	return &IntegrationCache{
		byID:         make(map[string]*domain.Integration),
		testerIndex:  make(map[string]string),
		syncInterval: DefaultSyncInterval,
	}
}

// Get returns a copy of the integration by id, or nil when not cached.
func (c *IntegrationCache) Get(id string) *domain.Integration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyOf(c.byID[id])
}

// FindByTester resolves a sender MSISDN to its integration by trying the
// canonical forms in precedence order: +E164, digits, raw. Returns nil on a
// miss.
func (c *IntegrationCache) FindByTester(msisdn string) *domain.Integration {
	forms := TesterForms(msisdn)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, form := range forms {
		if id, ok := c.testerIndex[form]; ok {
			return c.copyOf(c.byID[id])
		}
	}
	return nil
}

// Put inserts or replaces one integration, reindexing its tester forms.
// Called by the upsert path so routing picks up changes without waiting for
// the next sync.
func (c *IntegrationCache) Put(integration *domain.Integration) {
	if integration == nil {
		return
	}
	stored := c.copyOf(integration)

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byID[stored.ID]; ok {
		c.dropTesterForms(old)
	}
	c.byID[stored.ID] = stored
	c.indexTesterForms(stored)
}

// ReplaceAll swaps the cache contents for a fresh database snapshot.
func (c *IntegrationCache) ReplaceAll(integrations []*domain.Integration) {
	byID := make(map[string]*domain.Integration, len(integrations))
	index := make(map[string]string)
	for _, integration := range integrations {
		stored := c.copyOf(integration)
		if stored == nil {
			continue
		}
		byID[stored.ID] = stored
		for _, form := range TesterForms(stored.TesterMSISDN) {
			// First hit wins on ambiguous testers; keep the earlier entry
			// and log so operators can fix the overlap.
			if existing, ok := index[form]; ok && existing != stored.ID {
				logger.Base().Warn("tester msisdn maps to multiple integrations",
					zap.String("form", form),
					zap.String("kept", existing),
					zap.String("ignored", stored.ID),
				)
				continue
			}
			index[form] = stored.ID
		}
	}

	c.mu.Lock()
	c.byID = byID
	c.testerIndex = index
	c.mu.Unlock()
}

// Len returns the number of cached integrations.
func (c *IntegrationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// StartSync loads the cache immediately and then re-syncs on the interval
// until ctx is cancelled.
func (c *IntegrationCache) StartSync(ctx context.Context, repos repository.RepositoryManager) {
	if err := c.syncOnce(ctx, repos); err != nil {
		logger.Base().Warn("initial integration cache sync failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(c.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.syncOnce(ctx, repos); err != nil {
					logger.Base().Warn("integration cache sync failed", zap.Error(err))
				}
			}
		}
	}()
}

func (c *IntegrationCache) syncOnce(ctx context.Context, repos repository.RepositoryManager) error {
	integrations, err := repos.Integration().GetAll(ctx)
	if err != nil {
		return err
	}
	c.ReplaceAll(integrations)
	logger.Base().Debug("integration cache synced", zap.Int("count", len(integrations)))
	return nil
}

// TesterForms returns the lookup forms of an MSISDN in matching precedence
// order: +E164, bare digits, then the raw string as stored.
func TesterForms(msisdn string) []string {
	if msisdn == "" {
		return nil
	}
	forms := make([]string, 0, 3)
	if e164 := phone.ToE164(msisdn); e164 != "" {
		forms = append(forms, e164)
	}
	if digits := phone.ToDigits(msisdn); digits != "" {
		forms = append(forms, digits)
	}
	forms = append(forms, msisdn)
	return dedupe(forms)
}

func dedupe(forms []string) []string {
	seen := make(map[string]struct{}, len(forms))
	out := forms[:0]
	for _, f := range forms {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (c *IntegrationCache) copyOf(integration *domain.Integration) *domain.Integration {
	if integration == nil {
		return nil
	}
	var cp domain.Integration
	if err := copier.Copy(&cp, integration); err != nil {
		logger.Base().Error("failed to copy integration", zap.Error(err))
		return nil
	}
	return &cp
}

func (c *IntegrationCache) indexTesterForms(integration *domain.Integration) {
	for _, form := range TesterForms(integration.TesterMSISDN) {
		c.testerIndex[form] = integration.ID
	}
}

func (c *IntegrationCache) dropTesterForms(integration *domain.Integration) {
	for _, form := range TesterForms(integration.TesterMSISDN) {
		if c.testerIndex[form] == integration.ID {
			delete(c.testerIndex, form)
		}
	}
}
