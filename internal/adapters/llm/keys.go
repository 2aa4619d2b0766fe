package llm

import (
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"go.uber.org/zap"
)

// TenantKey unseals a tenant's LLM API key. An absent or unopenable key
// returns empty, which makes the client fall back to the service-level key.
// The plaintext never appears in logs.
func TenantKey(cfg *domain.LLMConfig) string {
	if cfg == nil || len(cfg.APIKeySealed) == 0 {
		return ""
	}
	key, err := crypto.Open(cfg.APIKeySealed)
	if err != nil {
		logger.Base().Warn("tenant llm key cannot be opened, using service key",
			zap.String("tenant_id", cfg.TenantID),
			zap.Error(err),
		)
		return ""
	}
	return key
}
