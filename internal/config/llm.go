package config

import (
	"fmt"
	"time"
)

// Default model assignments per tier. Overridable per deployment so model
// deprecations do not require a release.
const (
	DefaultModelFast     = "gpt-4o-mini"
	DefaultModelAccurate = "gpt-4o"
	DefaultModelExtended = "gpt-4o"
)

// LLMConfig configures the chat-completions client shared by the
// summarizer, evaluator, reply generator and outreach dispatcher.
type LLMConfig struct {
	// BaseURL overrides the OpenAI API root, for proxies and compatible
	// providers. Empty uses the client default.
	BaseURL string `json:"base_url"`

	// APIKey is the service-level key used when a tenant has no key of its
	// own configured.
	APIKey string `json:"-"`

	ModelFast     string `json:"model_fast"`
	ModelAccurate string `json:"model_accurate"`
	ModelExtended string `json:"model_extended"`

	DefaultTemperature float64 `json:"default_temperature"`
	DefaultMaxTokens   int     `json:"default_max_tokens"`

	// RequestTimeout bounds every completion call.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// LoadLLMConfigFromEnv builds the LLM client configuration.
func LoadLLMConfigFromEnv() *LLMConfig {
	return &LLMConfig{
		BaseURL:            getEnvOrDefault("LLM_BASE_URL", ""),
		APIKey:             getEnvOrDefault("LLM_API_KEY", getEnvOrDefault("OPENAI_API_KEY", "")),
		ModelFast:          getEnvOrDefault("LLM_MODEL_FAST", DefaultModelFast),
		ModelAccurate:      getEnvOrDefault("LLM_MODEL_ACCURATE", DefaultModelAccurate),
		ModelExtended:      getEnvOrDefault("LLM_MODEL_EXTENDED", DefaultModelExtended),
		DefaultTemperature: getEnvAsFloatOrDefault("LLM_DEFAULT_TEMPERATURE", 0.7),
		DefaultMaxTokens:   getEnvAsIntOrDefault("LLM_DEFAULT_MAX_TOKENS", 500),
		RequestTimeout:     time.Duration(getEnvAsIntOrDefault("LLM_REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// ModelForTier resolves a tenant model tier to a concrete model name.
// Unknown tiers fall back to the fast model.
func (c *LLMConfig) ModelForTier(tier string) string {
	switch tier {
	case "accurate":
		return c.ModelAccurate
	case "extended":
		return c.ModelExtended
	case "fast", "":
		return c.ModelFast
	default:
		return c.ModelFast
	}
}

// Validate rejects LLM configurations that cannot work.
func (c *LLMConfig) Validate() error {
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 2 {
		return fmt.Errorf("LLM_DEFAULT_TEMPERATURE must be within [0, 2], got %f", c.DefaultTemperature)
	}
	if c.DefaultMaxTokens <= 0 {
		return fmt.Errorf("LLM_DEFAULT_MAX_TOKENS must be positive, got %d", c.DefaultMaxTokens)
	}
	return nil
}
