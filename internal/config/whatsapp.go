package config

import "fmt"

// DefaultWhatsAppBaseURL is the 360dialog sandbox endpoint. Production
// deployments override it via WHATSAPP_BASE_URL.
const DefaultWhatsAppBaseURL = "https://waba-sandbox.360dialog.io"

// WhatsAppConfig configures the 360dialog provider client.
type WhatsAppConfig struct {
	// BaseURL is the provider API root, without a trailing slash.
	BaseURL string `json:"base_url"`

	// WebhookPublicURL is the externally reachable URL of our inbound
	// webhook, registered with the provider during sandbox connect. Empty
	// means webhook registration is refused.
	WebhookPublicURL string `json:"webhook_public_url"`

	// SendRatePerSecond caps outbound sends per integration. Zero disables
	// the limiter.
	SendRatePerSecond float64 `json:"send_rate_per_second"`
	SendBurst         int     `json:"send_burst"`
}

// LoadWhatsAppConfigFromEnv builds the provider client configuration.
func LoadWhatsAppConfigFromEnv() *WhatsAppConfig {
	return &WhatsAppConfig{
		BaseURL:           getEnvOrDefault("WHATSAPP_BASE_URL", DefaultWhatsAppBaseURL),
		WebhookPublicURL:  getEnvOrDefault("WEBHOOK_PUBLIC_URL", ""),
		SendRatePerSecond: getEnvAsFloatOrDefault("SEND_RATE_PER_SECOND", 0),
		SendBurst:         getEnvAsIntOrDefault("SEND_BURST", 1),
	}
}

// Validate rejects provider configurations that cannot work.
func (c *WhatsAppConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("WHATSAPP_BASE_URL must not be empty")
	}
	if c.SendRatePerSecond < 0 {
		return fmt.Errorf("SEND_RATE_PER_SECOND must not be negative, got %f", c.SendRatePerSecond)
	}
	return nil
}
