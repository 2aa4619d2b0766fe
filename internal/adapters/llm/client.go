// Package llm implements the chat-completions gateway shared by the
// summarizer, evaluator, reply generator and outreach dispatcher. Keys are
// per tenant and supplied on every call, falling back to the service-level
// key when a tenant has none.
package llm

import (
	"context"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// Message roles accepted by ChatRequest.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of model input.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest carries the parameters of one completion call. Model is a
// concrete model name; empty selects the configured fast model.
type ChatRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []ChatMessage
}

// Gateway is the model surface the services depend on.
type Gateway interface {
	// Chat returns the completion text, or an error wrapping ErrLLM.
	Chat(ctx context.Context, apiKey string, req *ChatRequest) (string, error)

	// Classify returns a typed evaluation. Malformed model output degrades
	// to the safe default and surfaces no error; transport failures do.
	Classify(ctx context.Context, apiKey string, req *ChatRequest) (*domain.Evaluation, error)
}

// Client is the OpenAI-backed Gateway implementation.
type Client struct {
	cfg *config.LLMConfig
}

// NewClient creates a new LLM client
func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{cfg: cfg}
}

// Chat performs one plain completion call.
func (c *Client) Chat(ctx context.Context, apiKey string, req *ChatRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	client := c.newSDKClient(apiKey)
	completion, err := client.Chat.Completions.New(callCtx, c.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("chat completion failed (%v): %w", err, domain.ErrLLM)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrLLM)
	}

	logger.Base().Debug("chat completion done",
		zap.String("model", string(completion.Model)),
		zap.Int64("input_tokens", completion.Usage.PromptTokens),
		zap.Int64("output_tokens", completion.Usage.CompletionTokens),
	)
	return completion.Choices[0].Message.Content, nil
}

func (c *Client) buildParams(req *ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.cfg.ModelFast
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toSDKMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (c *Client) newSDKClient(apiKey string) openai.Client {
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}

	// Jobs are abandoned on deadline rather than retried, so the SDK's
	// built-in retry would only stack delays.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

func toSDKMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
