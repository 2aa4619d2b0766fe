package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/openai/openai-go/v3"
	"go.uber.org/zap"
)

// evaluationSchema constrains the classifier output to the evaluation shape.
// Strict structured output keeps hallucinated fields out; anything that still
// slips through is normalized on the way in.
var evaluationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status": map[string]any{
			"type": "string",
			"enum": []string{"continue", "schedule_later", "close"},
		},
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
		"reasoning": map[string]any{"type": "string"},
		"client_sentiment": map[string]any{
			"type": "string",
			"enum": []string{"positive", "neutral", "negative", "unknown"},
		},
		"engagement_level": map[string]any{
			"type": "string",
			"enum": []string{"high", "medium", "low", "unknown"},
		},
		"suggested_timing": map[string]any{"type": "string"},
	},
	"required": []string{
		"status", "confidence", "reasoning",
		"client_sentiment", "engagement_level", "suggested_timing",
	},
	"additionalProperties": false,
}

// Classify runs the conversation classifier with structured output. Call
// failures and malformed model output degrade to the safe default evaluation
// without surfacing an error; only a dead context (deadline or cancellation)
// returns one, so an aborted job can roll the conversation back instead of
// recording a default verdict it never reached.
func (c *Client) Classify(ctx context.Context, apiKey string, req *ChatRequest) (*domain.Evaluation, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	params := c.buildParams(req)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "conversation_evaluation",
				Schema: any(evaluationSchema),
				Strict: openai.Bool(true),
			},
		},
	}

	client := c.newSDKClient(apiKey)
	completion, err := client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("classification call aborted (%v): %w", err, domain.ErrLLM)
		}
		logger.Base().Warn("classifier call failed, using safe default", zap.Error(err))
		fallback := domain.DefaultEvaluation("evaluation failed: model call error")
		return &fallback, nil
	}
	if len(completion.Choices) == 0 {
		logger.Base().Warn("classifier returned no choices, using safe default")
		fallback := domain.DefaultEvaluation("evaluation failed: empty model response")
		return &fallback, nil
	}

	content := completion.Choices[0].Message.Content
	var evaluation domain.Evaluation
	if err := json.Unmarshal([]byte(content), &evaluation); err != nil {
		logger.Base().Warn("classifier returned unparseable output, using safe default",
			zap.Int("content_bytes", len(content)),
		)
		fallback := domain.DefaultEvaluation("evaluation failed: unparseable model output")
		return &fallback, nil
	}

	normalized := evaluation.Normalize()
	return &normalized, nil
}
