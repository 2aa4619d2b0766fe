package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluationStatusMapping(t *testing.T) {
	assert.Equal(t, StatusContinue, EvalContinue.ConversationStatus())
	assert.Equal(t, StatusScheduleLater, EvalScheduleLater.ConversationStatus())
	assert.Equal(t, StatusClosed, EvalClose.ConversationStatus())
}

func TestDefaultEvaluation(t *testing.T) {
	ev := DefaultEvaluation("")
	assert.Equal(t, EvalContinue, ev.Status)
	assert.Equal(t, 0.5, ev.Confidence)
	assert.Equal(t, SentimentUnknown, ev.ClientSentiment)
	assert.Equal(t, EngagementUnknown, ev.EngagementLevel)
	assert.NotEmpty(t, ev.Reasoning)
}

func TestEvaluationNormalize(t *testing.T) {
	ev := Evaluation{
		Status:          EvaluationStatus("banana"),
		Confidence:      7.5,
		ClientSentiment: "ecstatic",
		EngagementLevel: "stratospheric",
	}.Normalize()

	assert.Equal(t, EvalContinue, ev.Status)
	assert.Equal(t, 0.5, ev.Confidence)
	assert.Equal(t, SentimentUnknown, ev.ClientSentiment)
	assert.Equal(t, EngagementUnknown, ev.EngagementLevel)

	good := Evaluation{
		Status:          EvalClose,
		Confidence:      0.92,
		ClientSentiment: SentimentNegative,
		EngagementLevel: EngagementLow,
	}.Normalize()
	assert.Equal(t, EvalClose, good.Status)
	assert.Equal(t, 0.92, good.Confidence)
}

func TestConversationStatusTerminal(t *testing.T) {
	assert.True(t, StatusClosed.IsTerminal())
	for _, s := range NonTerminalStatuses {
		assert.False(t, s.IsTerminal(), "status %s", s)
	}
}
