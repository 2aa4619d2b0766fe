package domain

// EvaluationStatus is the classifier's recommended action for a conversation.
type EvaluationStatus string

const (
	// EvalContinue: the client is actively engaged; no periodic outreach.
	EvalContinue EvaluationStatus = "continue"
	// EvalScheduleLater: the client postponed; outreach resumes later.
	EvalScheduleLater EvaluationStatus = "schedule_later"
	// EvalClose: the client is disengaged; stop contacting them.
	EvalClose EvaluationStatus = "close"
)

// Valid reports whether the status is one of the known classifier outputs.
func (s EvaluationStatus) Valid() bool {
	switch s {
	case EvalContinue, EvalScheduleLater, EvalClose:
		return true
	}
	return false
}

// ConversationStatus maps the classifier output onto the conversation
// lifecycle: continue→CONTINUE, schedule_later→SCHEDULE_LATER, close→CLOSED.
func (s EvaluationStatus) ConversationStatus() ConversationStatus {
	switch s {
	case EvalScheduleLater:
		return StatusScheduleLater
	case EvalClose:
		return StatusClosed
	default:
		return StatusContinue
	}
}

// Sentiment of the client's recent responses.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentUnknown  = "unknown"
)

// Engagement level of the client.
const (
	EngagementHigh    = "high"
	EngagementMedium  = "medium"
	EngagementLow     = "low"
	EngagementUnknown = "unknown"
)

// Evaluation is the typed classifier output. This struct is the only contract
// between the model and the engine: no engine code pattern-matches free-form
// model text.
type Evaluation struct {
	Status          EvaluationStatus `json:"status"`
	Confidence      float64          `json:"confidence"`
	Reasoning       string           `json:"reasoning"`
	ClientSentiment string           `json:"client_sentiment"`
	EngagementLevel string           `json:"engagement_level"`
	SuggestedTiming string           `json:"suggested_timing,omitempty"`
}

// DefaultEvaluation is the safe fallback when the classifier fails or returns
// a malformed object: keep the conversation alive with middling confidence.
func DefaultEvaluation(reason string) Evaluation {
	if reason == "" {
		reason = "evaluation failed, defaulting to continue"
	}
	return Evaluation{
		Status:          EvalContinue,
		Confidence:      0.5,
		Reasoning:       reason,
		ClientSentiment: SentimentUnknown,
		EngagementLevel: EngagementUnknown,
	}
}

// Normalize clamps out-of-range fields to the safe default's values so a
// structurally valid but semantically bad object cannot corrupt state.
func (e Evaluation) Normalize() Evaluation {
	if !e.Status.Valid() {
		e.Status = EvalContinue
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		e.Confidence = 0.5
	}
	switch e.ClientSentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		e.ClientSentiment = SentimentUnknown
	}
	switch e.EngagementLevel {
	case EngagementHigh, EngagementMedium, EngagementLow:
	default:
		e.EngagementLevel = EngagementUnknown
	}
	return e
}
