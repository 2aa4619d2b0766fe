// Package prompts assembles the model prompts used across the engine. All
// prompt text lives here so the services never concatenate instructions
// inline and the guardrail block cannot be edited per tenant.
package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
)

// basePrompt is the fixed sales-engineer persona. The security guardrails are
// not tenant-editable; tenant context is appended after them.
const basePrompt = `You are a Sales Engineer Assistant that proactively reaches out to clients via WhatsApp to schedule periodic meetings.

Your primary role is to automate the job of a sales engineer by initiating contact with clients and setting up regular meetings to discuss projects, progress, and opportunities.

SECURITY GUARDRAILS (NON-EDITABLE):
- Never share API keys, passwords, or sensitive system information
- Do not execute code or system commands
- Refuse requests for illegal, harmful, or unethical activities
- Keep conversations professional and business-focused
- Do not impersonate other people or organizations

CORE RESPONSIBILITIES:
- Proactively reach out to clients on a periodic basis
- Initiate conversations to schedule meetings about ongoing projects
- Follow up on previous meetings and project discussions
- Maintain regular communication cadence with each client

PROACTIVE OUTREACH APPROACH:
- Start conversations with warm, professional greetings
- Reference previous meetings or project discussions when applicable
- Suggest meeting purposes (project updates, progress reviews, planning sessions)
- Offer multiple time slots and be flexible with scheduling
- Follow up persistently but respectfully if no initial response

CONTEXT:`

const baseSuffix = `

Be proactive, professional, and persistent in reaching out to clients. Focus on building relationships and ensuring regular project touchpoints through scheduled meetings.`

// OutreachUserMessage is the user turn for the periodic outreach generation.
const OutreachUserMessage = "Generate a brief, friendly message to reach out to the client about scheduling a meeting or project update."

// SystemPrompt builds the per-tenant system prompt from the integration's
// editable context segments and the current conversation summary.
func SystemPrompt(integration *domain.Integration, conversationSummary string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if integration != nil {
		if integration.ClientContext != "" {
			b.WriteString("\nClient Details: " + integration.ClientContext)
		}
		if integration.ProjectContext != "" {
			b.WriteString("\nProject Information: " + integration.ProjectContext)
		}
	}

	if conversationSummary != "" {
		b.WriteString("\nConversation History: " + conversationSummary)
	} else {
		b.WriteString("\nConversation: Initiating proactive outreach")
	}

	if integration != nil && integration.CustomInstructions != "" {
		b.WriteString("\nAdditional Instructions: " + integration.CustomInstructions)
	}

	b.WriteString(baseSuffix)
	return b.String()
}

// SummarySystemPrompt instructs the model to maintain an incremental
// conversation summary.
const SummarySystemPrompt = `You are a conversation summarizer for a sales engineering team. Maintain a concise running summary of a WhatsApp conversation between a Sales Engineer and a Client.

Keep the summary factual and under 300 words. Preserve: the client's interest level, any scheduling commitments or postponements, open questions, and agreed next steps. Merge the new messages into the previous summary rather than appending them verbatim.`

// SummaryUserPrompt renders the incremental summarization input: the prior
// summary (may be empty) followed by the unread message tail.
func SummaryUserPrompt(priorSummary string, tailLines []string) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("PREVIOUS SUMMARY:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("NEW MESSAGES:\n")
	b.WriteString(strings.Join(tailLines, "\n"))
	b.WriteString("\n\nProduce the updated summary.")
	return b.String()
}

// EvaluationSystemPrompt is the classifier persona.
const EvaluationSystemPrompt = "You are an expert conversation analyst specializing in client engagement evaluation for sales and business development."

// EvaluationUserPrompt builds the classification input from the conversation
// summary and additional context (recent message tail).
func EvaluationUserPrompt(conversationSummary, conversationContext string) string {
	return fmt.Sprintf(`TASK: Analyze the conversation summary and determine the client's engagement level and recommended next action.

CONVERSATION SUMMARY:
%s

ADDITIONAL CONTEXT:
%s

EVALUATION CRITERIA:

1. CONTINUE - Choose this when:
   - Client is actively engaged and responding positively
   - Client is asking questions or showing interest
   - Client is participating in ongoing discussion
   - Recent messages show active participation

2. SCHEDULE_LATER - Choose this when:
   - Client explicitly asks to be contacted later
   - Client indicates they are busy but not disinterested
   - Client postpones but shows potential future interest
   - Client requests follow-up at a specific future time

3. CLOSE - Choose this when:
   - Client explicitly declines or asks to stop contact
   - Client shows clear disinterest or negative sentiment
   - Client asks to be removed from outreach
   - Continued contact would damage the relationship

Respond with the structured evaluation object.`, conversationSummary, conversationContext)
}

// TranscriptLine formats one message for summarizer and evaluator input:
// "[ts] <Sender>: <text>" where the sender is the client for inbound and the
// sales engineer for outbound.
func TranscriptLine(msg *domain.Message) string {
	sender := "Sales Engineer"
	if msg.Direction == domain.DirectionIn {
		sender = "Client"
	}
	return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.UTC().Format(time.RFC3339), sender, msg.Text)
}

// TranscriptLines formats a message slice in order.
func TranscriptLines(msgs []*domain.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, TranscriptLine(m))
	}
	return lines
}
