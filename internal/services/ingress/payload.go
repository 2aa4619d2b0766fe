package ingress

import (
	"encoding/json"
	"fmt"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
)

// WebhookPayload is the provider event shape. The current provider nests
// messages under entry[].changes[].value; older deliveries put them at the
// root, and both are accepted.
type WebhookPayload struct {
	Entry    []Entry           `json:"entry"`
	Messages []*InboundMessage `json:"messages"`
}

// Entry is one account-level entry in a nested event.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one change notification inside an entry.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the messages of one change.
type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Messages         []*InboundMessage `json:"messages"`
}

// AllMessages flattens both accepted shapes into one slice, nested entries
// first, then the flat fallback.
func (p *WebhookPayload) AllMessages() []*InboundMessage {
	var out []*InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			out = append(out, change.Value.Messages...)
		}
	}
	out = append(out, p.Messages...)
	return out
}

// TextBody is the text part of a text message.
type TextBody struct {
	Body string `json:"body"`
}

// InboundMessage is one provider message element. Raw keeps the full
// original object so non-text payloads survive into storage.
type InboundMessage struct {
	From      string    `json:"from"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Text      *TextBody `json:"text,omitempty"`

	Raw domain.JSONB `json:"-"`
}

// UnmarshalJSON decodes the known fields and captures the raw object.
func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	type alias InboundMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = InboundMessage(a)

	var raw domain.JSONB
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Raw = raw
	return nil
}

// Content derives the stored kind and text. Text messages keep their body;
// every other kind stores a bracketed placeholder naming the kind and the
// provider's media reference.
func (m *InboundMessage) Content() (domain.MessageKind, string) {
	kind := domain.MessageKind(m.Type)
	if m.Type == "" {
		kind = domain.KindText
	}

	if kind == domain.KindText {
		body := ""
		if m.Text != nil {
			body = m.Text.Body
		}
		return domain.KindText, body
	}

	return kind, fmt.Sprintf("[%s: %s]", titleKind(kind), m.mediaRef())
}

// mediaRef extracts a stable reference from the kind-specific sub-object:
// the provider media id when present, else a caption or link.
func (m *InboundMessage) mediaRef() string {
	sub, ok := m.Raw[m.Type].(map[string]interface{})
	if !ok {
		return "no ref"
	}
	for _, field := range []string{"id", "caption", "link", "filename"} {
		if v, ok := sub[field].(string); ok && v != "" {
			return v
		}
	}
	return "no ref"
}
