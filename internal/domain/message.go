package domain

import (
	"time"
)

// Direction marks a message as inbound from the contact or outbound from the
// agent.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageKind is the provider-reported content type.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
	KindLocation MessageKind = "location"
	KindContact  MessageKind = "contact"
	KindSticker  MessageKind = "sticker"
	KindTemplate MessageKind = "template"
)

// Fallback prefixes for outbound messages whose provider response carried no
// message id. The prefix records the code path that produced the message.
const (
	FallbackPrefixOut      = "out_"
	FallbackPrefixTemplate = "template_"
	FallbackPrefixPeriodic = "periodic_"
	FallbackPrefixAIReply  = "ai_reply_"
)

// Message is one append-only row in a conversation. For inbound messages
// (integration_id, provider_msg_id) is the at-most-once key: duplicate
// webhook deliveries of the same provider message insert exactly one row.
type Message struct {
	ID             string      `json:"id" db:"id" gorm:"column:id;primaryKey"`
	IntegrationID  string      `json:"integration_id" db:"integration_id" gorm:"column:integration_id;uniqueIndex:uni_wa_messages_integration_provider_msg"`
	ConversationID string      `json:"conversation_id" db:"conversation_id" gorm:"column:conversation_id;index:idx_wa_messages_conversation_created"`
	Direction      Direction   `json:"direction" db:"direction" gorm:"column:direction"`
	WaID           string      `json:"wa_id" db:"wa_id" gorm:"column:wa_id;index"`
	ProviderMsgID  string      `json:"provider_msg_id" db:"provider_msg_id" gorm:"column:provider_msg_id;uniqueIndex:uni_wa_messages_integration_provider_msg,where:provider_msg_id <> ''"`
	Kind           MessageKind `json:"kind" db:"kind" gorm:"column:kind;default:text"`
	Text           string      `json:"text" db:"text" gorm:"column:text"`
	Payload        JSONB       `json:"payload" db:"payload" gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at" gorm:"column:created_at;index:idx_wa_messages_conversation_created;autoCreateTime"`
}

func (Message) TableName() string {
	return "wa_messages"
}
