package domain

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation. CLOSED is
// terminal; every other status is non-terminal.
type ConversationStatus string

const (
	StatusOpen          ConversationStatus = "open"
	StatusContinue      ConversationStatus = "continue"
	StatusScheduleLater ConversationStatus = "schedule_later"
	StatusEvaluating    ConversationStatus = "evaluating"
	StatusClosed        ConversationStatus = "closed"
)

// NonTerminalStatuses are the statuses a live conversation can be in. At most
// one conversation per (integration_id, wa_id) holds one of these at a time.
var NonTerminalStatuses = []ConversationStatus{
	StatusOpen, StatusContinue, StatusScheduleLater, StatusEvaluating,
}

// IsTerminal reports whether the status permits no further transitions.
func (s ConversationStatus) IsTerminal() bool {
	return s == StatusClosed
}

// Valid reports whether the status is one of the known values.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusContinue, StatusScheduleLater, StatusEvaluating, StatusClosed:
		return true
	}
	return false
}

// StartedBy records which side opened the conversation.
type StartedBy string

const (
	StartedByAdmin   StartedBy = "admin"
	StartedByContact StartedBy = "contact"
	StartedBySystem  StartedBy = "system"
)

// Conversation is an open-ended correspondence between one contact MSISDN and
// one integration. Created by ingress on first inbound from an unknown
// contact, or by the dispatcher/operator; never deleted by the engine.
type Conversation struct {
	ID            string             `json:"id" db:"id" gorm:"column:id;primaryKey"`
	IntegrationID string             `json:"integration_id" db:"integration_id" gorm:"column:integration_id;index:idx_wa_conversations_integration_wa_id"`
	WaID          string             `json:"wa_id" db:"wa_id" gorm:"column:wa_id;index:idx_wa_conversations_integration_wa_id"`
	StartedBy     StartedBy          `json:"started_by" db:"started_by" gorm:"column:started_by"`
	Status        ConversationStatus `json:"status" db:"status" gorm:"column:status;index:idx_wa_conversations_status_last_msg"`
	StartedAt     time.Time          `json:"started_at" db:"started_at" gorm:"column:started_at"`
	LastMsgAt     time.Time          `json:"last_msg_at" db:"last_msg_at" gorm:"column:last_msg_at;index:idx_wa_conversations_status_last_msg"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "wa_conversations"
}
