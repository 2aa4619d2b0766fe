// Package job provides the in-process work queue the engine runs on: a
// bounded shared queue drained by a pool of workers. Jobs are coarse-grained,
// one per tenant or per conversation, and treated as independent.
package job

import (
	"context"
	"time"
)

// Kind identifies what a job does.
type Kind string

const (
	// KindEvaluateTenant re-classifies every live conversation of a tenant.
	KindEvaluateTenant Kind = "evaluate_tenant"
	// KindDispatchTenant sends periodic outreach for a tenant.
	KindDispatchTenant Kind = "dispatch_tenant"
	// KindReplyConversation generates a reply on one conversation.
	KindReplyConversation Kind = "reply_conversation"
)

// Job is one unit of work on the queue. TenantID is set for tenant-scoped
// kinds, ConversationID for conversation-scoped ones.
type Job struct {
	Kind           Kind      `json:"kind"`
	TenantID       string    `json:"tenant_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Handler processes one job. A returned error is logged and counted; it never
// aborts the worker.
type Handler func(ctx context.Context, j Job) error

// Queue is the enqueue surface the services depend on. Enqueue is
// non-blocking: a full queue drops the job and reports false.
type Queue interface {
	Enqueue(j Job) bool
}
