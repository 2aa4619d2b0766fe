package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/internal/prompts"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/internal/storage"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/ClareAI/astra-sales-agent/pkg/phone"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// conversationTailLimit caps the formatted tail returned by the detail
// endpoint.
const conversationTailLimit = 50

// ConversationHandler exposes the operator conversation endpoints.
type ConversationHandler struct {
	repos       repository.RepositoryManager
	jobs        job.Queue
	transcripts *storage.TranscriptExporter
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(repos repository.RepositoryManager, jobs job.Queue, transcripts *storage.TranscriptExporter) *ConversationHandler {
	return &ConversationHandler{repos: repos, jobs: jobs, transcripts: transcripts}
}

// conversationDetail is the inspection view of one conversation.
type conversationDetail struct {
	ID            string   `json:"id"`
	IntegrationID string   `json:"integration_id"`
	WaID          string   `json:"wa_id"`
	Status        string   `json:"status"`
	StartedBy     string   `json:"started_by"`
	StartedAt     string   `json:"started_at"`
	LastMsgAt     string   `json:"last_msg_at"`
	MessageCount  int      `json:"message_count"`
	Tail          []string `json:"tail"`
	Summary       string   `json:"summary,omitempty"`
}

// GetConversation returns one conversation with its recent messages and
// summary.
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.load(w, r)
	if conv == nil {
		return
	}
	h.respondDetail(w, r, conv)
}

// GetConversationByNumber returns the most recent conversation for a phone
// number, across integrations.
func (h *ConversationHandler) GetConversationByNumber(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["wa_id"]
	waID := phone.ToE164(raw)
	if waID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "routing", "unparseable phone number")
		return
	}

	conv, err := h.repos.Conversation().LatestByWaIDAny(r.Context(), waID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if conv == nil {
		writeErrorMessage(w, http.StatusNotFound, "routing", "no conversation for number")
		return
	}
	h.respondDetail(w, r, conv)
}

// GetTranscript renders the conversation as a PDF. When an archive bucket is
// configured the object path comes back in a header; the PDF bytes are the
// body either way.
func (h *ConversationHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	conv := h.load(w, r)
	if conv == nil {
		return
	}

	messages, err := h.repos.Message().ListByConversation(r.Context(), conv.ID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	summary, err := h.repos.Summary().Get(r.Context(), conv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	pdf, objectPath, err := h.transcripts.Export(r.Context(), conv, messages, summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcript-%s.pdf"`, conv.ID))
	if objectPath != "" {
		w.Header().Set("X-Archive-Object", objectPath)
		if url := h.transcripts.ArchiveURL(objectPath); url != "" {
			w.Header().Set("X-Archive-Url", url)
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		logger.Base().Warn("failed to write transcript response", zap.Error(err))
	}
}

// CloseConversation transitions a conversation to its terminal state. Closing
// an already-closed conversation is a no-op success.
func (h *ConversationHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.load(w, r)
	if conv == nil {
		return
	}

	changed, err := h.repos.Conversation().UpdateStatus(r.Context(), conv.ID, domain.StatusClosed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if changed {
		logger.Base().Info("conversation closed by operator",
			zap.String("conversation_id", conv.ID),
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusClosed)})
}

// RequestReply enqueues an on-demand reply generation for the conversation.
// The reply worker re-checks the preconditions, so a stale request simply
// becomes a no-op.
func (h *ConversationHandler) RequestReply(w http.ResponseWriter, r *http.Request) {
	conv := h.load(w, r)
	if conv == nil {
		return
	}

	accepted := h.jobs.Enqueue(job.Job{
		Kind:           job.KindReplyConversation,
		ConversationID: conv.ID,
		EnqueuedAt:     time.Now().UTC(),
	})
	if !accepted {
		writeErrorMessage(w, http.StatusServiceUnavailable, "capacity", "worker queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// load fetches the conversation from the path id, writing the error response
// itself when it cannot.
func (h *ConversationHandler) load(w http.ResponseWriter, r *http.Request) *domain.Conversation {
	id := mux.Vars(r)["id"]
	conv, err := h.repos.Conversation().GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil
	}
	if conv == nil {
		writeErrorMessage(w, http.StatusNotFound, "routing", "conversation not found")
		return nil
	}
	return conv
}

func (h *ConversationHandler) respondDetail(w http.ResponseWriter, r *http.Request, conv *domain.Conversation) {
	tail, err := h.repos.Message().RecentTail(r.Context(), conv.ID, conversationTailLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	count, err := h.repos.Message().CountByConversation(r.Context(), conv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	detail := conversationDetail{
		ID:            conv.ID,
		IntegrationID: conv.IntegrationID,
		WaID:          conv.WaID,
		Status:        string(conv.Status),
		StartedBy:     string(conv.StartedBy),
		StartedAt:     conv.StartedAt.UTC().Format(time.RFC3339),
		LastMsgAt:     conv.LastMsgAt.UTC().Format(time.RFC3339),
		MessageCount:  count,
		Tail:          prompts.TranscriptLines(tail),
	}

	summary, err := h.repos.Summary().Get(r.Context(), conv.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if summary != nil {
		detail.Summary = summary.Content
	}

	writeJSON(w, http.StatusOK, detail)
}
