package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SummaryRefreshDelta is the number of new messages that triggers a summary
// recompute: refresh when current count > snapshot count + delta.
const SummaryRefreshDelta = 3

// Summary is the incrementally maintained digest of one conversation. The
// content is free text followed by a machine-readable evaluation footer
// ("Status: <label>\nConfidence: <0..1>") so the last classification is
// inspectable without re-running the model.
type Summary struct {
	ConversationID     string    `json:"conversation_id" db:"conversation_id" gorm:"column:conversation_id;primaryKey"`
	Content            string    `json:"content" db:"content" gorm:"column:content"`
	MsgCountAtSnapshot int       `json:"msg_count_at_snapshot" db:"msg_count_at_snapshot" gorm:"column:msg_count_at_snapshot;default:0"`
	CreatedAt          time.Time `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Summary) TableName() string {
	return "conversation_summaries"
}

// NeedsRefresh reports whether enough new messages accumulated since the
// snapshot to warrant recomputing the summary.
func (s *Summary) NeedsRefresh(currentMsgCount int) bool {
	return currentMsgCount > s.MsgCountAtSnapshot+SummaryRefreshDelta
}

const (
	footerStatusPrefix     = "Status:"
	footerConfidencePrefix = "Confidence:"
)

// FormatEvaluationFooter renders the machine-readable footer appended to
// summary content after each classification.
func FormatEvaluationFooter(status EvaluationStatus, confidence float64) string {
	return fmt.Sprintf("%s %s\n%s %.2f", footerStatusPrefix, status, footerConfidencePrefix, confidence)
}

// AppendEvaluationFooter replaces any existing footer on content with the
// given one, keeping the free-text part intact.
func AppendEvaluationFooter(content string, status EvaluationStatus, confidence float64) string {
	body := StripEvaluationFooter(content)
	body = strings.TrimRight(body, "\n ")
	if body == "" {
		return FormatEvaluationFooter(status, confidence)
	}
	return body + "\n\n" + FormatEvaluationFooter(status, confidence)
}

// ParseEvaluationFooter extracts the status and confidence from summary
// content. ok is false when no footer is present.
func ParseEvaluationFooter(content string) (status EvaluationStatus, confidence float64, ok bool) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, footerStatusPrefix) {
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, footerStatusPrefix))
			candidate := EvaluationStatus(strings.ToLower(raw))
			if candidate.Valid() {
				status = candidate
				ok = true
			}
		} else if strings.HasPrefix(trimmed, footerConfidencePrefix) {
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, footerConfidencePrefix))
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				confidence = v
			}
		}
	}
	return status, confidence, ok
}

// StripEvaluationFooter returns content without its footer lines.
func StripEvaluationFooter(content string) string {
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, footerStatusPrefix) || strings.HasPrefix(trimmed, footerConfidencePrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n ")
}
