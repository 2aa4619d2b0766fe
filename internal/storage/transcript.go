// Package storage renders conversation transcripts for export. The PDF is
// generated in memory; when a GCS bucket is configured the file is also
// uploaded and the object path returned.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"github.com/ClareAI/astra-sales-agent/pkg/gcs"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	"github.com/jung-kurt/gofpdf/v2"
	"go.uber.org/zap"
)

// archiveURLTTL bounds how long a transcript download link stays valid.
const archiveURLTTL = 15 * time.Minute

// TranscriptExporter renders and optionally uploads transcripts.
type TranscriptExporter struct {
	gcsClient *gcs.GCSClient
}

// NewTranscriptExporter creates an exporter. The GCS client may be nil, in
// which case Export only renders.
func NewTranscriptExporter(gcsClient *gcs.GCSClient) *TranscriptExporter {
	return &TranscriptExporter{gcsClient: gcsClient}
}

// Render produces the transcript PDF for one conversation.
func (e *TranscriptExporter) Render(conv *domain.Conversation, messages []*domain.Message, summary *domain.Summary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, tr(fmt.Sprintf("Conversation %s", conv.ID)), "", "L", false)

	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Contact: %s    Status: %s    Started: %s",
		conv.WaID, conv.Status, conv.StartedAt.UTC().Format(time.RFC3339))), "", "L", false)
	pdf.Ln(4)

	if summary != nil && summary.Content != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, "Summary", "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(summary.Content), "", "L", false)
		pdf.Ln(4)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.MultiCell(0, 6, "Messages", "", "L", false)
	pdf.SetFont("Helvetica", "", 10)
	for _, msg := range messages {
		sender := "Sales Engineer"
		if msg.Direction == domain.DirectionIn {
			sender = "Client"
		}
		line := fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.UTC().Format("2006-01-02 15:04"), sender, msg.Text)
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Export renders the transcript and uploads it when a bucket is configured.
// Returns the PDF bytes and the GCS object path ("" without a bucket).
func (e *TranscriptExporter) Export(ctx context.Context, conv *domain.Conversation, messages []*domain.Message, summary *domain.Summary) ([]byte, string, error) {
	data, err := e.Render(conv, messages, summary)
	if err != nil {
		return nil, "", err
	}

	if e.gcsClient == nil {
		return data, "", nil
	}

	objectPath := fmt.Sprintf("transcripts/%s/%d.pdf", conv.ID, time.Now().UTC().Unix())
	if err := e.gcsClient.Upload(ctx, objectPath, bytes.NewReader(data), "application/pdf"); err != nil {
		// Rendering succeeded; the upload is best-effort.
		logger.Base().Warn("transcript upload failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return data, "", nil
	}
	return data, objectPath, nil
}

// ArchiveURL returns a time-limited download link for an archived transcript
// object, or "" when no bucket is configured or signing fails.
func (e *TranscriptExporter) ArchiveURL(objectPath string) string {
	if e.gcsClient == nil || objectPath == "" {
		return ""
	}
	url, err := e.gcsClient.SignedDownloadURL(objectPath, archiveURLTTL)
	if err != nil {
		logger.Base().Warn("failed to sign transcript url",
			zap.String("object", objectPath),
			zap.Error(err),
		)
		return ""
	}
	return url
}
