// Package ocr extracts text and structured fields from claim documents
// using the vision model. Documents are processed in small claimed batches
// with per-document fault isolation.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/llm"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
	"github.com/voyagecover/claims-intake/internal/storage"
)

// maxBatchSize caps how many documents one pass may claim.
const maxBatchSize = 10

// Store is the persistence contract for OCR processing.
type Store interface {
	// ClaimPendingBatch atomically claims up to limit pending documents,
	// marking them processing so concurrent workers never double-process.
	ClaimPendingBatch(ctx context.Context, limit int) ([]domain.Document, error)
	// SaveResult upserts the OCR result and sets the document status.
	SaveResult(ctx context.Context, res *domain.OCRResult, status domain.OCRStatus) error
	// MarkForReprocess resets a document to pending so the next pass picks
	// it up again. Re-running overwrites the previous result.
	MarkForReprocess(ctx context.Context, documentID string) error
}

// Worker runs OCR passes over pending documents.
type Worker struct {
	store     Store
	blobs     storage.BlobStore
	llm       llm.Client
	batchSize int
	timeout   time.Duration
}

// NewWorker creates an OCR worker. batchSize is clamped to [1, 10].
func NewWorker(store Store, blobs storage.BlobStore, client llm.Client, batchSize int, timeout time.Duration) *Worker {
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Worker{store: store, blobs: blobs, llm: client, batchSize: batchSize, timeout: timeout}
}

// ProcessBatch claims one batch and processes each document independently.
// A document that fails is marked failed with the reason; its batch
// siblings are unaffected. Returns how many documents were handled.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	docs, err := w.store.ClaimPendingBatch(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claiming OCR batch: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	logger.Info("processing OCR batch", "count", len(docs))

	for i := range docs {
		doc := &docs[i]
		if err := w.processOne(ctx, doc); err != nil {
			msg := err.Error()
			logger.Warn("OCR failed", "document_id", doc.ID, "error", msg)
			res := &domain.OCRResult{
				DocumentID:   doc.ID,
				ErrorMessage: &msg,
				ProcessedAt:  time.Now().UTC(),
			}
			if serr := w.store.SaveResult(ctx, res, domain.OCRFailed); serr != nil {
				logger.Error("failed to record OCR failure", "document_id", doc.ID, "error", serr.Error())
			}
		}
	}
	return len(docs), nil
}

// Reprocess queues a single document for another OCR pass.
func (w *Worker) Reprocess(ctx context.Context, documentID string) error {
	return w.store.MarkForReprocess(ctx, documentID)
}

const ocrPrompt = `This is a document attached to a travel-insurance claim
(receipt, boarding pass, airline letter, medical bill, or similar).
Transcribe it and respond with ONLY a JSON object, no prose:
{
  "raw_text": full transcription as a single string,
  "structured_data": object of key/value string pairs for any fields you can
                     identify (e.g. "merchant", "date", "total", "flight_number"),
  "confidence": number between 0 and 1
}`

type ocrPayload struct {
	RawText        string            `json:"raw_text"`
	StructuredData map[string]string `json:"structured_data"`
	Confidence     float64           `json:"confidence"`
}

func (w *Worker) processOne(ctx context.Context, doc *domain.Document) error {
	if doc.StorageKey == nil {
		return fmt.Errorf("document has no stored bytes")
	}

	data, err := w.blobs.Get(ctx, *doc.StorageKey)
	if err != nil {
		return fmt.Errorf("fetching document bytes: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	response, err := w.llm.ExtractFromImage(callCtx, ocrPrompt, data, doc.MimeType)
	if err != nil {
		return fmt.Errorf("vision model: %w", err)
	}

	res := parseOCRResponse(doc.ID, response)
	if err := w.store.SaveResult(ctx, res, domain.OCRCompleted); err != nil {
		return fmt.Errorf("saving OCR result: %w", err)
	}

	logger.Info("OCR completed", "document_id", doc.ID, "confidence", res.Confidence)
	return nil
}

// parseOCRResponse tolerates non-JSON output: the whole response becomes
// the raw text at reduced confidence instead of failing the document.
func parseOCRResponse(documentID, response string) *domain.OCRResult {
	now := time.Now().UTC()

	var payload ocrPayload
	if err := llm.ExtractJSON(response, &payload); err != nil || strings.TrimSpace(payload.RawText) == "" {
		return &domain.OCRResult{
			DocumentID:  documentID,
			RawText:     strings.TrimSpace(response),
			Confidence:  0.3,
			ProcessedAt: now,
		}
	}

	conf := payload.Confidence
	if conf < 0 || conf > 1 {
		conf = 0.5
	}
	return &domain.OCRResult{
		DocumentID:     documentID,
		RawText:        payload.RawText,
		StructuredData: payload.StructuredData,
		Confidence:     conf,
		ProcessedAt:    now,
	}
}
