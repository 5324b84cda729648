package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/domain"
)

// maxUploadBytes caps a single document upload at 25 MB.
const maxUploadBytes = 25 << 20

type documentResponse struct {
	ID         string             `json:"id"`
	ClaimID    string             `json:"claim_id"`
	Filename   string             `json:"filename"`
	MimeType   string             `json:"mime_type"`
	SizeBytes  int64              `json:"size_bytes"`
	StorageKey *string            `json:"storage_key"`
	Source     string             `json:"source"`
	OCRStatus  string             `json:"ocr_status"`
	CreatedAt  time.Time          `json:"created_at"`
	OCRResult  *ocrResultResponse `json:"ocr_result,omitempty"`
}

type ocrResultResponse struct {
	RawText        string            `json:"raw_text"`
	StructuredData map[string]string `json:"structured_data,omitempty"`
	Confidence     float64           `json:"confidence"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	ProcessedAt    time.Time         `json:"processed_at"`
}

func toOCRResultResponse(r *domain.OCRResult) *ocrResultResponse {
	if r == nil {
		return nil
	}
	return &ocrResultResponse{
		RawText:        r.RawText,
		StructuredData: r.StructuredData,
		Confidence:     r.Confidence,
		ErrorMessage:   r.ErrorMessage,
		ProcessedAt:    r.ProcessedAt,
	}
}

func toDocumentResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		ClaimID:    d.ClaimID,
		Filename:   d.Filename,
		MimeType:   d.MimeType,
		SizeBytes:  d.SizeBytes,
		StorageKey: d.StorageKey,
		Source:     string(d.Source),
		OCRStatus:  string(d.OCRStatus),
		CreatedAt:  d.CreatedAt,
	}
}

// UploadDocument handles POST /claims/{id}/documents as a multipart upload
// with a single "file" part. A storage outage still records the metadata
// and answers 202 so the client knows the bytes are pending.
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")

	if _, err := h.claims.Get(r.Context(), claimID); err != nil {
		if errors.Is(err, claims.ErrNotFound) {
			respondError(w, http.StatusNotFound, "claim not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load claim")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart 'file' part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload failed")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	doc, err := h.documents.IntakeUpload(r.Context(), claimID, header.Filename, mimeType, data)
	if errors.Is(err, docs.ErrStorageUnavailable) {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"document": toDocumentResponse(doc),
			"warning":  "storage unavailable, upload will be retried",
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	respondJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// ReprocessDocument handles POST /claims/{id}/documents/{docID}/reprocess:
// queues another OCR pass that overwrites the previous result.
func (h *Handlers) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	claimID := chi.URLParam(r, "id")
	docID := chi.URLParam(r, "docID")

	doc, err := h.documents.Get(r.Context(), docID)
	if errors.Is(err, docs.ErrNotFound) {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc.ClaimID != claimID {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}
	if !doc.OCREligible() {
		respondError(w, http.StatusUnprocessableEntity, "document type is not OCR eligible")
		return
	}

	if err := h.ocr.Reprocess(r.Context(), docID); err != nil {
		if errors.Is(err, docs.ErrNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "document has no stored bytes to process")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to queue reprocess")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
