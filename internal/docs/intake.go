// Package docs registers claim documents: email attachments fetched lazily
// from the mailbox, and direct web uploads. Bytes go to object storage;
// metadata always lands in the database, even when the upload fails.
package docs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
	"github.com/voyagecover/claims-intake/internal/storage"
)

// ErrStorageUnavailable indicates the upload could not complete. The
// document metadata is still persisted with a null storage key so the
// bytes can be retried later; the enclosing claim flow continues.
var ErrStorageUnavailable = errors.New("document storage unavailable")

// ErrNotFound indicates an unknown document id.
var ErrNotFound = errors.New("document not found")

// Store is the persistence contract for documents.
type Store interface {
	Create(ctx context.Context, d *domain.Document) error
	ByID(ctx context.Context, id string) (*domain.Document, error)
	ByClaim(ctx context.Context, claimID string) ([]domain.Document, error)
	// OCRResult returns the stored extraction output, or nil when the
	// document has not been processed yet.
	OCRResult(ctx context.Context, documentID string) (*domain.OCRResult, error)
}

// AttachmentFetcher fetches attachment bytes from the mail provider.
// Satisfied by the Gmail client.
type AttachmentFetcher interface {
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Service performs document intake.
type Service struct {
	store Store
	blobs storage.BlobStore
	mail  AttachmentFetcher
}

// NewService creates the document intake service. mail may be nil when only
// web uploads are in play.
func NewService(store Store, blobs storage.BlobStore, mail AttachmentFetcher) *Service {
	return &Service{store: store, blobs: blobs, mail: mail}
}

// IntakeAttachment fetches one email attachment and registers it against a
// claim. Bytes are pulled from the provider only now, after the message has
// been deemed relevant.
func (s *Service) IntakeAttachment(ctx context.Context, claimID string, ref domain.AttachmentRef) (*domain.Document, error) {
	if s.mail == nil {
		return nil, fmt.Errorf("no attachment fetcher configured")
	}

	data, err := s.mail.GetAttachment(ctx, ref.MessageID, ref.AttachmentID)
	if err != nil {
		// Record metadata anyway; the bytes stay with the provider and a
		// manual retry can recover them.
		doc := s.newDocument(claimID, ref.Filename, ref.MimeType, ref.SizeBytes, domain.SourceEmailAttachment, nil)
		if cerr := s.store.Create(ctx, doc); cerr != nil {
			return nil, fmt.Errorf("recording document metadata: %w", cerr)
		}
		return doc, fmt.Errorf("%w: fetching attachment: %v", ErrStorageUnavailable, err)
	}

	return s.register(ctx, claimID, ref.Filename, ref.MimeType, data, domain.SourceEmailAttachment)
}

// IntakeUpload registers bytes received directly (the web-form path).
func (s *Service) IntakeUpload(ctx context.Context, claimID, filename, mimeType string, data []byte) (*domain.Document, error) {
	return s.register(ctx, claimID, filename, mimeType, data, domain.SourceWebForm)
}

func (s *Service) register(ctx context.Context, claimID, filename, mimeType string, data []byte, source domain.DocumentSource) (*domain.Document, error) {
	doc := s.newDocument(claimID, filename, mimeType, int64(len(data)), source, nil)

	key := storage.DocumentKey(claimID, doc.ID, filename)
	if _, err := s.blobs.Put(ctx, key, data, mimeType); err != nil {
		logger.Warn("document upload failed, recording metadata only",
			"claim_id", claimID, "filename", filename, "error", err.Error())
		if cerr := s.store.Create(ctx, doc); cerr != nil {
			return nil, fmt.Errorf("recording document metadata: %w", cerr)
		}
		return doc, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	doc.StorageKey = &key
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("recording document: %w", err)
	}

	logger.Info("document registered",
		"claim_id", claimID,
		"document_id", doc.ID,
		"mime_type", mimeType,
		"ocr_status", string(doc.OCRStatus))
	return doc, nil
}

// newDocument builds the metadata record. Only images and PDFs are queued
// for OCR; everything else is stored with nothing to extract.
func (s *Service) newDocument(claimID, filename, mimeType string, size int64, source domain.DocumentSource, key *string) *domain.Document {
	status := domain.OCRCompleted
	if domain.OCREligibleMime(mimeType) {
		status = domain.OCRPending
	}
	return &domain.Document{
		ID:         uuid.NewString(),
		ClaimID:    claimID,
		Filename:   filename,
		MimeType:   mimeType,
		SizeBytes:  size,
		StorageKey: key,
		Source:     source,
		OCRStatus:  status,
		CreatedAt:  time.Now().UTC(),
	}
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.store.ByID(ctx, id)
}

// ForClaim returns all documents attached to a claim.
func (s *Service) ForClaim(ctx context.Context, claimID string) ([]domain.Document, error) {
	return s.store.ByClaim(ctx, claimID)
}

// ExtractionResult returns the OCR output for a document, nil when none
// exists yet.
func (s *Service) ExtractionResult(ctx context.Context, documentID string) (*domain.OCRResult, error) {
	return s.store.OCRResult(ctx, documentID)
}
