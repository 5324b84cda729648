package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voyagecover/claims-intake/internal/docs"
	"github.com/voyagecover/claims-intake/internal/domain"
)

// DocumentRepo implements docs.Store and ocr.Store against PostgreSQL.
type DocumentRepo struct{ db *sql.DB }

// NewDocumentRepo creates a Postgres-backed document repository.
func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

// maxOCRAttempts bounds automatic retries of failed extractions. A manual
// reprocess resets the counter and grants a fresh budget.
const maxOCRAttempts = 3

const documentColumns = `id, claim_id, filename, mime_type, size_bytes, storage_key,
	       source, ocr_status, ocr_attempts, created_at`

func scanDocument(row interface{ Scan(...interface{}) error }, d *domain.Document) error {
	return row.Scan(
		&d.ID, &d.ClaimID, &d.Filename, &d.MimeType, &d.SizeBytes, &d.StorageKey,
		&d.Source, &d.OCRStatus, &d.OCRAttempts, &d.CreatedAt,
	)
}

func (r *DocumentRepo) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, claim_id, filename, mime_type, size_bytes, storage_key,
		                       source, ocr_status, ocr_attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, d.ClaimID, d.Filename, d.MimeType, d.SizeBytes, d.StorageKey,
		d.Source, d.OCRStatus, d.OCRAttempts, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) ByID(ctx context.Context, id string) (*domain.Document, error) {
	d := &domain.Document{}
	err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id), d)
	if err == sql.ErrNoRows {
		return nil, docs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) ByClaim(ctx context.Context, claimID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE claim_id = $1 ORDER BY created_at ASC`,
		claimID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimPendingBatch atomically flips up to limit scannable documents to
// processing and returns them. Pending documents always qualify; failed
// ones re-qualify until the attempt budget is spent. SKIP LOCKED keeps
// concurrent workers off each other's batches.
func (r *DocumentRepo) ClaimPendingBatch(ctx context.Context, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE documents SET ocr_status = 'processing', ocr_attempts = ocr_attempts + 1
		WHERE id IN (
			SELECT id FROM documents
			WHERE (ocr_status = 'pending' OR (ocr_status = 'failed' AND ocr_attempts < $2))
			  AND storage_key IS NOT NULL
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+documentColumns, limit, maxOCRAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim OCR batch: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := scanDocument(rows, &d); err != nil {
			return nil, fmt.Errorf("scan claimed document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveResult upserts the OCR result and sets the document status in one
// transaction. Re-processing replaces the previous result row.
func (r *DocumentRepo) SaveResult(ctx context.Context, res *domain.OCRResult, status domain.OCRStatus) error {
	structured, err := json.Marshal(res.StructuredData)
	if err != nil {
		return fmt.Errorf("marshal structured data: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save OCR result: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ocr_results (document_id, raw_text, structured_data, confidence, error_message, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (document_id) DO UPDATE SET
			raw_text = EXCLUDED.raw_text,
			structured_data = EXCLUDED.structured_data,
			confidence = EXCLUDED.confidence,
			error_message = EXCLUDED.error_message,
			processed_at = EXCLUDED.processed_at
	`, res.DocumentID, res.RawText, structured, res.Confidence, res.ErrorMessage, res.ProcessedAt); err != nil {
		return fmt.Errorf("upsert OCR result: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET ocr_status = $1 WHERE id = $2`, status, res.DocumentID); err != nil {
		return fmt.Errorf("update document OCR status: %w", err)
	}

	return tx.Commit()
}

// MarkForReprocess resets a document to pending with a fresh attempt
// budget so the next OCR pass picks it up again.
func (r *DocumentRepo) MarkForReprocess(ctx context.Context, documentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET ocr_status = 'pending', ocr_attempts = 0
		WHERE id = $1 AND storage_key IS NOT NULL
	`, documentID)
	if err != nil {
		return fmt.Errorf("mark for reprocess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark for reprocess: %w", err)
	}
	if n == 0 {
		return docs.ErrNotFound
	}
	return nil
}

// OCRResult returns the stored extraction output for a document, or nil
// when none exists yet.
func (r *DocumentRepo) OCRResult(ctx context.Context, documentID string) (*domain.OCRResult, error) {
	res := &domain.OCRResult{}
	var structured []byte
	var processedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT document_id, COALESCE(raw_text,''), structured_data, confidence, error_message, processed_at
		FROM ocr_results WHERE document_id = $1
	`, documentID).Scan(&res.DocumentID, &res.RawText, &structured, &res.Confidence, &res.ErrorMessage, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get OCR result: %w", err)
	}
	res.ProcessedAt = processedAt

	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &res.StructuredData); err != nil {
			return nil, fmt.Errorf("unmarshal structured data: %w", err)
		}
	}
	return res, nil
}
