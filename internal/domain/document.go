package domain

import "time"

// OCRStatus tracks automated text extraction over a document.
type OCRStatus string

const (
	OCRPending    OCRStatus = "pending"
	OCRProcessing OCRStatus = "processing"
	OCRCompleted  OCRStatus = "completed"
	OCRFailed     OCRStatus = "failed"
)

// DocumentSource records how a document entered the system.
type DocumentSource string

const (
	SourceEmailAttachment DocumentSource = "email_attachment"
	SourceWebForm         DocumentSource = "web_form"
)

// Document is a file attached to exactly one claim. StorageKey is nil when
// the upload failed and the bytes are pending a retry. OCRAttempts counts
// extraction runs so failed documents retry a bounded number of times.
type Document struct {
	ID          string
	ClaimID     string
	Filename    string
	MimeType    string
	SizeBytes   int64
	StorageKey  *string
	Source      DocumentSource
	OCRStatus   OCRStatus
	OCRAttempts int
	CreatedAt   time.Time
}

// OCREligible reports whether the document's mime type is worth running
// through automated extraction. Everything else is stored as-is.
func (d *Document) OCREligible() bool {
	return OCREligibleMime(d.MimeType)
}

// OCREligibleMime reports OCR eligibility for a raw mime type: images and PDFs.
func OCREligibleMime(mime string) bool {
	if mime == "application/pdf" {
		return true
	}
	return len(mime) > 6 && mime[:6] == "image/"
}

// OCRResult holds the extraction output for a document. At most one live
// result exists per document; re-processing overwrites it.
type OCRResult struct {
	DocumentID     string
	RawText        string
	StructuredData map[string]string
	Confidence     float64
	ErrorMessage   *string
	ProcessedAt    time.Time
}
