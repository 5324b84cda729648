package domain

import "time"

// AttachmentRef describes an email attachment by metadata only. Bytes are
// fetched lazily through the mail client using MessageID + AttachmentID, so
// large payloads are never loaded before relevance is established.
type AttachmentRef struct {
	MessageID    string
	AttachmentID string
	Filename     string
	MimeType     string
	SizeBytes    int64
}

// InboundMessage is the canonical form of a provider email. ProviderID is
// globally unique within the mailbox and serves as the idempotency key for
// already-processed checks.
type InboundMessage struct {
	ProviderID  string
	ThreadID    string
	FromAddress string
	ToAddress   string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReceivedAt  time.Time
	Attachments []AttachmentRef
}

// MessageDisposition records what the intake pipeline did with a message.
type MessageDisposition string

const (
	DispositionNewClaim  MessageDisposition = "new_claim"
	DispositionFollowUp  MessageDisposition = "follow_up"
	DispositionIgnored   MessageDisposition = "ignored"
	DispositionMalformed MessageDisposition = "malformed"
)

// MessageRecord is the persisted trace of a processed inbound message.
// ClaimID is empty for ignored/malformed messages.
type MessageRecord struct {
	ProviderID  string
	ThreadID    string
	Sender      string
	Subject     string
	ClaimID     string
	Disposition MessageDisposition
	ReceivedAt  time.Time
	ProcessedAt time.Time
}
