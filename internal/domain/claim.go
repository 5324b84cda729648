package domain

import "time"

// ClaimStatus is the review lifecycle state of a claim.
type ClaimStatus string

const (
	StatusInitialNotification ClaimStatus = "INITIAL_NOTIFICATION"
	StatusFormSent            ClaimStatus = "FORM_SENT"
	StatusFormSubmitted       ClaimStatus = "FORM_SUBMITTED"
	StatusUnderReview         ClaimStatus = "UNDER_REVIEW"
	StatusPendingDocuments    ClaimStatus = "PENDING_CUSTOMER_DOCUMENTS"
	StatusApproved            ClaimStatus = "APPROVED"
	StatusRejected            ClaimStatus = "REJECTED"
	StatusClosed              ClaimStatus = "CLOSED"
)

// ClaimType categorizes the reported incident.
type ClaimType string

const (
	TypeTripCancellation ClaimType = "TRIP_CANCELLATION"
	TypeTripDelay        ClaimType = "TRIP_DELAY"
	TypeTripInterruption ClaimType = "TRIP_INTERRUPTION"
	TypeBaggageDelay     ClaimType = "BAGGAGE_DELAY"
	TypeOther            ClaimType = "OTHER"
)

// ParseClaimType maps free-form extractor output onto the closed type set.
// Unknown values fall back to OTHER rather than failing.
func ParseClaimType(s string) ClaimType {
	switch ClaimType(s) {
	case TypeTripCancellation, TypeTripDelay, TypeTripInterruption, TypeBaggageDelay, TypeOther:
		return ClaimType(s)
	}
	return TypeOther
}

// Provenance records where a claim's extracted fields came from.
type Provenance string

const (
	ProvenanceRegex  Provenance = "regex"
	ProvenanceLLM    Provenance = "llm"
	ProvenanceManual Provenance = "manual"
)

// Claim is a single reported incident tracked through its review lifecycle.
// It is owned by the claims service and mutated only through transitions.
type Claim struct {
	ID                  string
	ClaimNumber         string
	SourceMessageID     string
	CustomerName        string
	CustomerEmail       string
	PolicyNumber        *string
	ClaimType           ClaimType
	IncidentDate        *time.Time
	IncidentDescription string
	EstimatedAmount     *float64
	Status              ClaimStatus
	ExtractedBy         Provenance
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClosedAt            *time.Time
}

// StatusUpdate is one append-only audit entry for a claim status change.
// OldStatus is nil for the creation entry.
type StatusUpdate struct {
	ID        string
	ClaimID   string
	OldStatus *ClaimStatus
	NewStatus ClaimStatus
	Reason    string
	Actor     string
	CreatedAt time.Time
}

// SystemActor marks transitions triggered by automation rather than an analyst.
const SystemActor = "system"
