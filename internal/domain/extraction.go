package domain

import "time"

// ExtractedFields is the best-effort field set produced by the intake
// extractor. Nil pointers mean "not found"; downstream code branches on
// Provenance, never on key presence.
type ExtractedFields struct {
	CustomerName        string
	PolicyNumber        *string
	ClaimType           ClaimType
	IncidentDate        *time.Time
	EstimatedAmount     *float64
	IncidentDescription string
	Priority            string
	Provenance          Provenance
}
