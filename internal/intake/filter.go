// Package intake implements the inbound-email triage pipeline: keyword
// pre-filtering, thread correlation, structured field extraction, and the
// orchestration that turns messages into claims.
package intake

import "strings"

// claimKeywords is the cheap pre-check vocabulary, English and Spanish.
// False negatives are acceptable (the web form remains open); false
// positives just flow to manual review. This list must stay a substring
// check so that no LLM spend happens before relevance is known.
var claimKeywords = []string{
	"claim",
	"insurance",
	"policy",
	"baggage",
	"luggage",
	"cancellation",
	"cancelled flight",
	"canceled flight",
	"trip delay",
	"flight delay",
	"reimburse",
	"refund",
	"incident",
	// Spanish
	"siniestro",
	"póliza",
	"poliza",
	"reclamo",
	"reclamación",
	"reclamacion",
	"equipaje",
	"cancelación",
	"cancelacion",
	"reembolso",
}

// IsClaimRelated reports whether a message looks claims-related at all.
// Case-insensitive substring match; runs before any paid extraction.
func IsClaimRelated(subject, bodyText, bodyHTML string) bool {
	haystack := strings.ToLower(subject + "\n" + bodyText + "\n" + bodyHTML)
	for _, kw := range claimKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
