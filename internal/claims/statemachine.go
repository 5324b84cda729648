package claims

import "github.com/voyagecover/claims-intake/internal/domain"

// transitions is the claim status graph. A claim moves forward through the
// intake/review states; APPROVED and REJECTED can only close, and
// PENDING_CUSTOMER_DOCUMENTS loops back to review once documents arrive.
var transitions = map[domain.ClaimStatus][]domain.ClaimStatus{
	domain.StatusInitialNotification: {domain.StatusFormSent},
	domain.StatusFormSent:            {domain.StatusFormSubmitted},
	domain.StatusFormSubmitted:       {domain.StatusUnderReview},
	domain.StatusUnderReview: {
		domain.StatusApproved,
		domain.StatusRejected,
		domain.StatusPendingDocuments,
	},
	domain.StatusPendingDocuments: {domain.StatusUnderReview},
	domain.StatusApproved:         {domain.StatusClosed},
	domain.StatusRejected:         {domain.StatusClosed},
	domain.StatusClosed:           {},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to domain.ClaimStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given status.
func AllowedTransitions(from domain.ClaimStatus) []domain.ClaimStatus {
	return transitions[from]
}

// IsTerminal reports whether a status ends the lifecycle.
func IsTerminal(s domain.ClaimStatus) bool {
	return s == domain.StatusClosed
}

// ValidStatus reports whether s is a known claim status.
func ValidStatus(s domain.ClaimStatus) bool {
	_, ok := transitions[s]
	return ok
}
