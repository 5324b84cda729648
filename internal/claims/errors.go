package claims

import "errors"

var (
	// ErrNotFound indicates the claim id does not exist.
	ErrNotFound = errors.New("claim not found")

	// ErrInvalidTransition indicates the requested status change is not in
	// the transition graph. The claim is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClaimNumberTaken indicates a claim-number collision at the store.
	// The service retries with a fresh number.
	ErrClaimNumberTaken = errors.New("claim number already exists")

	// ErrDuplicateSourceMessage indicates a claim already references the
	// source message id. Create treats this as a no-op, not a failure.
	ErrDuplicateSourceMessage = errors.New("claim already exists for source message")
)
