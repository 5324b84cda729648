// Package claims owns the claim entity and its status lifecycle. Claims are
// mutated only through this service; every change appends an audit row.
package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// maxNumberAttempts bounds the claim-number collision retry loop. With four
// random digits per day a handful of retries is plenty.
const maxNumberAttempts = 25

// ListFilter narrows List results.
type ListFilter struct {
	Status domain.ClaimStatus
	Limit  int
	Offset int
}

// Repository is the persistence contract for claims. Implementations must
// make Create atomic (claim + initial audit row) and must serialize
// Transition per claim row (single-writer discipline).
type Repository interface {
	// Create persists a new claim and its initial status update atomically.
	// Returns ErrClaimNumberTaken or ErrDuplicateSourceMessage on the
	// respective unique-index conflicts.
	Create(ctx context.Context, c *domain.Claim, initial *domain.StatusUpdate) error

	ByID(ctx context.Context, id string) (*domain.Claim, error)
	BySourceMessage(ctx context.Context, providerID string) (*domain.Claim, error)
	List(ctx context.Context, f ListFilter) ([]domain.Claim, int, error)

	// Transition locks the claim row, validates the move with CanTransition
	// under the lock, updates status/updated_at (and closed_at on CLOSED),
	// and appends the audit row, all in one transaction.
	Transition(ctx context.Context, claimID string, to domain.ClaimStatus, reason, actor string) (*domain.Claim, error)

	// AppendNote records an audit entry that does not change status
	// (old_status == new_status).
	AppendNote(ctx context.Context, claimID, reason, actor string) error

	StatusHistory(ctx context.Context, claimID string) ([]domain.StatusUpdate, error)
}

// Service drives the claim lifecycle.
type Service struct {
	repo    Repository
	numbers *NumberGenerator
	now     func() time.Time
}

// NewService creates the lifecycle service.
func NewService(repo Repository, numbers *NumberGenerator) *Service {
	return &Service{repo: repo, numbers: numbers, now: time.Now}
}

// Create allocates a new claim from an inbound message and its extracted
// fields. Idempotent on the message's provider id: if a claim already
// references it, that claim is returned and created is false. Safe under
// at-least-once delivery and crash-retry.
func (s *Service) Create(ctx context.Context, msg *domain.InboundMessage, fields domain.ExtractedFields) (*domain.Claim, bool, error) {
	if existing, err := s.repo.BySourceMessage(ctx, msg.ProviderID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("checking source message: %w", err)
	}

	now := s.now().UTC()
	claim := &domain.Claim{
		ID:                  uuid.NewString(),
		SourceMessageID:     msg.ProviderID,
		CustomerName:        fields.CustomerName,
		CustomerEmail:       msg.FromAddress,
		PolicyNumber:        fields.PolicyNumber,
		ClaimType:           fields.ClaimType,
		IncidentDate:        fields.IncidentDate,
		IncidentDescription: fields.IncidentDescription,
		EstimatedAmount:     fields.EstimatedAmount,
		Status:              domain.StatusInitialNotification,
		ExtractedBy:         fields.Provenance,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if claim.CustomerName == "" {
		claim.CustomerName = msg.FromAddress
	}
	if claim.ClaimType == "" {
		claim.ClaimType = domain.TypeOther
	}

	created, err := s.persistNew(ctx, claim, "claim created from email intake")
	if err != nil {
		if errors.Is(err, ErrDuplicateSourceMessage) {
			// Lost a create race for the same message; return the winner
			existing, gerr := s.repo.BySourceMessage(ctx, msg.ProviderID)
			if gerr != nil {
				return nil, false, fmt.Errorf("fetching claim after duplicate create: %w", gerr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	logger.Info("claim created",
		"claim_number", created.ClaimNumber,
		"customer_email", created.CustomerEmail,
		"extracted_by", string(created.ExtractedBy))
	return created, true, nil
}

// CreateFromForm allocates a claim from a structured web-form submission,
// bypassing the email path. The synthetic source id keeps the idempotency
// column non-null without colliding with provider ids.
func (s *Service) CreateFromForm(ctx context.Context, fields domain.ExtractedFields, customerEmail string) (*domain.Claim, error) {
	now := s.now().UTC()
	claim := &domain.Claim{
		ID:                  uuid.NewString(),
		SourceMessageID:     "webform-" + uuid.NewString(),
		CustomerName:        fields.CustomerName,
		CustomerEmail:       customerEmail,
		PolicyNumber:        fields.PolicyNumber,
		ClaimType:           fields.ClaimType,
		IncidentDate:        fields.IncidentDate,
		IncidentDescription: fields.IncidentDescription,
		EstimatedAmount:     fields.EstimatedAmount,
		Status:              domain.StatusInitialNotification,
		ExtractedBy:         domain.ProvenanceManual,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if claim.ClaimType == "" {
		claim.ClaimType = domain.TypeOther
	}

	created, err := s.persistNew(ctx, claim, "claim created from web form")
	if err != nil {
		return nil, err
	}
	return created, nil
}

// persistNew writes the claim, retrying number collisions with fresh numbers.
func (s *Service) persistNew(ctx context.Context, claim *domain.Claim, reason string) (*domain.Claim, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		claim.ClaimNumber = s.numbers.Next(s.now())

		initial := &domain.StatusUpdate{
			ID:        uuid.NewString(),
			ClaimID:   claim.ID,
			OldStatus: nil,
			NewStatus: claim.Status,
			Reason:    reason,
			Actor:     domain.SystemActor,
			CreatedAt: claim.CreatedAt,
		}

		err := s.repo.Create(ctx, claim, initial)
		if err == nil {
			return claim, nil
		}
		if errors.Is(err, ErrClaimNumberTaken) {
			continue
		}
		return nil, fmt.Errorf("creating claim: %w", err)
	}
	return nil, fmt.Errorf("creating claim: exhausted %d claim-number attempts", maxNumberAttempts)
}

// Get returns a claim by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Claim, error) {
	return s.repo.ByID(ctx, id)
}

// List returns claims matching the filter plus the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Claim, int, error) {
	return s.repo.List(ctx, f)
}

// History returns the append-only audit trail, oldest first.
func (s *Service) History(ctx context.Context, claimID string) ([]domain.StatusUpdate, error) {
	return s.repo.StatusHistory(ctx, claimID)
}

// Transition moves a claim to a new status. Fails with ErrInvalidTransition
// when the move is not in the graph, leaving the claim unchanged. All
// transitions are audited, including system-triggered ones.
func (s *Service) Transition(ctx context.Context, claimID string, to domain.ClaimStatus, reason, actor string) (*domain.Claim, error) {
	if !ValidStatus(to) {
		return nil, ErrInvalidTransition
	}
	if actor == "" {
		actor = domain.SystemActor
	}

	claim, err := s.repo.Transition(ctx, claimID, to, reason, actor)
	if err != nil {
		return nil, err
	}

	logger.Info("claim transitioned",
		"claim_number", claim.ClaimNumber,
		"status", string(claim.Status),
		"actor", actor)
	return claim, nil
}

// LinkFollowUp records that a message continues an existing claim. Status
// does not change; the association lands in the audit trail so analysts see
// the thread activity.
func (s *Service) LinkFollowUp(ctx context.Context, claimID string, msg *domain.InboundMessage) error {
	if _, err := s.repo.ByID(ctx, claimID); err != nil {
		return err
	}
	reason := fmt.Sprintf("follow-up email received (message %s)", msg.ProviderID)
	return s.repo.AppendNote(ctx, claimID, reason, domain.SystemActor)
}

// RecordNote appends a non-transition audit entry, e.g. a correlation
// ambiguity flag.
func (s *Service) RecordNote(ctx context.Context, claimID, reason string) error {
	return s.repo.AppendNote(ctx, claimID, reason, domain.SystemActor)
}
