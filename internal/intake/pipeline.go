package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// MessageStore persists the processed-message trace. Processed() backed by
// the provider-id unique index is the idempotency mechanism for the whole
// intake path.
type MessageStore interface {
	ThreadStore
	Processed(ctx context.Context, providerID string) (bool, error)
	Record(ctx context.Context, rec *domain.MessageRecord) error
	DeadLetter(ctx context.Context, providerID string, raw []byte, reason string) error
}

// DocumentIntaker registers attachments against a claim. Failures are
// per-attachment and never abort message processing.
type DocumentIntaker interface {
	IntakeAttachment(ctx context.Context, claimID string, ref domain.AttachmentRef) (*domain.Document, error)
}

// Notifier sends the customer acknowledgement. Best-effort: the boolean is
// surfaced, never an error.
type Notifier interface {
	ClaimReceived(ctx context.Context, claim *domain.Claim) bool
}

// Outcome summarizes what the pipeline did with one message.
type Outcome struct {
	Disposition domain.MessageDisposition
	Duplicate   bool
	Claim       *domain.Claim
	EmailSent   bool
}

// Pipeline orchestrates intake for one normalized message: keyword filter,
// thread correlation, extraction, claim creation/linking, document intake,
// and the acknowledgement email.
type Pipeline struct {
	messages   MessageStore
	correlator *Correlator
	extractor  *Extractor
	claims     *claims.Service
	documents  DocumentIntaker
	notifier   Notifier
}

// NewPipeline wires the intake pipeline. notifier may be nil (acks disabled).
func NewPipeline(messages MessageStore, correlator *Correlator, extractor *Extractor,
	claimSvc *claims.Service, documents DocumentIntaker, notifier Notifier) *Pipeline {
	return &Pipeline{
		messages:   messages,
		correlator: correlator,
		extractor:  extractor,
		claims:     claimSvc,
		documents:  documents,
		notifier:   notifier,
	}
}

// ProcessMessage runs the full intake flow for one message. Re-processing a
// provider id that was already handled is a no-op, so at-least-once
// delivery and crash-restarts never double-create claims.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *domain.InboundMessage) (*Outcome, error) {
	done, err := p.messages.Processed(ctx, msg.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if done {
		return &Outcome{Duplicate: true}, nil
	}

	if !IsClaimRelated(msg.Subject, msg.BodyText, msg.BodyHTML) {
		if err := p.record(ctx, msg, domain.DispositionIgnored, ""); err != nil {
			return nil, err
		}
		logger.Debug("message ignored by keyword filter", "provider_id", msg.ProviderID)
		return &Outcome{Disposition: domain.DispositionIgnored}, nil
	}

	correlation, err := p.correlator.Classify(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("thread correlation: %w", err)
	}

	if correlation.Kind == ClassifyFollowUp {
		return p.processFollowUp(ctx, msg, correlation.ClaimID)
	}
	return p.processNew(ctx, msg, correlation)
}

func (p *Pipeline) processNew(ctx context.Context, msg *domain.InboundMessage, correlation CorrelationResult) (*Outcome, error) {
	fields := p.extractor.Extract(ctx, msg.Subject, msg.BodyText)

	claim, created, err := p.claims.Create(ctx, msg, fields)
	if err != nil {
		return nil, fmt.Errorf("creating claim: %w", err)
	}
	if !created {
		// Another worker won the race, or a crash lost the trace row after
		// the claim committed. Re-record so Processed() holds from now on
		// and the thread lookup sees this message; Record tolerates the
		// concurrent-winner conflict.
		if err := p.record(ctx, msg, domain.DispositionNewClaim, claim.ID); err != nil {
			return nil, err
		}
		return &Outcome{Duplicate: true, Claim: claim}, nil
	}

	if correlation.Ambiguous {
		if err := p.claims.RecordNote(ctx, claim.ID, correlation.Note); err != nil {
			logger.Warn("failed to record correlation note", "claim_id", claim.ID, "error", err.Error())
		}
	}

	p.intakeAttachments(ctx, claim.ID, msg)

	if err := p.record(ctx, msg, domain.DispositionNewClaim, claim.ID); err != nil {
		return nil, err
	}

	emailSent := false
	if p.notifier != nil {
		emailSent = p.notifier.ClaimReceived(ctx, claim)
	}

	return &Outcome{
		Disposition: domain.DispositionNewClaim,
		Claim:       claim,
		EmailSent:   emailSent,
	}, nil
}

func (p *Pipeline) processFollowUp(ctx context.Context, msg *domain.InboundMessage, claimID string) (*Outcome, error) {
	if err := p.claims.LinkFollowUp(ctx, claimID, msg); err != nil {
		return nil, fmt.Errorf("linking follow-up: %w", err)
	}

	p.intakeAttachments(ctx, claimID, msg)

	if err := p.record(ctx, msg, domain.DispositionFollowUp, claimID); err != nil {
		return nil, err
	}

	claim, err := p.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Disposition: domain.DispositionFollowUp, Claim: claim}, nil
}

// intakeAttachments registers each attachment independently; one failed
// upload must not lose the message or its siblings.
func (p *Pipeline) intakeAttachments(ctx context.Context, claimID string, msg *domain.InboundMessage) {
	if p.documents == nil {
		return
	}
	for _, ref := range msg.Attachments {
		if _, err := p.documents.IntakeAttachment(ctx, claimID, ref); err != nil {
			logger.Warn("attachment intake failed",
				"claim_id", claimID,
				"filename", ref.Filename,
				"error", err.Error())
		}
	}
}

func (p *Pipeline) record(ctx context.Context, msg *domain.InboundMessage, disp domain.MessageDisposition, claimID string) error {
	rec := &domain.MessageRecord{
		ProviderID:  msg.ProviderID,
		ThreadID:    msg.ThreadID,
		Sender:      msg.FromAddress,
		Subject:     msg.Subject,
		ClaimID:     claimID,
		Disposition: disp,
		ReceivedAt:  msg.ReceivedAt,
		ProcessedAt: time.Now().UTC(),
	}
	if err := p.messages.Record(ctx, rec); err != nil {
		return fmt.Errorf("recording message: %w", err)
	}
	return nil
}
