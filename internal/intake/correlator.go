package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyagecover/claims-intake/internal/domain"
	"github.com/voyagecover/claims-intake/internal/llm"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// Classification says whether a message opens a new claim or continues one.
type Classification string

const (
	ClassifyNew      Classification = "NEW"
	ClassifyFollowUp Classification = "FOLLOW_UP"
)

// CorrelationResult carries the classification plus the follow-up target
// and an ambiguity flag for the audit trail.
type CorrelationResult struct {
	Kind    Classification
	ClaimID string
	// Ambiguous is set when the LLM tie-break failed and the correlator
	// fell open to NEW. A possibly-duplicate claim beats a silently
	// dropped notification.
	Ambiguous bool
	Note      string
}

// ThreadStore is the message-history lookup the correlator needs.
type ThreadStore interface {
	// EarlierMessageInThread returns the most recent message in the thread
	// received before the given time, or nil when the thread is fresh.
	EarlierMessageInThread(ctx context.Context, threadID string, before time.Time) (*domain.MessageRecord, error)
	// LatestClaimBySender returns the most recently reported claim id for
	// a sender address, or "" when the sender has none.
	LatestClaimBySender(ctx context.Context, sender string) (string, error)
}

// Correlator decides NEW vs FOLLOW_UP. The fresh-thread case is resolved
// deterministically with zero LLM calls; only genuinely ambiguous threads
// pay for a classification.
type Correlator struct {
	store   ThreadStore
	llm     llm.Client
	timeout time.Duration
}

// NewCorrelator creates a thread correlator.
func NewCorrelator(store ThreadStore, client llm.Client, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Correlator{store: store, llm: client, timeout: timeout}
}

const correlationPrompt = `An inbound email arrived in a thread that already contains earlier messages.
Decide whether this email reports a NEW incident or CONTINUES the existing conversation.
Answer with exactly one word: NEW or FOLLOW_UP.

Subject: %s

Body:
%s`

// Classify runs the correlation algorithm for one message.
func (c *Correlator) Classify(ctx context.Context, msg *domain.InboundMessage) (CorrelationResult, error) {
	prior, err := c.store.EarlierMessageInThread(ctx, msg.ThreadID, msg.ReceivedAt)
	if err != nil {
		return CorrelationResult{}, fmt.Errorf("thread lookup: %w", err)
	}

	// Fresh thread: first notification, no LLM needed. This is the common
	// case and must stay fast and free.
	if prior == nil {
		return CorrelationResult{Kind: ClassifyNew}, nil
	}

	target := prior.ClaimID
	if target == "" {
		// Thread exists but never produced a claim; fall back to the
		// sender's most recent claim as the follow-up candidate.
		target, err = c.store.LatestClaimBySender(ctx, msg.FromAddress)
		if err != nil {
			return CorrelationResult{}, fmt.Errorf("sender lookup: %w", err)
		}
	}
	if target == "" {
		// Nothing to follow up on
		return CorrelationResult{Kind: ClassifyNew}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.llm.Extract(callCtx, fmt.Sprintf(correlationPrompt, msg.Subject, truncate(msg.BodyText, 2000)))
	if err != nil {
		// Fail open: create a possibly-duplicate claim rather than drop
		// the notification, and flag it for the analyst.
		logger.Warn("thread correlation LLM failed, defaulting to NEW",
			"thread_id", msg.ThreadID, "error", err.Error())
		return CorrelationResult{
			Kind:      ClassifyNew,
			Ambiguous: true,
			Note:      "thread correlation unavailable; message classified NEW by default",
		}, nil
	}

	switch parseClassification(response) {
	case ClassifyFollowUp:
		return CorrelationResult{Kind: ClassifyFollowUp, ClaimID: target}, nil
	case ClassifyNew:
		return CorrelationResult{Kind: ClassifyNew}, nil
	default:
		logger.Warn("thread correlation response unparseable, defaulting to NEW",
			"thread_id", msg.ThreadID)
		return CorrelationResult{
			Kind:      ClassifyNew,
			Ambiguous: true,
			Note:      "thread correlation response unparseable; message classified NEW by default",
		}, nil
	}
}

// parseClassification accepts the answer anywhere in the response; models
// love to add prose around the word they were asked for.
func parseClassification(response string) Classification {
	upper := strings.ToUpper(response)
	switch {
	case strings.Contains(upper, "FOLLOW_UP"), strings.Contains(upper, "FOLLOW-UP"):
		return ClassifyFollowUp
	case strings.Contains(upper, "NEW"):
		return ClassifyNew
	default:
		return ""
	}
}
