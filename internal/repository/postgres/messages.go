package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/voyagecover/claims-intake/internal/domain"
)

// MessageRepo persists the inbound-message trace and the dead-letter queue.
// It implements intake.MessageStore.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Processed reports whether a provider id was already handled. This backs
// the Redis seen-cache: Redis is the fast path, this is the truth.
func (r *MessageRepo) Processed(ctx context.Context, providerID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inbound_messages WHERE provider_id = $1)`,
		providerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return exists, nil
}

// Record writes the processed-message trace. A provider-id conflict means a
// concurrent worker recorded it first; that is not an error.
func (r *MessageRepo) Record(ctx context.Context, rec *domain.MessageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (provider_id, thread_id, sender, subject, claim_id,
		                              disposition, received_at, processed_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8)
	`, rec.ProviderID, rec.ThreadID, rec.Sender, rec.Subject, rec.ClaimID,
		rec.Disposition, rec.ReceivedAt, rec.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil
		}
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// DeadLetter stores a message that could not be parsed, keeping the raw
// payload for inspection and replay.
func (r *MessageRepo) DeadLetter(ctx context.Context, providerID string, raw []byte, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letter_messages (provider_id, raw_payload, reason, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (provider_id) DO NOTHING
	`, providerID, raw, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("dead letter message: %w", err)
	}
	return nil
}

// EarlierMessageInThread returns the most recent trace row in a thread
// received strictly before the given time, or nil for a fresh thread.
func (r *MessageRepo) EarlierMessageInThread(ctx context.Context, threadID string, before time.Time) (*domain.MessageRecord, error) {
	if threadID == "" {
		return nil, nil
	}

	rec := &domain.MessageRecord{}
	var claimID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT provider_id, thread_id, sender, COALESCE(subject,''), claim_id,
		       disposition, received_at, processed_at
		FROM inbound_messages
		WHERE thread_id = $1 AND received_at < $2
		ORDER BY received_at DESC
		LIMIT 1
	`, threadID, before).Scan(
		&rec.ProviderID, &rec.ThreadID, &rec.Sender, &rec.Subject, &claimID,
		&rec.Disposition, &rec.ReceivedAt, &rec.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("thread lookup: %w", err)
	}
	rec.ClaimID = claimID.String
	return rec, nil
}

// LatestClaimBySender returns the most recently created claim for a sender
// address, or "" when the sender has none.
func (r *MessageRepo) LatestClaimBySender(ctx context.Context, sender string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM claims
		WHERE customer_email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, sender).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sender claim lookup: %w", err)
	}
	return id, nil
}
