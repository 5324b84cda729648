// Package postgres implements the service repository interfaces against
// PostgreSQL using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/voyagecover/claims-intake/internal/claims"
	"github.com/voyagecover/claims-intake/internal/domain"
)

const uniqueViolation = "23505"

// ClaimRepo implements claims.Repository against PostgreSQL.
type ClaimRepo struct{ db *sql.DB }

// NewClaimRepo creates a Postgres-backed claim repository.
func NewClaimRepo(db *sql.DB) *ClaimRepo { return &ClaimRepo{db: db} }

const claimColumns = `id, claim_number, source_message_id, customer_name, customer_email,
	       policy_number, claim_type, incident_date, COALESCE(incident_description,''),
	       estimated_amount, status, extracted_by, created_at, updated_at, closed_at`

func scanClaim(row interface{ Scan(...interface{}) error }) (*domain.Claim, error) {
	c := &domain.Claim{}
	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.SourceMessageID, &c.CustomerName, &c.CustomerEmail,
		&c.PolicyNumber, &c.ClaimType, &c.IncidentDate, &c.IncidentDescription,
		&c.EstimatedAmount, &c.Status, &c.ExtractedBy, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt,
	)
	if err == sql.ErrNoRows {
		return nil, claims.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts the claim and its initial audit row in one transaction.
// Unique-index conflicts are translated to the service sentinel errors so
// the caller can retry numbers or recover the duplicate.
func (r *ClaimRepo) Create(ctx context.Context, c *domain.Claim, initial *domain.StatusUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create claim: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO claims (id, claim_number, source_message_id, customer_name, customer_email,
		                    policy_number, claim_type, incident_date, incident_description,
		                    estimated_amount, status, extracted_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, c.ID, c.ClaimNumber, c.SourceMessageID, c.CustomerName, c.CustomerEmail,
		c.PolicyNumber, c.ClaimType, c.IncidentDate, c.IncidentDescription,
		c.EstimatedAmount, c.Status, c.ExtractedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			switch pqErr.Constraint {
			case "claims_claim_number_key":
				return claims.ErrClaimNumberTaken
			case "claims_source_message_id_key":
				return claims.ErrDuplicateSourceMessage
			}
		}
		return fmt.Errorf("insert claim: %w", err)
	}

	if err := insertStatusUpdate(ctx, tx, initial); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ClaimRepo) ByID(ctx context.Context, id string) (*domain.Claim, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err != nil && !errors.Is(err, claims.ErrNotFound) {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, err
}

func (r *ClaimRepo) BySourceMessage(ctx context.Context, providerID string) (*domain.Claim, error) {
	c, err := scanClaim(r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE source_message_id = $1`, providerID))
	if err != nil && !errors.Is(err, claims.ErrNotFound) {
		return nil, fmt.Errorf("get claim by source message: %w", err)
	}
	return c, err
}

func (r *ClaimRepo) List(ctx context.Context, f claims.ListFilter) ([]domain.Claim, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM claims`
	args := []interface{}{}
	if f.Status != "" {
		countQ += ` WHERE status = $1`
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	q := `SELECT ` + claimColumns + ` FROM claims`
	qArgs := []interface{}{}
	idx := 1
	if f.Status != "" {
		q += fmt.Sprintf(" WHERE status = $%d", idx)
		qArgs = append(qArgs, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	qArgs = append(qArgs, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, qArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	return out, total, nil
}

// Transition locks the claim row, validates the move under the lock, and
// writes the new status plus the audit row atomically. The row lock is what
// serializes concurrent transitions on the same claim.
func (r *ClaimRepo) Transition(ctx context.Context, claimID string, to domain.ClaimStatus, reason, actor string) (*domain.Claim, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	c, err := scanClaim(tx.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, claimID))
	if errors.Is(err, claims.ErrNotFound) {
		return nil, claims.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock claim: %w", err)
	}

	if !claims.CanTransition(c.Status, to) {
		return nil, claims.ErrInvalidTransition
	}

	now := time.Now().UTC()
	var closedAt *time.Time
	if to == domain.StatusClosed {
		closedAt = &now
	} else {
		closedAt = c.ClosedAt
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE claims SET status = $1, updated_at = $2, closed_at = $3 WHERE id = $4
	`, to, now, closedAt, claimID); err != nil {
		return nil, fmt.Errorf("update claim status: %w", err)
	}

	old := c.Status
	if err := insertStatusUpdate(ctx, tx, &domain.StatusUpdate{
		ID:        uuid.NewString(),
		ClaimID:   claimID,
		OldStatus: &old,
		NewStatus: to,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	c.Status = to
	c.UpdatedAt = now
	c.ClosedAt = closedAt
	return c, nil
}

// AppendNote writes an audit entry with old_status == new_status.
func (r *ClaimRepo) AppendNote(ctx context.Context, claimID, reason, actor string) error {
	var status domain.ClaimStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM claims WHERE id = $1`, claimID).Scan(&status)
	if err == sql.ErrNoRows {
		return claims.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get claim status: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO status_updates (id, claim_id, old_status, new_status, reason, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), claimID, status, status, reason, actor, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	return nil
}

func (r *ClaimRepo) StatusHistory(ctx context.Context, claimID string) ([]domain.StatusUpdate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, claim_id, old_status, new_status, COALESCE(reason,''), actor, created_at
		FROM status_updates
		WHERE claim_id = $1
		ORDER BY created_at ASC
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusUpdate
	for rows.Next() {
		var u domain.StatusUpdate
		if err := rows.Scan(&u.ID, &u.ClaimID, &u.OldStatus, &u.NewStatus, &u.Reason, &u.Actor, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertStatusUpdate(ctx context.Context, tx execer, u *domain.StatusUpdate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO status_updates (id, claim_id, old_status, new_status, reason, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.ClaimID, u.OldStatus, u.NewStatus, u.Reason, u.Actor, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status update: %w", err)
	}
	return nil
}

var _ claims.Repository = (*ClaimRepo)(nil)
