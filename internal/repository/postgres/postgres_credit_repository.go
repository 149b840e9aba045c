package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dkozyrev/codeshop/internal/models"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
)

type PostgresCreditRequestRepository struct {
	db *sql.DB
}

func NewPostgresCreditRequestRepository(db *sql.DB) *PostgresCreditRequestRepository {
	return &PostgresCreditRequestRepository{db: db}
}

func (r *PostgresCreditRequestRepository) Create(ctx context.Context, req *models.CreditRequest) error {
	if req == nil {
		return pkgerrors.ErrInvalidInput
	}
	if req.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if req.ProofURL == "" {
		return fmt.Errorf("%w: proof_url is required", pkgerrors.ErrInvalidInput)
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO credit_requests (user_id, amount_cents, proof_url, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		req.UserID, req.AmountCents, req.ProofURL, models.CreditRequestPending,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credit request: %w", err)
	}
	req.Status = models.CreditRequestPending
	return nil
}

func (r *PostgresCreditRequestRepository) GetByID(ctx context.Context, id int64) (*models.CreditRequest, error) {
	var cr models.CreditRequest
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, proof_url, status, review_note, reviewed_by, reviewed_at, created_at
		 FROM credit_requests WHERE id = $1`,
		id,
	).Scan(&cr.ID, &cr.UserID, &cr.AmountCents, &cr.ProofURL, &cr.Status, &cr.ReviewNote, &cr.ReviewedBy, &cr.ReviewedAt, &cr.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrCreditRequestNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get credit request: %w", err)
	}
	return &cr, nil
}

func (r *PostgresCreditRequestRepository) ListByUser(ctx context.Context, userID int64) ([]models.CreditRequest, error) {
	return r.list(ctx,
		`SELECT id, user_id, amount_cents, proof_url, status, review_note, reviewed_by, reviewed_at, created_at
		 FROM credit_requests WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

func (r *PostgresCreditRequestRepository) ListByStatus(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error) {
	return r.list(ctx,
		`SELECT id, user_id, amount_cents, proof_url, status, review_note, reviewed_by, reviewed_at, created_at
		 FROM credit_requests WHERE status = $1 ORDER BY created_at`,
		status,
	)
}

func (r *PostgresCreditRequestRepository) list(ctx context.Context, query string, arg interface{}) ([]models.CreditRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit requests: %w", err)
	}
	defer rows.Close()

	var requests []models.CreditRequest
	for rows.Next() {
		var cr models.CreditRequest
		if err := rows.Scan(&cr.ID, &cr.UserID, &cr.AmountCents, &cr.ProofURL, &cr.Status, &cr.ReviewNote, &cr.ReviewedBy, &cr.ReviewedAt, &cr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit request: %w", err)
		}
		requests = append(requests, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credit requests: %w", err)
	}
	return requests, nil
}

// Approve reviews a pending request and credits the balance atomically.
// The status guard in the UPDATE makes review a once-only transition; the
// balance increment is a single atomic UPDATE, never read-modify-write.
func (r *PostgresCreditRequestRepository) Approve(ctx context.Context, requestID, reviewerID int64, note string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var userID, amount int64
	err = tx.QueryRowContext(ctx,
		`UPDATE credit_requests
		 SET status = $1, review_note = $2, reviewed_by = $3, reviewed_at = now()
		 WHERE id = $4 AND status = $5
		 RETURNING user_id, amount_cents`,
		models.CreditRequestApproved, note, reviewerID, requestID, models.CreditRequestPending,
	).Scan(&userID, &amount)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.pendingMissReason(ctx, requestID)
		}
		return 0, fmt.Errorf("failed to approve credit request: %w", err)
	}

	var newBalance int64
	err = tx.QueryRowContext(ctx,
		`UPDATE profiles SET balance_cents = balance_cents + $1 WHERE id = $2 RETURNING balance_cents`,
		amount, userID,
	).Scan(&newBalance)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return 0, pkgerrors.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit approval: %w", err)
	}

	slog.Info("credit request approved",
		"method", "Approve",
		"request_id", requestID,
		"user_id", userID,
		"amount_cents", amount,
		"reviewer_id", reviewerID)
	return newBalance, nil
}

func (r *PostgresCreditRequestRepository) Reject(ctx context.Context, requestID, reviewerID int64, note string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credit_requests
		 SET status = $1, review_note = $2, reviewed_by = $3, reviewed_at = now()
		 WHERE id = $4 AND status = $5`,
		models.CreditRequestRejected, note, reviewerID, requestID, models.CreditRequestPending,
	)
	if err != nil {
		return fmt.Errorf("failed to reject credit request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reject credit request: %w", err)
	}
	if affected == 0 {
		return r.pendingMissReason(ctx, requestID)
	}

	slog.Info("credit request rejected", "method", "Reject", "request_id", requestID, "reviewer_id", reviewerID)
	return nil
}

// pendingMissReason tells a missing request apart from an already reviewed
// one after a guarded update matched nothing.
func (r *PostgresCreditRequestRepository) pendingMissReason(ctx context.Context, requestID int64) error {
	var status models.CreditRequestStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM credit_requests WHERE id = $1`, requestID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrCreditRequestNotFound
	case err != nil:
		return fmt.Errorf("failed to check credit request: %w", err)
	default:
		return pkgerrors.ErrCreditRequestReviewed
	}
}
