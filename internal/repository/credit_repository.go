package repository

import (
	"context"

	"github.com/dkozyrev/codeshop/internal/models"
)

type CreditRequestRepository interface {
	Create(ctx context.Context, req *models.CreditRequest) error
	GetByID(ctx context.Context, id int64) (*models.CreditRequest, error)
	ListByUser(ctx context.Context, userID int64) ([]models.CreditRequest, error)
	ListByStatus(ctx context.Context, status models.CreditRequestStatus) ([]models.CreditRequest, error)
	// Approve flips a pending request to approved and credits the user's
	// balance in the same transaction. Returns the new balance.
	Approve(ctx context.Context, requestID, reviewerID int64, note string) (int64, error)
	// Reject flips a pending request to rejected. Reviewed requests are
	// immutable, so both operations fail on anything not pending.
	Reject(ctx context.Context, requestID, reviewerID int64, note string) error
}
