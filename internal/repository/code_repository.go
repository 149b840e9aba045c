package repository

import (
	"context"

	"github.com/dkozyrev/codeshop/internal/models"
)

type CodeRepository interface {
	// BulkInsert stores already-encrypted codes for one product.
	BulkInsert(ctx context.Context, productID int64, encryptedCodes []string) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.GameCode, error)
	// DeleteUnsold removes a code only while it is unsold.
	DeleteUnsold(ctx context.Context, id int64) error
	CountUnsold(ctx context.Context, productID int64) (int64, error)
}
