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

type PostgresCodeRepository struct {
	db *sql.DB
}

func NewPostgresCodeRepository(db *sql.DB) *PostgresCodeRepository {
	return &PostgresCodeRepository{db: db}
}

// BulkInsert stores a batch of already-encrypted codes for one product in a
// single transaction, so a bad row never leaves half a batch behind.
func (r *PostgresCodeRepository) BulkInsert(ctx context.Context, productID int64, encryptedCodes []string) (int64, error) {
	if len(encryptedCodes) == 0 {
		return 0, fmt.Errorf("%w: no codes provided", pkgerrors.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return 0, fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return 0, fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "BulkInsert", "error", rbErr)
		}
		return 0, pkgerrors.ErrProductNotFound
	}

	const query = `INSERT INTO game_codes (product_id, encrypted_code) VALUES ($1, $2)`
	var inserted int64
	for _, code := range encryptedCodes {
		if _, err = tx.ExecContext(ctx, query, productID, code); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return 0, fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
			}
			return 0, fmt.Errorf("failed to insert game code: %w", err)
		}
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

func (r *PostgresCodeRepository) GetByID(ctx context.Context, id int64) (*models.GameCode, error) {
	query := `SELECT id, product_id, encrypted_code, is_sold, sold_at, order_id, created_at FROM game_codes WHERE id = $1`

	var gc models.GameCode
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&gc.ID,
		&gc.ProductID,
		&gc.EncryptedCode,
		&gc.IsSold,
		&gc.SoldAt,
		&gc.OrderID,
		&gc.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrCodeNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get game code: %w", err)
	}
	return &gc, nil
}

// DeleteUnsold removes a code, refusing if it was ever sold. Sold codes are
// purchase history and must survive.
func (r *PostgresCodeRepository) DeleteUnsold(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM game_codes WHERE id = $1 AND NOT is_sold`, id)
	if err != nil {
		return fmt.Errorf("failed to delete game code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete game code: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing deleted: distinguish missing from sold.
	var sold bool
	err = r.db.QueryRowContext(ctx, `SELECT is_sold FROM game_codes WHERE id = $1`, id).Scan(&sold)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrCodeNotFound
	case err != nil:
		return fmt.Errorf("failed to check game code: %w", err)
	case sold:
		return pkgerrors.ErrCodeSold
	default:
		return pkgerrors.ErrCodeNotFound
	}
}

func (r *PostgresCodeRepository) CountUnsold(ctx context.Context, productID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM game_codes WHERE product_id = $1 AND NOT is_sold`, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsold codes: %w", err)
	}
	return count, nil
}
