package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkozyrev/codeshop/internal/models"
	pkgerrors "github.com/dkozyrev/codeshop/pkg/errors"
	"github.com/lib/pq"
)

type PostgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product == nil {
		return pkgerrors.ErrInvalidInput
	}
	if product.Name == "" {
		return fmt.Errorf("%w: name is required", pkgerrors.ErrInvalidInput)
	}
	if product.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", pkgerrors.ErrInvalidInput)
	}

	query := `
	INSERT INTO products (name, description, platform, price_cents, is_active)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Platform,
		product.PriceCents,
		product.IsActive,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pkgerrors.ErrProductNameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) Update(ctx context.Context, product *models.Product) error {
	if product == nil || product.ID == 0 {
		return pkgerrors.ErrInvalidInput
	}

	query := `
	UPDATE products
	SET name = $1, description = $2, platform = $3, price_cents = $4, is_active = $5, updated_at = now()
	WHERE id = $6
	RETURNING updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Platform,
		product.PriceCents,
		product.IsActive,
		product.ID,
	).Scan(&product.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pkgerrors.ErrProductNameTaken
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrProductNotFound
	case err != nil:
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// Deactivate flips is_active off. Products are never hard-deleted once they
// have sold codes, so retirement is always a soft operation.
func (r *PostgresProductRepository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE products SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrProductNotFound
	}
	return nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	query := `
	SELECT p.id, p.name, p.description, p.platform, p.price_cents, p.is_active, p.created_at, p.updated_at,
	       (SELECT count(*) FROM game_codes gc WHERE gc.product_id = p.id AND NOT gc.is_sold) AS available
	FROM products p
	WHERE p.id = $1
	`
	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Platform,
		&p.PriceCents,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.AvailableCodes,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrProductNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (r *PostgresProductRepository) ListActive(ctx context.Context) ([]models.Product, error) {
	return r.list(ctx, true)
}

func (r *PostgresProductRepository) ListAll(ctx context.Context) ([]models.Product, error) {
	return r.list(ctx, false)
}

func (r *PostgresProductRepository) list(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := `
	SELECT p.id, p.name, p.description, p.platform, p.price_cents, p.is_active, p.created_at, p.updated_at,
	       (SELECT count(*) FROM game_codes gc WHERE gc.product_id = p.id AND NOT gc.is_sold) AS available
	FROM products p
	WHERE ($1 = false OR p.is_active)
	ORDER BY p.name
	`
	rows, err := r.db.QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Platform,
			&p.PriceCents,
			&p.IsActive,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.AvailableCodes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}
