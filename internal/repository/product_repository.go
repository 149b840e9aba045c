package repository

import (
	"context"

	"github.com/dkozyrev/codeshop/internal/models"
)

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Deactivate(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	// ListActive returns active products with their unsold code counts.
	ListActive(ctx context.Context) ([]models.Product, error)
	// ListAll returns every product regardless of active flag, for admins.
	ListAll(ctx context.Context) ([]models.Product, error)
}
