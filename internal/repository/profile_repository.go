package repository

import (
	"context"

	"github.com/dkozyrev/codeshop/internal/models"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	List(ctx context.Context) ([]models.Profile, error)
	SetRole(ctx context.Context, userID int64, role models.Role) error
}
