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

const uniqueViolation = "23505"

type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if profile == nil {
		return pkgerrors.ErrInvalidInput
	}
	if profile.Username == "" || profile.PasswordHash == "" {
		return fmt.Errorf("%w: username and password_hash are required", pkgerrors.ErrInvalidInput)
	}
	if profile.Role == "" {
		profile.Role = models.RoleCustomer
	}

	query := `
	INSERT INTO profiles (username, password_hash, role, balance_cents)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		profile.Username,
		profile.PasswordHash,
		profile.Role,
		profile.BalanceCents,
	).Scan(&profile.ID, &profile.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return pkgerrors.ErrUsernameExists
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	query := `SELECT id, username, password_hash, role, balance_cents, created_at FROM profiles WHERE id = $1`

	var p models.Profile
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.Role,
		&p.BalanceCents,
		&p.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get profile by id: %w", err)
	}
	return &p, nil
}

func (r *PostgresProfileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `SELECT id, username, password_hash, role, balance_cents, created_at FROM profiles WHERE username = $1`

	var p models.Profile
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.Role,
		&p.BalanceCents,
		&p.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get profile by username: %w", err)
	}
	return &p, nil
}

func (r *PostgresProfileRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	query := `SELECT balance_cents FROM profiles WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, pkgerrors.ErrUserNotFound
	case err != nil:
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (r *PostgresProfileRepository) List(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT id, username, role, balance_cents, created_at FROM profiles ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.Role, &p.BalanceCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *PostgresProfileRepository) SetRole(ctx context.Context, userID int64, role models.Role) error {
	switch role {
	case models.RoleCustomer, models.RoleAdmin, models.RoleSuperAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", pkgerrors.ErrInvalidInput, role)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET role = $1 WHERE id = $2`, role, userID)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}
