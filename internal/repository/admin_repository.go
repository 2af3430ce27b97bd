package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/homework-review-api/internal/models"
)

// AdminRepository manages back-office accounts.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository constructs an AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// FindByUsername fetches an admin by login name.
func (r *AdminRepository) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.GetContext(ctx, &admin, `SELECT id, username, password_hash, created_at FROM admins WHERE username = $1`, username); err != nil {
		return nil, err
	}
	return &admin, nil
}

// FindByID fetches an admin by ID.
func (r *AdminRepository) FindByID(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.GetContext(ctx, &admin, `SELECT id, username, password_hash, created_at FROM admins WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &admin, nil
}

// CreateIfAbsent inserts the admin unless the username already exists and reports whether a row was added.
func (r *AdminRepository) CreateIfAbsent(ctx context.Context, admin *models.Admin) (bool, error) {
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	if admin.CreatedAt.IsZero() {
		admin.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admins (id, username, password_hash, created_at)
VALUES (:id, :username, :password_hash, :created_at) ON CONFLICT (username) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, admin)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed admin rows affected: %w", err)
	}
	return affected == 1, nil
}
