package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, phone, role, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING last_active_at
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.DisplayName, u.Phone, u.Role, u.CreatedAt).Scan(&u.LastActiveAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateEmail
	}
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, phone, role, created_at, last_active_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Phone, &u.Role, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, phone, role, created_at, last_active_at
		FROM users WHERE email = $1
	`, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Phone, &u.Role, &u.CreatedAt, &u.LastActiveAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_active_at = $1 WHERE id = $2`, at, id)
	return err
}

// UpdateProfile stores the contact fields of u.
func (r *UserRepo) UpdateProfile(ctx context.Context, u *models.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET display_name = $1, email = $2, phone = $3 WHERE id = $4
	`, u.DisplayName, strings.ToLower(u.Email), u.Phone, u.ID)
	if isUniqueViolation(err) {
		return models.ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
