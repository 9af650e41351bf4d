package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

type ReceiptRepo struct {
	pool *pgxpool.Pool
}

func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

const receiptColumns = `id, owner_user_id, property_id, rental_id, name, description, image, attributes, created_at`

func scanReceipt(row interface{ Scan(dest ...any) error }) (*models.RentalReceipt, error) {
	var rc models.RentalReceipt
	err := row.Scan(&rc.ID, &rc.OwnerUserID, &rc.PropertyID, &rc.RentalID, &rc.Name, &rc.Description, &rc.Image,
		&rc.Attributes, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *ReceiptRepo) Create(ctx context.Context, rc *models.RentalReceipt) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO rental_receipts (owner_user_id, property_id, rental_id, name, description, image, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, rc.OwnerUserID, rc.PropertyID, rc.RentalID, rc.Name, rc.Description, rc.Image, rc.Attributes, rc.CreatedAt,
	).Scan(&rc.ID)
}

func (r *ReceiptRepo) GetByID(ctx context.Context, id int64) (*models.RentalReceipt, error) {
	rc, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM rental_receipts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rc, nil
}

func (r *ReceiptRepo) GetByRentalID(ctx context.Context, rentalID int64) (*models.RentalReceipt, error) {
	rc, err := scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM rental_receipts WHERE rental_id = $1`, rentalID))
	if err != nil {
		return nil, notFound(err)
	}
	return rc, nil
}

func (r *ReceiptRepo) ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]models.RentalReceipt, error) {
	var w whereBuilder
	w.add("owner_user_id = $%d", owner)
	query := `SELECT ` + receiptColumns + ` FROM rental_receipts` + w.where() + ` ORDER BY id DESC` + w.page(limit, offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.RentalReceipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *rc)
	}
	return receipts, rows.Err()
}
