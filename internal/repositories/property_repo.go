package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

type PropertyRepo struct {
	pool *pgxpool.Pool
}

func NewPropertyRepo(pool *pgxpool.Pool) *PropertyRepo {
	return &PropertyRepo{pool: pool}
}

const propertyColumns = `id, owner_user_id, title, address, description, rent_amount, deposit_amount,
		       property_type, bedrooms, bathrooms, area_sqft, image_url, images, amenities,
		       is_available, created_at, updated_at`

func scanProperty(row interface{ Scan(dest ...any) error }) (*models.Property, error) {
	var p models.Property
	err := row.Scan(&p.ID, &p.OwnerUserID, &p.Title, &p.Address, &p.Description, &p.RentAmount, &p.DepositAmount,
		&p.PropertyType, &p.Bedrooms, &p.Bathrooms, &p.AreaSqft, &p.ImageURL, &p.Images, &p.Amenities,
		&p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PropertyRepo) Create(ctx context.Context, p *models.Property) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO properties (owner_user_id, title, address, description, rent_amount, deposit_amount,
		                        property_type, bedrooms, bathrooms, area_sqft, image_url, images, amenities,
		                        is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		RETURNING id, updated_at
	`, p.OwnerUserID, p.Title, p.Address, p.Description, p.RentAmount, p.DepositAmount,
		p.PropertyType, p.Bedrooms, p.Bathrooms, p.AreaSqft, p.ImageURL, textArray(p.Images), textArray(p.Amenities),
		p.IsAvailable, p.CreatedAt,
	).Scan(&p.ID, &p.UpdatedAt)
}

// Update stores the owner-editable fields. Ownership and availability are
// not touched.
func (r *PropertyRepo) Update(ctx context.Context, p *models.Property) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE properties
		SET title = $1, address = $2, description = $3, rent_amount = $4, deposit_amount = $5,
		    property_type = $6, bedrooms = $7, bathrooms = $8, area_sqft = $9,
		    image_url = $10, images = $11, amenities = $12, updated_at = $13
		WHERE id = $14
	`, p.Title, p.Address, p.Description, p.RentAmount, p.DepositAmount,
		p.PropertyType, p.Bedrooms, p.Bathrooms, p.AreaSqft,
		p.ImageURL, textArray(p.Images), textArray(p.Amenities), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// textArray keeps a nil slice from being written as NULL.
func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (r *PropertyRepo) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	p, err := scanProperty(r.pool.QueryRow(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PropertyRepo) List(ctx context.Context, f PropertyFilter) ([]models.Property, error) {
	var w whereBuilder
	if f.OwnerUserID != nil {
		w.add("owner_user_id = $%d", *f.OwnerUserID)
	}
	if f.AvailableOnly {
		w.add("is_available = $%d", true)
	}
	query := `SELECT ` + propertyColumns + ` FROM properties` + w.where() + ` ORDER BY id DESC` + w.page(f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *p)
	}
	return props, rows.Err()
}

func (r *PropertyRepo) SetAvailable(ctx context.Context, id int64, available bool, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE properties SET is_available = $1, updated_at = $2 WHERE id = $3
	`, available, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
