package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

type RentalRepo struct {
	pool *pgxpool.Pool
}

func NewRentalRepo(pool *pgxpool.Pool) *RentalRepo {
	return &RentalRepo{pool: pool}
}

const rentalColumns = `id, property_id, landlord_user_id, tenant_user_id, status, start_date, end_date,
		       rent_amount, deposit_amount, nft_id, created_at, updated_at`

func scanRental(row interface{ Scan(dest ...any) error }) (*models.RentalAgreement, error) {
	var ra models.RentalAgreement
	err := row.Scan(&ra.ID, &ra.PropertyID, &ra.LandlordUserID, &ra.TenantUserID, &ra.Status, &ra.StartDate, &ra.EndDate,
		&ra.RentAmount, &ra.DepositAmount, &ra.NFTID, &ra.CreatedAt, &ra.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

// Create inserts a new agreement. A second non-terminal agreement for the
// same property violates uq_rentals_open_per_property and is reported as
// models.ErrInvalidState.
func (r *RentalRepo) Create(ctx context.Context, ra *models.RentalAgreement) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rental_agreements (property_id, landlord_user_id, tenant_user_id, status, start_date, end_date,
		                               rent_amount, deposit_amount, nft_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, ra.PropertyID, ra.LandlordUserID, ra.TenantUserID, ra.Status, ra.StartDate, ra.EndDate,
		ra.RentAmount, ra.DepositAmount, ra.NFTID, ra.CreatedAt, ra.UpdatedAt,
	).Scan(&ra.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("property %d already has an open agreement: %w", ra.PropertyID, models.ErrInvalidState)
	}
	return err
}

func (r *RentalRepo) GetByID(ctx context.Context, id int64) (*models.RentalAgreement, error) {
	ra, err := scanRental(r.pool.QueryRow(ctx, `SELECT `+rentalColumns+` FROM rental_agreements WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ra, nil
}

// Transition persists ra's status, receipt reference and update time, but only
// while the stored row still holds the status `from`.
func (r *RentalRepo) Transition(ctx context.Context, ra *models.RentalAgreement, from string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE rental_agreements SET status = $1, nft_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, ra.Status, ra.NFTID, ra.UpdatedAt, ra.ID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rental %d is no longer %s: %w", ra.ID, from, models.ErrInvalidState)
	}
	return nil
}

func (r *RentalRepo) List(ctx context.Context, f RentalFilter) ([]models.RentalAgreement, error) {
	var w whereBuilder
	if f.LandlordUserID != nil {
		w.add("landlord_user_id = $%d", *f.LandlordUserID)
	}
	if f.TenantUserID != nil {
		w.add("tenant_user_id = $%d", *f.TenantUserID)
	}
	if f.PartyUserID != nil {
		w.add("(landlord_user_id = $%[1]d OR tenant_user_id = $%[1]d)", *f.PartyUserID)
	}
	if f.PropertyID != nil {
		w.add("property_id = $%d", *f.PropertyID)
	}
	if len(f.Statuses) > 0 {
		w.add("status = ANY($%d)", f.Statuses)
	}
	if f.StartsBefore != nil {
		w.add("start_date <= $%d", *f.StartsBefore)
	}
	query := `SELECT ` + rentalColumns + ` FROM rental_agreements` + w.where() + ` ORDER BY id DESC` + w.page(f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []models.RentalAgreement
	for rows.Next() {
		ra, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *ra)
	}
	return rentals, rows.Err()
}
