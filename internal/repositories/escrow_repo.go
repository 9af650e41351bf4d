package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, rental_id, property_id, landlord_user_id, tenant_user_id, amount, status,
		       submission_deadline, smart_contract_address, transaction_hash, refund_amount,
		       dispute_reason, disputed_from, expired_at, created_at, updated_at`

func scanEscrow(row interface{ Scan(dest ...any) error }) (*models.EscrowAccount, error) {
	var e models.EscrowAccount
	err := row.Scan(&e.ID, &e.RentalID, &e.PropertyID, &e.LandlordUserID, &e.TenantUserID, &e.Amount, &e.Status,
		&e.SubmissionDeadline, &e.SmartContractAddress, &e.TransactionHash, &e.RefundAmount,
		&e.DisputeReason, &e.DisputedFrom, &e.ExpiredAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts the account and its creation event in one transaction.
func (r *EscrowRepo) Create(ctx context.Context, e *models.EscrowAccount, ev *models.EscrowTimelineEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO escrow_accounts (rental_id, property_id, landlord_user_id, tenant_user_id, amount, status,
		                             submission_deadline, smart_contract_address, transaction_hash, refund_amount,
		                             dispute_reason, disputed_from, expired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, e.RentalID, e.PropertyID, e.LandlordUserID, e.TenantUserID, e.Amount, e.Status,
		e.SubmissionDeadline, e.SmartContractAddress, e.TransactionHash, e.RefundAmount,
		e.DisputeReason, e.DisputedFrom, e.ExpiredAt, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("rental %d already has an escrow account: %w", e.RentalID, models.ErrInvalidState)
	}
	if err != nil {
		return err
	}

	ev.EscrowID = e.ID
	if err := insertTimelineEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id int64) (*models.EscrowAccount, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r *EscrowRepo) GetByRentalID(ctx context.Context, rentalID int64) (*models.EscrowAccount, error) {
	e, err := scanEscrow(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_accounts WHERE rental_id = $1`, rentalID))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Transition writes the mutated account and appends ev in one transaction.
// The update only applies while the stored status is still `from`, so two
// racing transitions cannot both succeed.
func (r *EscrowRepo) Transition(ctx context.Context, e *models.EscrowAccount, from string, ev *models.EscrowTimelineEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE escrow_accounts SET
			status = $1, smart_contract_address = $2, transaction_hash = $3, refund_amount = $4,
			dispute_reason = $5, disputed_from = $6, expired_at = $7, updated_at = $8
		WHERE id = $9 AND status = $10
	`, e.Status, e.SmartContractAddress, e.TransactionHash, e.RefundAmount,
		e.DisputeReason, e.DisputedFrom, e.ExpiredAt, e.UpdatedAt, e.ID, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow %d is no longer %s: %w", e.ID, from, models.ErrInvalidState)
	}

	ev.EscrowID = e.ID
	if err := insertTimelineEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *EscrowRepo) List(ctx context.Context, f EscrowFilter) ([]models.EscrowAccount, error) {
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
	if len(f.Statuses) > 0 {
		w.add("status = ANY($%d)", f.Statuses)
	}
	if f.DeadlineBefore != nil {
		w.add("submission_deadline < $%d", *f.DeadlineBefore)
	}
	query := `SELECT ` + escrowColumns + ` FROM escrow_accounts` + w.where() + ` ORDER BY id DESC` + w.page(f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.EscrowAccount
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *e)
	}
	return accounts, rows.Err()
}

// AppendEvent adds ev to the account's timeline without changing the account.
// The account row is locked first, so the event lands only while the account
// is still in status.
func (r *EscrowRepo) AppendEvent(ctx context.Context, ev *models.EscrowTimelineEvent, status string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM escrow_accounts WHERE id = $1 FOR UPDATE`, ev.EscrowID).Scan(&current)
	if err != nil {
		return notFound(err)
	}
	if current != status {
		return fmt.Errorf("escrow %d is %s, not %s: %w", ev.EscrowID, current, status, models.ErrInvalidState)
	}

	if err := insertTimelineEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
