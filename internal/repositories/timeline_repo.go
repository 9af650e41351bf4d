package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rental-marketplace/backend/internal/models"
)

// TimelineRepo is the append-only store of escrow timeline events. Events are
// never updated or deleted.
type TimelineRepo struct {
	pool *pgxpool.Pool
}

func NewTimelineRepo(pool *pgxpool.Pool) *TimelineRepo {
	return &TimelineRepo{pool: pool}
}

func insertTimelineEvent(ctx context.Context, q querier, ev *models.EscrowTimelineEvent) error {
	return q.QueryRow(ctx, `
		INSERT INTO escrow_timeline_events (escrow_id, event_type, title, description, actor_user_id, amount,
		                                    transaction_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, ev.EscrowID, ev.EventType, ev.Title, ev.Description, ev.ActorUserID, ev.Amount,
		ev.TransactionHash, ev.Metadata, ev.CreatedAt,
	).Scan(&ev.ID)
}

// ListByEscrow returns events in insertion order.
func (r *TimelineRepo) ListByEscrow(ctx context.Context, escrowID int64, limit, offset int) ([]models.EscrowTimelineEvent, error) {
	var w whereBuilder
	w.add("escrow_id = $%d", escrowID)
	query := `
		SELECT id, escrow_id, event_type, title, description, actor_user_id, amount, transaction_hash, metadata, created_at
		FROM escrow_timeline_events` + w.where() + ` ORDER BY id ASC` + w.page(limit, offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.EscrowTimelineEvent
	for rows.Next() {
		var ev models.EscrowTimelineEvent
		if err := rows.Scan(&ev.ID, &ev.EscrowID, &ev.EventType, &ev.Title, &ev.Description, &ev.ActorUserID,
			&ev.Amount, &ev.TransactionHash, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
