package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rental-marketplace/backend/internal/models"
)

// MaxPageSize caps the page a caller may ask for. A zero Limit in a filter
// means "no limit" and is reserved for internal scans.
const MaxPageSize = 100

type PropertyFilter struct {
	OwnerUserID   *uuid.UUID
	AvailableOnly bool
	Limit         int
	Offset        int
}

type RentalFilter struct {
	LandlordUserID *uuid.UUID
	TenantUserID   *uuid.UUID
	PartyUserID    *uuid.UUID // landlord or tenant
	PropertyID     *int64
	Statuses       []string
	StartsBefore   *time.Time
	Limit          int
	Offset         int
}

type EscrowFilter struct {
	LandlordUserID *uuid.UUID
	TenantUserID   *uuid.UUID
	PartyUserID    *uuid.UUID // landlord or tenant
	Statuses       []string
	DeadlineBefore *time.Time
	Limit          int
	Offset         int
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// whereBuilder collects positional conditions. Each condition is a format
// string whose verbs refer to the argument's position, e.g. "status = $%d"
// or "(a = $%[1]d OR b = $%[1]d)".
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) where() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
