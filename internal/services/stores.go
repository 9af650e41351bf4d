package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/metrics"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/rbac"
	"github.com/rental-marketplace/backend/internal/repositories"
)

// Store contracts. Both the pgx repositories and memstore satisfy them.

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
	UpdateLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

type PropertyStore interface {
	Create(ctx context.Context, p *models.Property) error
	GetByID(ctx context.Context, id int64) (*models.Property, error)
	List(ctx context.Context, f repositories.PropertyFilter) ([]models.Property, error)
	Update(ctx context.Context, p *models.Property) error
	SetAvailable(ctx context.Context, id int64, available bool, at time.Time) error
}

type RentalStore interface {
	Create(ctx context.Context, ra *models.RentalAgreement) error
	GetByID(ctx context.Context, id int64) (*models.RentalAgreement, error)
	Transition(ctx context.Context, ra *models.RentalAgreement, from string) error
	List(ctx context.Context, f repositories.RentalFilter) ([]models.RentalAgreement, error)
}

type ReceiptStore interface {
	Create(ctx context.Context, rc *models.RentalReceipt) error
	GetByID(ctx context.Context, id int64) (*models.RentalReceipt, error)
	GetByRentalID(ctx context.Context, rentalID int64) (*models.RentalReceipt, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]models.RentalReceipt, error)
}

// EscrowStore persists an account together with exactly one timeline event.
type EscrowStore interface {
	Create(ctx context.Context, e *models.EscrowAccount, ev *models.EscrowTimelineEvent) error
	GetByID(ctx context.Context, id int64) (*models.EscrowAccount, error)
	GetByRentalID(ctx context.Context, rentalID int64) (*models.EscrowAccount, error)
	Transition(ctx context.Context, e *models.EscrowAccount, from string, ev *models.EscrowTimelineEvent) error
	AppendEvent(ctx context.Context, ev *models.EscrowTimelineEvent, status string) error
	List(ctx context.Context, f repositories.EscrowFilter) ([]models.EscrowAccount, error)
}

type TimelineStore interface {
	ListByEscrow(ctx context.Context, escrowID int64, limit, offset int) ([]models.EscrowTimelineEvent, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID int64, limit, offset int) ([]models.AuditLog, error)
}

// Option configures the lifecycle services.
type Option func(*options)

type options struct {
	now     func() time.Time
	metrics *metrics.LifecycleMetrics
}

func defaultOptions() options {
	return options{now: time.Now}
}

// WithClock overrides the time source. Tests use it to step past deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(o *options) { o.metrics = m }
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// rejectionReason maps a lifecycle error to a low-cardinality metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrDeadlineNotReached):
		return "deadline_not_reached"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	}
	return "internal"
}

// requirePermission checks the caller's registered role against the rbac
// table. A caller without a user record has no role and is forbidden.
func requirePermission(ctx context.Context, users UserStore, caller uuid.UUID, permission string) error {
	user, err := users.GetByID(ctx, caller)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("caller has no registered role: %w", models.ErrForbidden)
	}
	if err != nil {
		return err
	}
	if !rbac.HasPermission(user.Role, permission) {
		return fmt.Errorf("role %q lacks %s: %w", user.Role, permission, models.ErrForbidden)
	}
	return nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
