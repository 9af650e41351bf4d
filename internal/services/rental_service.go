package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/metrics"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/rbac"
	"github.com/rental-marketplace/backend/internal/repositories"
	"go.uber.org/zap"
)

const entityRental = "rental"

// ReceiptMinter issues the proof-of-rental record on confirmation.
type ReceiptMinter interface {
	Mint(ctx context.Context, rental *models.RentalAgreement) (*models.RentalReceipt, error)
}

// EscrowCoupler lets the rental lifecycle open and withdraw the deposit
// escrow that belongs to an agreement.
type EscrowCoupler interface {
	OpenForRental(ctx context.Context, rental *models.RentalAgreement) (*models.EscrowAccount, error)
	CancelPendingForRental(ctx context.Context, rentalID int64) error
}

type RentalService struct {
	rentals    RentalStore
	properties PropertyStore
	users      UserStore
	audit      AuditStore
	minter     ReceiptMinter
	escrows    EscrowCoupler
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger
	now        func() time.Time
	metrics    *metrics.LifecycleMetrics
}

func NewRentalService(
	rentals RentalStore,
	properties PropertyStore,
	users UserStore,
	audit AuditStore,
	minter ReceiptMinter,
	escrows EscrowCoupler,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
	opts ...Option,
) *RentalService {
	o := applyOptions(opts)
	return &RentalService{
		rentals:    rentals,
		properties: properties,
		users:      users,
		audit:      audit,
		minter:     minter,
		escrows:    escrows,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
		now:        o.now,
		metrics:    o.metrics,
	}
}

func (s *RentalService) observe(op string, err *error) {
	if *err != nil {
		s.metrics.ObserveRejection(entityRental, op, rejectionReason(*err))
	}
}

func (s *RentalService) load(ctx context.Context, caller uuid.UUID, rentalID int64) (*models.RentalAgreement, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	ra, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("rental %d: %w", rentalID, err)
	}
	return ra, nil
}

func cloneRental(ra *models.RentalAgreement) *models.RentalAgreement {
	c := *ra
	if ra.NFTID != nil {
		c.NFTID = int64Ptr(*ra.NFTID)
	}
	return &c
}

// transition validates and stores cur -> to, writes the audit entry and
// publishes the change. mutate, when set, edits the new record before it is
// stored.
func (s *RentalService) transition(
	ctx context.Context,
	cur *models.RentalAgreement,
	to string,
	actorID *uuid.UUID,
	mutate func(*models.RentalAgreement),
) (*models.RentalAgreement, error) {
	if !models.IsValidRentalTransition(cur.Status, to) {
		return nil, fmt.Errorf("rental %d: %s -> %s: %w", cur.ID, cur.Status, to, models.ErrInvalidState)
	}

	from := cur.Status
	next := cloneRental(cur)
	next.Status = to
	next.UpdatedAt = s.now()
	if mutate != nil {
		mutate(next)
	}
	if !models.RentalHoldsReceipt(to) {
		next.NFTID = nil
	}

	if err := s.rentals.Transition(ctx, next, from); err != nil {
		return nil, err
	}

	actorType := models.ActorTypeUser
	if actorID == nil {
		actorType = models.ActorTypeSystem
	}
	// The stored transition is authoritative; a lost audit entry is only logged.
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("rental_status_%s_to_%s", from, to),
		EntityType:  entityRental,
		EntityID:    next.ID,
		Meta:        map[string]any{"old_status": from, "new_status": to},
		CreatedAt:   next.UpdatedAt,
	}); err != nil {
		s.log.Error("failed to write rental audit entry", zap.Int64("rental_id", next.ID), zap.Error(err))
	}

	s.metrics.ObserveTransition(entityRental, from, to)
	s.log.Info("rental transition",
		zap.Int64("rental_id", next.ID),
		zap.String("from", from),
		zap.String("to", to),
	)
	s.publish(ctx, next, from)
	return next, nil
}

func (s *RentalService) publish(ctx context.Context, ra *models.RentalAgreement, from string) {
	_ = s.publisher.Publish(ctx, events.StreamRental, events.Event{
		Type: events.EventRentalStatusChanged,
		Payload: map[string]any{
			"rental_id":   ra.ID,
			"property_id": ra.PropertyID,
			"old_status":  from,
			"new_status":  ra.Status,
		},
		Recipients: []uuid.UUID{ra.LandlordUserID, ra.TenantUserID},
		OccurredAt: ra.UpdatedAt,
	})
}

func (s *RentalService) setAvailable(ctx context.Context, propertyID int64, available bool) {
	if err := s.properties.SetAvailable(ctx, propertyID, available, s.now()); err != nil {
		s.log.Error("failed to update property availability",
			zap.Int64("property_id", propertyID),
			zap.Bool("available", available),
			zap.Error(err),
		)
	}
}

func (s *RentalService) cancelEscrow(ctx context.Context, rentalID int64) {
	if s.escrows == nil {
		return
	}
	if err := s.escrows.CancelPendingForRental(ctx, rentalID); err != nil {
		s.log.Error("failed to cancel rental escrow", zap.Int64("rental_id", rentalID), zap.Error(err))
	}
}

// Request creates an agreement in Requested for a tenant and takes the
// property off the market.
func (s *RentalService) Request(ctx context.Context, caller uuid.UUID, propertyID int64, start, end time.Time) (_ *models.RentalAgreement, err error) {
	defer s.observe("request", &err)

	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermRequestRental); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start date must be before end date: %w", models.ErrInvalidArgument)
	}

	prop, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", propertyID, err)
	}
	if prop.OwnerUserID == caller {
		return nil, fmt.Errorf("cannot rent your own property: %w", models.ErrForbidden)
	}
	if !prop.IsAvailable {
		return nil, fmt.Errorf("property %d is not available: %w", propertyID, models.ErrInvalidState)
	}
	open, err := s.rentals.List(ctx, repositories.RentalFilter{
		PropertyID: &propertyID,
		Statuses:   openRentalStatuses,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("property %d already has an open agreement: %w", propertyID, models.ErrInvalidState)
	}

	now := s.now()
	ra := &models.RentalAgreement{
		PropertyID:     prop.ID,
		LandlordUserID: prop.OwnerUserID,
		TenantUserID:   caller,
		Status:         models.RentalStatusRequested,
		StartDate:      start,
		EndDate:        end,
		RentAmount:     prop.RentAmount,
		DepositAmount:  prop.DepositAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.rentals.Create(ctx, ra); err != nil {
		return nil, err
	}
	s.setAvailable(ctx, prop.ID, false)

	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: uuidPtr(caller),
		ActorType:   models.ActorTypeUser,
		Action:      "rental_requested",
		EntityType:  entityRental,
		EntityID:    ra.ID,
		Meta:        map[string]any{"property_id": prop.ID},
		CreatedAt:   now,
	}); err != nil {
		s.log.Error("failed to write rental audit entry", zap.Int64("rental_id", ra.ID), zap.Error(err))
	}

	s.metrics.ObserveTransition(entityRental, "", models.RentalStatusRequested)
	s.log.Info("rental requested",
		zap.Int64("rental_id", ra.ID),
		zap.Int64("property_id", prop.ID),
		zap.String("tenant", caller.String()),
	)
	s.publish(ctx, ra, "")
	return ra, nil
}

var openRentalStatuses = []string{
	models.RentalStatusRequested,
	models.RentalStatusUnderReview,
	models.RentalStatusApproved,
	models.RentalStatusConfirmed,
	models.RentalStatusActive,
}

func (s *RentalService) MarkUnderReview(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("mark_under_review", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if ra.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can review a request: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermReviewRequests); err != nil {
		return nil, err
	}
	if ra.Status != models.RentalStatusRequested {
		return nil, fmt.Errorf("rental %d is %s: %w", ra.ID, ra.Status, models.ErrInvalidState)
	}
	return s.transition(ctx, ra, models.RentalStatusUnderReview, uuidPtr(caller), nil)
}

func (s *RentalService) Approve(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("approve", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if ra.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can approve a request: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermReviewRequests); err != nil {
		return nil, err
	}
	if ra.Status != models.RentalStatusRequested && ra.Status != models.RentalStatusUnderReview {
		return nil, fmt.Errorf("rental %d is %s: %w", ra.ID, ra.Status, models.ErrInvalidState)
	}
	return s.transition(ctx, ra, models.RentalStatusApproved, uuidPtr(caller), nil)
}

// Reject turns a pending request down and puts the property back on the market.
func (s *RentalService) Reject(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("reject", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if ra.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can reject a request: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermReviewRequests); err != nil {
		return nil, err
	}
	if ra.Status != models.RentalStatusRequested && ra.Status != models.RentalStatusUnderReview {
		return nil, fmt.Errorf("rental %d is %s: %w", ra.ID, ra.Status, models.ErrInvalidState)
	}

	next, err := s.transition(ctx, ra, models.RentalStatusCancelled, uuidPtr(caller), nil)
	if err != nil {
		return nil, err
	}
	s.setAvailable(ctx, next.PropertyID, true)
	s.cancelEscrow(ctx, next.ID)
	return next, nil
}

// Confirm mints the receipt and moves the agreement to Confirmed. The
// landlord may confirm from Requested or Approved, which keeps agreements
// created before the approval step confirmable. The tenant may confirm only
// from Approved.
func (s *RentalService) Confirm(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("confirm", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	switch caller {
	case ra.LandlordUserID:
		if ra.Status != models.RentalStatusRequested && ra.Status != models.RentalStatusApproved {
			return nil, fmt.Errorf("rental %d is %s: %w", ra.ID, ra.Status, models.ErrInvalidState)
		}
	case ra.TenantUserID:
		if ra.Status != models.RentalStatusApproved {
			return nil, fmt.Errorf("rental %d must be approved before the tenant confirms: %w", ra.ID, models.ErrInvalidState)
		}
	default:
		return nil, fmt.Errorf("only the landlord or tenant can confirm: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermConfirmRental); err != nil {
		return nil, err
	}

	receipt, err := s.minter.Mint(ctx, ra)
	if err != nil {
		return nil, fmt.Errorf("mint receipt: %w", err)
	}

	next, err := s.transition(ctx, ra, models.RentalStatusConfirmed, uuidPtr(caller), func(n *models.RentalAgreement) {
		n.NFTID = int64Ptr(receipt.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.AutoCreateEscrow && s.escrows != nil {
		if _, err := s.escrows.OpenForRental(ctx, next); err != nil && !errors.Is(err, models.ErrInvalidState) {
			s.log.Error("failed to open escrow for confirmed rental", zap.Int64("rental_id", next.ID), zap.Error(err))
		}
	}
	return next, nil
}

// Activate moves a confirmed agreement to Active. Any authenticated caller
// may trigger it.
func (s *RentalService) Activate(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("activate", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if ra.Status != models.RentalStatusConfirmed {
		return nil, fmt.Errorf("rental %d is %s: %w", ra.ID, ra.Status, models.ErrInvalidState)
	}
	return s.transition(ctx, ra, models.RentalStatusActive, uuidPtr(caller), nil)
}

// ActivateDue activates every confirmed agreement whose start date has passed.
func (s *RentalService) ActivateDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.rentals.List(ctx, repositories.RentalFilter{
		Statuses:     []string{models.RentalStatusConfirmed},
		StartsBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	activated := 0
	for i := range due {
		if _, err := s.transition(ctx, &due[i], models.RentalStatusActive, nil, nil); err != nil {
			if errors.Is(err, models.ErrInvalidState) {
				s.metrics.ObserveSweep("rental_activation", "skipped")
				continue
			}
			s.metrics.ObserveSweep("rental_activation", "failed")
			s.log.Error("failed to activate rental", zap.Int64("rental_id", due[i].ID), zap.Error(err))
			continue
		}
		s.metrics.ObserveSweep("rental_activation", "activated")
		activated++
	}
	return activated, nil
}

// Complete ends an active lease and releases the property.
func (s *RentalService) Complete(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("complete", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if ra.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can complete a lease: %w", models.ErrForbidden)
	}
	next, err := s.transition(ctx, ra, models.RentalStatusCompleted, uuidPtr(caller), nil)
	if err != nil {
		return nil, err
	}
	s.setAvailable(ctx, next.PropertyID, true)
	return next, nil
}

// Cancel is open to either party in any non-terminal state except Active.
func (s *RentalService) Cancel(ctx context.Context, caller uuid.UUID, rentalID int64) (_ *models.RentalAgreement, err error) {
	defer s.observe("cancel", &err)

	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if !ra.IsParty(caller) {
		return nil, fmt.Errorf("only the landlord or tenant can cancel: %w", models.ErrForbidden)
	}
	next, err := s.transition(ctx, ra, models.RentalStatusCancelled, uuidPtr(caller), nil)
	if err != nil {
		return nil, err
	}
	s.setAvailable(ctx, next.PropertyID, true)
	s.cancelEscrow(ctx, next.ID)
	return next, nil
}

// --- Reads ---

func (s *RentalService) Get(ctx context.Context, caller uuid.UUID, rentalID int64) (*models.RentalAgreement, error) {
	ra, err := s.load(ctx, caller, rentalID)
	if err != nil {
		return nil, err
	}
	if !ra.IsParty(caller) && !s.cfg.IsAdmin(caller) {
		return nil, models.ErrForbidden
	}
	return ra, nil
}

func (s *RentalService) list(ctx context.Context, caller uuid.UUID, f repositories.RentalFilter) ([]models.RentalAgreement, error) {
	if auth.IsAnonymous(caller) {
		return []models.RentalAgreement{}, nil
	}
	out, err := s.rentals.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.RentalAgreement{}
	}
	return out, nil
}

// requireListPermission gates the role-specific queues. Anonymous callers
// pass through and get an empty list.
func (s *RentalService) requireListPermission(ctx context.Context, caller uuid.UUID, permission string) error {
	if auth.IsAnonymous(caller) {
		return nil
	}
	return requirePermission(ctx, s.users, caller, permission)
}

// ListMine returns every agreement where the caller is landlord or tenant.
func (s *RentalService) ListMine(ctx context.Context, caller uuid.UUID, limit, offset int) ([]models.RentalAgreement, error) {
	return s.list(ctx, caller, repositories.RentalFilter{PartyUserID: &caller, Limit: limit, Offset: offset})
}

// PendingForLandlord lists requests still waiting on the landlord's decision.
func (s *RentalService) PendingForLandlord(ctx context.Context, caller uuid.UUID, limit, offset int) ([]models.RentalAgreement, error) {
	if err := s.requireListPermission(ctx, caller, rbac.PermReviewRequests); err != nil {
		return nil, err
	}
	return s.list(ctx, caller, repositories.RentalFilter{
		LandlordUserID: &caller,
		Statuses:       []string{models.RentalStatusRequested, models.RentalStatusUnderReview},
		Limit:          limit,
		Offset:         offset,
	})
}

// ApprovedForTenant lists approved agreements waiting on the tenant's
// confirmation.
func (s *RentalService) ApprovedForTenant(ctx context.Context, caller uuid.UUID, limit, offset int) ([]models.RentalAgreement, error) {
	if err := s.requireListPermission(ctx, caller, rbac.PermViewApproved); err != nil {
		return nil, err
	}
	return s.list(ctx, caller, repositories.RentalFilter{
		TenantUserID: &caller,
		Statuses:     []string{models.RentalStatusApproved},
		Limit:        limit,
		Offset:       offset,
	})
}

// Events returns the agreement's audit trail, oldest first.
func (s *RentalService) Events(ctx context.Context, caller uuid.UUID, rentalID int64, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, caller, rentalID); err != nil {
		return nil, err
	}
	logs, err := s.audit.GetByEntity(ctx, entityRental, rentalID, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}
