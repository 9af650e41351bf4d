package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// EscrowService drives the security deposit state machine. Every successful
// transition stores the account and exactly one timeline event together.
type EscrowService struct {
	escrows   EscrowStore
	timeline  TimelineStore
	rentals   RentalStore
	users     UserStore
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
	metrics   *metrics.LifecycleMetrics
}

func NewEscrowService(
	escrows EscrowStore,
	timeline TimelineStore,
	rentals RentalStore,
	users UserStore,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
	opts ...Option,
) *EscrowService {
	o := applyOptions(opts)
	return &EscrowService{
		escrows:   escrows,
		timeline:  timeline,
		rentals:   rentals,
		users:     users,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       o.now,
		metrics:   o.metrics,
	}
}

func (s *EscrowService) submissionWindow() time.Duration {
	if s.cfg.SubmissionWindow > 0 {
		return s.cfg.SubmissionWindow
	}
	return models.DefaultSubmissionWindow
}

func (s *EscrowService) observe(op string, err *error) {
	if *err != nil {
		s.metrics.ObserveRejection("escrow", op, rejectionReason(*err))
	}
}

// load authenticates the caller and fetches the account.
func (s *EscrowService) load(ctx context.Context, caller uuid.UUID, escrowID int64) (*models.EscrowAccount, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	acc, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("escrow %d: %w", escrowID, err)
	}
	return acc, nil
}

func (s *EscrowService) canView(caller uuid.UUID, acc *models.EscrowAccount) bool {
	return acc.IsParty(caller) || s.cfg.IsAdmin(caller)
}

func newTimelineEvent(eventType, title, description string, actor *uuid.UUID, at time.Time) *models.EscrowTimelineEvent {
	return &models.EscrowTimelineEvent{
		EventType:   eventType,
		Title:       title,
		Description: description,
		ActorUserID: actor,
		CreatedAt:   at,
	}
}

// apply validates the transition from cur to next.Status and persists both
// the account and ev. cur is never mutated.
func (s *EscrowService) apply(ctx context.Context, cur, next *models.EscrowAccount, ev *models.EscrowTimelineEvent) (*models.EscrowAccount, error) {
	if !models.IsValidEscrowTransition(cur.Status, next.Status) {
		return nil, fmt.Errorf("escrow %d: %s -> %s: %w", cur.ID, cur.Status, next.Status, models.ErrInvalidState)
	}
	if err := s.escrows.Transition(ctx, next, cur.Status, ev); err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition("escrow", cur.Status, next.Status)
	s.log.Info("escrow transition",
		zap.Int64("escrow_id", next.ID),
		zap.String("from", cur.Status),
		zap.String("to", next.Status),
		zap.String("event", ev.EventType),
	)
	s.publish(ctx, next, cur.Status, ev)
	return next, nil
}

func (s *EscrowService) publish(ctx context.Context, acc *models.EscrowAccount, previous string, ev *models.EscrowTimelineEvent) {
	_ = s.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type: events.EventEscrowTimeline,
		Payload: map[string]any{
			"escrow_id":       acc.ID,
			"rental_id":       acc.RentalID,
			"event_type":      ev.EventType,
			"title":           ev.Title,
			"status":          acc.Status,
			"previous_status": previous,
		},
		Recipients: []uuid.UUID{acc.LandlordUserID, acc.TenantUserID},
		OccurredAt: ev.CreatedAt,
	})
}

// Create opens an escrow account for a rental on behalf of one of its
// parties. A zero amount takes the rental's deposit.
func (s *EscrowService) Create(ctx context.Context, caller uuid.UUID, rentalID, amount int64) (_ *models.EscrowAccount, err error) {
	defer s.observe("create", &err)

	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	rental, err := s.rentals.GetByID(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("rental %d: %w", rentalID, err)
	}
	if !rental.IsParty(caller) {
		return nil, fmt.Errorf("only the rental's landlord or tenant can open its escrow: %w", models.ErrForbidden)
	}
	if amount < 0 {
		return nil, fmt.Errorf("amount must not be negative: %w", models.ErrInvalidArgument)
	}
	if amount == 0 {
		amount = rental.DepositAmount
	}
	return s.create(ctx, rental, amount, uuidPtr(caller))
}

// OpenForRental is the system path used when a rental is confirmed.
func (s *EscrowService) OpenForRental(ctx context.Context, rental *models.RentalAgreement) (*models.EscrowAccount, error) {
	return s.create(ctx, rental, rental.DepositAmount, nil)
}

func (s *EscrowService) create(ctx context.Context, rental *models.RentalAgreement, amount int64, actor *uuid.UUID) (*models.EscrowAccount, error) {
	if models.IsTerminalRentalStatus(rental.Status) {
		return nil, fmt.Errorf("rental %d is %s: %w", rental.ID, rental.Status, models.ErrInvalidState)
	}

	now := s.now()
	acc := &models.EscrowAccount{
		RentalID:           rental.ID,
		PropertyID:         rental.PropertyID,
		LandlordUserID:     rental.LandlordUserID,
		TenantUserID:       rental.TenantUserID,
		Amount:             amount,
		Status:             models.EscrowStatusPendingSubmission,
		SubmissionDeadline: now.Add(s.submissionWindow()),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	ev := newTimelineEvent(models.EscrowEventCreated, "Escrow Account Created",
		"Security deposit escrow account has been created for this rental agreement", actor, now)
	ev.Amount = int64Ptr(amount)

	if err := s.escrows.Create(ctx, acc, ev); err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition("escrow", "", models.EscrowStatusPendingSubmission)
	s.log.Info("escrow created",
		zap.Int64("escrow_id", acc.ID),
		zap.Int64("rental_id", rental.ID),
		zap.Int64("amount", amount),
		zap.Time("submission_deadline", acc.SubmissionDeadline),
	)
	s.publish(ctx, acc, "", ev)
	return acc, nil
}

func (s *EscrowService) SubmitDeposit(ctx context.Context, caller uuid.UUID, escrowID int64, txHash string) (_ *models.EscrowAccount, err error) {
	defer s.observe("submit_deposit", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.TenantUserID != caller {
		return nil, fmt.Errorf("only the tenant can submit the security deposit: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermSubmitDeposit); err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusPendingSubmission {
		return nil, fmt.Errorf("deposit already submitted or escrow not pending: %w", models.ErrInvalidState)
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("transaction hash is required: %w", models.ErrInvalidArgument)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusUnderReview
	next.TransactionHash = strPtr(txHash)
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventDepositSubmitted, "Security Deposit Submitted",
		"Tenant has submitted the security deposit for review", uuidPtr(caller), now)
	ev.Amount = int64Ptr(acc.Amount)
	ev.TransactionHash = strPtr(txHash)

	return s.apply(ctx, acc, next, ev)
}

func (s *EscrowService) ApproveDeposit(ctx context.Context, caller uuid.UUID, escrowID int64, custodyRef string) (_ *models.EscrowAccount, err error) {
	defer s.observe("approve_deposit", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can approve the security deposit: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermManageCustody); err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusUnderReview {
		return nil, fmt.Errorf("security deposit has not been submitted: %w", models.ErrInvalidState)
	}
	custodyRef = strings.TrimSpace(custodyRef)
	if custodyRef == "" {
		return nil, fmt.Errorf("custody reference is required: %w", models.ErrInvalidArgument)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusFundsSecured
	next.SmartContractAddress = strPtr(custodyRef)
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventLandlordApproval, "Deposit Approved",
		"Landlord has approved the security deposit and funds are secured", uuidPtr(caller), now)
	ev.Amount = int64Ptr(acc.Amount)
	ev.Metadata = map[string]any{"custody_ref": custodyRef}

	return s.apply(ctx, acc, next, ev)
}

func (s *EscrowService) ActivateProtection(ctx context.Context, caller uuid.UUID, escrowID int64) (_ *models.EscrowAccount, err error) {
	defer s.observe("activate_protection", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can activate escrow protection: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermManageCustody); err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusFundsSecured {
		return nil, fmt.Errorf("funds must be secured before activating protection: %w", models.ErrInvalidState)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusActiveProtection
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventLeaseActivated, "Escrow Protection Activated",
		"Escrow protection is now active for the duration of the lease", uuidPtr(caller), now)

	return s.apply(ctx, acc, next, ev)
}

// RecordInspection appends a PropertyInspected note while protection is
// active. It does not change the account status.
func (s *EscrowService) RecordInspection(ctx context.Context, caller uuid.UUID, escrowID int64, notes string) (_ *models.EscrowTimelineEvent, err error) {
	defer s.observe("record_inspection", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can record an inspection: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermManageCustody); err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusActiveProtection {
		return nil, fmt.Errorf("inspections are recorded during active protection: %w", models.ErrInvalidState)
	}

	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = "Property inspection and damage assessment upon lease end"
	}
	ev := newTimelineEvent(models.EscrowEventPropertyInspected, "Property Inspected", notes, uuidPtr(caller), s.now())
	ev.EscrowID = acc.ID
	if err := s.escrows.AppendEvent(ctx, ev, models.EscrowStatusActiveProtection); err != nil {
		return nil, err
	}
	s.publish(ctx, acc, acc.Status, ev)
	return ev, nil
}

func (s *EscrowService) InitiateRefund(ctx context.Context, caller uuid.UUID, escrowID, refundAmount int64) (_ *models.EscrowAccount, err error) {
	defer s.observe("initiate_refund", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.LandlordUserID != caller {
		return nil, fmt.Errorf("only the landlord can initiate the refund: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermManageCustody); err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusActiveProtection {
		return nil, fmt.Errorf("escrow must be in active protection to initiate refund: %w", models.ErrInvalidState)
	}
	if refundAmount < 0 {
		return nil, fmt.Errorf("refund amount must not be negative: %w", models.ErrInvalidArgument)
	}
	if s.cfg.EnforceRefundCeiling && refundAmount > acc.Amount {
		return nil, fmt.Errorf("refund %d exceeds deposit %d: %w", refundAmount, acc.Amount, models.ErrInvalidArgument)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusRefundProcessing
	next.RefundAmount = int64Ptr(refundAmount)
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventRefundInitiated, "Refund Processing",
		fmt.Sprintf("Refund of %d has been initiated", refundAmount), uuidPtr(caller), now)
	ev.Amount = int64Ptr(refundAmount)

	return s.apply(ctx, acc, next, ev)
}

// CompleteRefund may be called by any authenticated caller, including an
// automated payout agent.
func (s *EscrowService) CompleteRefund(ctx context.Context, caller uuid.UUID, escrowID int64, txHash string) (_ *models.EscrowAccount, err error) {
	defer s.observe("complete_refund", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if acc.Status != models.EscrowStatusRefundProcessing {
		return nil, fmt.Errorf("no refund is currently processing for this escrow: %w", models.ErrInvalidState)
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("transaction hash is required: %w", models.ErrInvalidArgument)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusCompleted
	next.TransactionHash = strPtr(txHash)
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventRefundCompleted, "Refund Completed",
		"Security deposit refund has been completed successfully", uuidPtr(caller), now)
	ev.Amount = acc.RefundAmount
	ev.TransactionHash = strPtr(txHash)

	return s.apply(ctx, acc, next, ev)
}

// Expire closes an account whose deposit was not secured in time. The state
// check runs before the deadline check, so a terminal account always reports
// ErrInvalidState.
func (s *EscrowService) Expire(ctx context.Context, caller uuid.UUID, escrowID int64) (_ *models.EscrowAccount, err error) {
	defer s.observe("expire", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	return s.expire(ctx, acc, s.now())
}

func (s *EscrowService) expire(ctx context.Context, acc *models.EscrowAccount, now time.Time) (*models.EscrowAccount, error) {
	if !models.IsExpirableEscrowStatus(acc.Status) {
		return nil, fmt.Errorf("escrow %d is %s: %w", acc.ID, acc.Status, models.ErrInvalidState)
	}
	if !now.After(acc.SubmissionDeadline) {
		return nil, fmt.Errorf("escrow %d deadline %s: %w", acc.ID, acc.SubmissionDeadline.Format(time.RFC3339), models.ErrDeadlineNotReached)
	}

	next := acc.Clone()
	next.Status = models.EscrowStatusExpired
	next.ExpiredAt = &now
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventExpired, "Escrow Expired",
		"The security deposit was not secured before the submission deadline", nil, now)
	ev.Metadata = map[string]any{"expired_from": acc.Status}

	return s.apply(ctx, acc, next, ev)
}

// ExpireOverdue expires every account past its deadline that is still
// expirable and returns how many were expired. Accounts changed concurrently
// are skipped.
func (s *EscrowService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	accounts, err := s.escrows.List(ctx, repositories.EscrowFilter{
		Statuses:       []string{models.EscrowStatusPendingSubmission, models.EscrowStatusUnderReview},
		DeadlineBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range accounts {
		acc := &accounts[i]
		if _, err := s.expire(ctx, acc, now); err != nil {
			if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrDeadlineNotReached) {
				s.metrics.ObserveSweep("escrow_expiry", "skipped")
				continue
			}
			s.metrics.ObserveSweep("escrow_expiry", "failed")
			s.log.Error("failed to expire escrow", zap.Int64("escrow_id", acc.ID), zap.Error(err))
			continue
		}
		s.metrics.ObserveSweep("escrow_expiry", "expired")
		expired++
	}
	return expired, nil
}

func (s *EscrowService) RaiseDispute(ctx context.Context, caller uuid.UUID, escrowID int64, reason string) (_ *models.EscrowAccount, err error) {
	defer s.observe("raise_dispute", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if !acc.IsParty(caller) {
		return nil, fmt.Errorf("only the landlord or tenant can raise a dispute: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermRaiseDispute); err != nil {
		return nil, err
	}
	if models.IsTerminalEscrowStatus(acc.Status) || acc.Status == models.EscrowStatusDisputed {
		return nil, fmt.Errorf("escrow %d is %s: %w", acc.ID, acc.Status, models.ErrInvalidState)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("dispute reason is required: %w", models.ErrInvalidArgument)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusDisputed
	next.DisputeReason = strPtr(reason)
	next.DisputedFrom = strPtr(acc.Status)
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventDisputeRaised, "Dispute Raised", reason, uuidPtr(caller), now)
	ev.Metadata = map[string]any{"disputed_from": acc.Status}

	return s.apply(ctx, acc, next, ev)
}

// ResolveDispute leaves Disputed according to the configured policy: back to
// the status held when the dispute was raised, or to Cancelled.
func (s *EscrowService) ResolveDispute(ctx context.Context, caller uuid.UUID, escrowID int64, note string) (_ *models.EscrowAccount, err error) {
	defer s.observe("resolve_dispute", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if !s.canView(caller, acc) {
		return nil, fmt.Errorf("only a party or an administrator can resolve a dispute: %w", models.ErrForbidden)
	}
	if acc.Status != models.EscrowStatusDisputed {
		return nil, fmt.Errorf("escrow %d is not disputed: %w", acc.ID, models.ErrInvalidState)
	}

	target := models.EscrowStatusCancelled
	if s.cfg.DisputeResolutionPolicy != config.DisputePolicyCancel && acc.DisputedFrom != nil {
		target = *acc.DisputedFrom
	}

	now := s.now()
	next := acc.Clone()
	next.Status = target
	next.UpdatedAt = now

	note = strings.TrimSpace(note)
	if note == "" {
		note = fmt.Sprintf("Dispute resolved, escrow moved to %s", target)
	}
	ev := newTimelineEvent(models.EscrowEventDisputeResolved, "Dispute Resolved", note, uuidPtr(caller), now)
	ev.Metadata = map[string]any{"resolution": target, "policy": s.cfg.DisputeResolutionPolicy}

	return s.apply(ctx, acc, next, ev)
}

// Cancel withdraws an account before any deposit was submitted.
func (s *EscrowService) Cancel(ctx context.Context, caller uuid.UUID, escrowID int64) (_ *models.EscrowAccount, err error) {
	defer s.observe("cancel", &err)

	acc, err := s.load(ctx, caller, escrowID)
	if err != nil {
		return nil, err
	}
	if !acc.IsParty(caller) {
		return nil, fmt.Errorf("only the landlord or tenant can cancel the escrow: %w", models.ErrForbidden)
	}
	return s.cancel(ctx, acc, uuidPtr(caller), "Escrow was cancelled before the deposit was submitted")
}

// CancelPendingForRental cancels the rental's escrow if no deposit has been
// submitted yet. Any other state is left alone.
func (s *EscrowService) CancelPendingForRental(ctx context.Context, rentalID int64) error {
	acc, err := s.escrows.GetByRentalID(ctx, rentalID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acc.Status != models.EscrowStatusPendingSubmission {
		return nil
	}
	_, err = s.cancel(ctx, acc, nil, "Escrow was cancelled together with its rental agreement")
	return err
}

func (s *EscrowService) cancel(ctx context.Context, acc *models.EscrowAccount, actor *uuid.UUID, description string) (*models.EscrowAccount, error) {
	if acc.Status != models.EscrowStatusPendingSubmission {
		return nil, fmt.Errorf("escrow %d is %s: %w", acc.ID, acc.Status, models.ErrInvalidState)
	}

	now := s.now()
	next := acc.Clone()
	next.Status = models.EscrowStatusCancelled
	next.UpdatedAt = now

	ev := newTimelineEvent(models.EscrowEventCancelled, "Escrow Cancelled", description, actor, now)
	return s.apply(ctx, acc, next, ev)
}

// --- Reads. Anonymous callers get empty results instead of an error. ---

func (s *EscrowService) Get(ctx context.Context, caller uuid.UUID, escrowID int64) (*models.EscrowAccount, error) {
	if auth.IsAnonymous(caller) {
		return nil, nil
	}
	acc, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("escrow %d: %w", escrowID, err)
	}
	if !s.canView(caller, acc) {
		return nil, models.ErrForbidden
	}
	return acc, nil
}

func (s *EscrowService) GetForRental(ctx context.Context, caller uuid.UUID, rentalID int64) (*models.EscrowAccount, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	acc, err := s.escrows.GetByRentalID(ctx, rentalID)
	if err != nil {
		return nil, fmt.Errorf("escrow for rental %d: %w", rentalID, err)
	}
	if !s.canView(caller, acc) {
		return nil, models.ErrForbidden
	}
	return acc, nil
}

// ListFor returns subject's accounts, optionally narrowed to one role. A nil
// subject means the caller; only administrators may list someone else.
func (s *EscrowService) ListFor(ctx context.Context, caller, subject uuid.UUID, role string, limit, offset int) ([]models.EscrowAccount, error) {
	if auth.IsAnonymous(caller) {
		return []models.EscrowAccount{}, nil
	}
	f, err := s.subjectFilter(caller, subject, role)
	if err != nil {
		return nil, err
	}
	f.Limit, f.Offset = limit, offset
	accounts, err := s.escrows.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []models.EscrowAccount{}
	}
	return accounts, nil
}

func (s *EscrowService) subjectFilter(caller, subject uuid.UUID, role string) (repositories.EscrowFilter, error) {
	if auth.IsAnonymous(subject) {
		subject = caller
	}
	if subject != caller && !s.cfg.IsAdmin(caller) {
		return repositories.EscrowFilter{}, fmt.Errorf("cannot list another user's escrows: %w", models.ErrForbidden)
	}
	switch role {
	case "":
		return repositories.EscrowFilter{PartyUserID: &subject}, nil
	case models.RoleLandlord:
		return repositories.EscrowFilter{LandlordUserID: &subject}, nil
	case models.RoleTenant:
		return repositories.EscrowFilter{TenantUserID: &subject}, nil
	}
	return repositories.EscrowFilter{}, fmt.Errorf("unknown role %q: %w", role, models.ErrInvalidArgument)
}

// Timeline returns the account's events in insertion order.
func (s *EscrowService) Timeline(ctx context.Context, caller uuid.UUID, escrowID int64, limit, offset int) ([]models.EscrowTimelineEvent, error) {
	if auth.IsAnonymous(caller) {
		return []models.EscrowTimelineEvent{}, nil
	}
	acc, err := s.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("escrow %d: %w", escrowID, err)
	}
	if !s.canView(caller, acc) {
		return nil, models.ErrForbidden
	}
	evs, err := s.timeline.ListByEscrow(ctx, escrowID, limit, offset)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []models.EscrowTimelineEvent{}
	}
	return evs, nil
}

// Statistics aggregates subject's accounts in the given role. An empty role
// falls back to the role subject registered with.
func (s *EscrowService) Statistics(ctx context.Context, caller, subject uuid.UUID, role string) (*models.EscrowStats, error) {
	if auth.IsAnonymous(caller) {
		return &models.EscrowStats{Role: role}, nil
	}
	if auth.IsAnonymous(subject) {
		subject = caller
	}
	if subject != caller && !s.cfg.IsAdmin(caller) {
		return nil, fmt.Errorf("cannot read another user's statistics: %w", models.ErrForbidden)
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermViewEscrowStats); err != nil {
		return nil, err
	}
	if role == "" {
		u, err := s.users.GetByID(ctx, subject)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", subject, err)
		}
		role = u.Role
	}
	f, err := s.subjectFilter(caller, subject, role)
	if err != nil {
		return nil, err
	}
	accounts, err := s.escrows.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return computeStats(role, accounts, s.now()), nil
}

func holdsFunds(status string) bool {
	switch status {
	case models.EscrowStatusFundsSecured, models.EscrowStatusActiveProtection, models.EscrowStatusRefundProcessing:
		return true
	}
	return false
}

func computeStats(role string, accounts []models.EscrowAccount, now time.Time) *models.EscrowStats {
	st := &models.EscrowStats{Role: role}
	for i := range accounts {
		a := &accounts[i]
		st.Total++
		st.TotalAmount += a.Amount

		switch a.Status {
		case models.EscrowStatusFundsSecured, models.EscrowStatusActiveProtection:
			st.Active++
		case models.EscrowStatusPendingSubmission, models.EscrowStatusUnderReview:
			st.Pending++
		case models.EscrowStatusCompleted:
			st.Completed++
		}
		if a.IsOverdue(now) {
			st.Overdue++
		}

		held := holdsFunds(a.Status)
		if a.Status == models.EscrowStatusDisputed && a.DisputedFrom != nil {
			held = holdsFunds(*a.DisputedFrom)
		}
		if held {
			st.AmountHeld += a.Amount
		}
	}
	return st
}
