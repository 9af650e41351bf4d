package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow statuses
const (
	EscrowStatusPendingSubmission = "pending_submission"
	EscrowStatusUnderReview       = "under_review"
	EscrowStatusFundsSecured      = "funds_secured"
	EscrowStatusActiveProtection  = "active_protection"
	EscrowStatusRefundProcessing  = "refund_processing"
	EscrowStatusCompleted         = "completed"
	EscrowStatusDisputed          = "disputed"
	EscrowStatusCancelled         = "cancelled"
	EscrowStatusExpired           = "expired"
)

// DefaultSubmissionWindow is the time a tenant has to submit the deposit.
const DefaultSubmissionWindow = 7 * 24 * time.Hour

// Valid state transitions: from -> []to.
// Disputed resolves back to the recorded pre-dispute status or to Cancelled,
// so its row lists every possible target.
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusPendingSubmission: {EscrowStatusUnderReview, EscrowStatusDisputed, EscrowStatusCancelled, EscrowStatusExpired},
	EscrowStatusUnderReview:       {EscrowStatusFundsSecured, EscrowStatusDisputed, EscrowStatusExpired},
	EscrowStatusFundsSecured:      {EscrowStatusActiveProtection, EscrowStatusDisputed},
	EscrowStatusActiveProtection:  {EscrowStatusRefundProcessing, EscrowStatusDisputed},
	EscrowStatusRefundProcessing:  {EscrowStatusCompleted, EscrowStatusDisputed},
	EscrowStatusDisputed: {
		EscrowStatusPendingSubmission, EscrowStatusUnderReview, EscrowStatusFundsSecured,
		EscrowStatusActiveProtection, EscrowStatusRefundProcessing, EscrowStatusCancelled,
	},
	EscrowStatusCompleted: {},
	EscrowStatusCancelled: {},
	EscrowStatusExpired:   {},
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalEscrowStatus(status string) bool {
	return status == EscrowStatusCompleted || status == EscrowStatusCancelled || status == EscrowStatusExpired
}

// IsExpirableEscrowStatus reports whether the submission deadline still
// governs the account. Once funds are secured the deadline no longer applies.
func IsExpirableEscrowStatus(status string) bool {
	return status == EscrowStatusPendingSubmission || status == EscrowStatusUnderReview
}

type EscrowAccount struct {
	ID                   int64      `json:"id"`
	RentalID             int64      `json:"rental_id"`
	PropertyID           int64      `json:"property_id"`
	LandlordUserID       uuid.UUID  `json:"landlord_user_id"`
	TenantUserID         uuid.UUID  `json:"tenant_user_id"`
	Amount               int64      `json:"amount"`
	Status               string     `json:"status"`
	SubmissionDeadline   time.Time  `json:"submission_deadline"`
	SmartContractAddress *string    `json:"smart_contract_address,omitempty"`
	TransactionHash      *string    `json:"transaction_hash,omitempty"`
	RefundAmount         *int64     `json:"refund_amount,omitempty"`
	DisputeReason        *string    `json:"dispute_reason,omitempty"`
	DisputedFrom         *string    `json:"disputed_from,omitempty"`
	ExpiredAt            *time.Time `json:"expired_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (e *EscrowAccount) IsParty(userID uuid.UUID) bool {
	return e.LandlordUserID == userID || e.TenantUserID == userID
}

// IsOverdue reports whether the tenant missed the submission deadline.
func (e *EscrowAccount) IsOverdue(now time.Time) bool {
	return e.Status == EscrowStatusPendingSubmission && now.After(e.SubmissionDeadline)
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (e *EscrowAccount) Clone() *EscrowAccount {
	if e == nil {
		return nil
	}
	c := *e
	c.SmartContractAddress = cloneStr(e.SmartContractAddress)
	c.TransactionHash = cloneStr(e.TransactionHash)
	c.DisputeReason = cloneStr(e.DisputeReason)
	c.DisputedFrom = cloneStr(e.DisputedFrom)
	if e.RefundAmount != nil {
		v := *e.RefundAmount
		c.RefundAmount = &v
	}
	if e.ExpiredAt != nil {
		v := *e.ExpiredAt
		c.ExpiredAt = &v
	}
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Timeline event types
const (
	EscrowEventCreated           = "created"
	EscrowEventDepositSubmitted  = "deposit_submitted"
	EscrowEventLandlordApproval  = "landlord_approval"
	EscrowEventFundsLocked       = "funds_locked"
	EscrowEventLeaseActivated    = "lease_activated"
	EscrowEventPropertyInspected = "property_inspected"
	EscrowEventRefundInitiated   = "refund_initiated"
	EscrowEventRefundCompleted   = "refund_completed"
	EscrowEventDisputeRaised     = "dispute_raised"
	EscrowEventDisputeResolved   = "dispute_resolved"
	EscrowEventCancelled         = "cancelled"
	EscrowEventExpired           = "expired"
)

type EscrowTimelineEvent struct {
	ID              int64      `json:"id"`
	EscrowID        int64      `json:"escrow_id"`
	EventType       string     `json:"event_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ActorUserID     *uuid.UUID `json:"actor_user_id,omitempty"`
	Amount          *int64     `json:"amount,omitempty"`
	TransactionHash *string    `json:"transaction_hash,omitempty"`
	Metadata        any        `json:"metadata,omitempty"`
	CreatedAt       time.Time  `json:"timestamp"`
}

// EscrowStats is the dashboard projection over one party's accounts.
type EscrowStats struct {
	Role        string `json:"role"`
	Total       int64  `json:"total"`
	Active      int64  `json:"active"`
	Pending     int64  `json:"pending"`
	Completed   int64  `json:"completed"`
	Overdue     int64  `json:"overdue"`
	AmountHeld  int64  `json:"amount_held"`
	TotalAmount int64  `json:"total_amount"`
}
