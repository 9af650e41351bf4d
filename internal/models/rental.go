package models

import (
	"time"

	"github.com/google/uuid"
)

// Rental statuses
const (
	RentalStatusRequested   = "requested"
	RentalStatusUnderReview = "under_review"
	RentalStatusApproved    = "approved"
	RentalStatusConfirmed   = "confirmed"
	RentalStatusActive      = "active"
	RentalStatusCompleted   = "completed"
	RentalStatusCancelled   = "cancelled"
)

// Valid state transitions: from -> []to.
// Confirmed is reachable from Requested for agreements created before the
// approval step existed; only the landlord may take that path.
var ValidRentalTransitions = map[string][]string{
	RentalStatusRequested:   {RentalStatusUnderReview, RentalStatusApproved, RentalStatusConfirmed, RentalStatusCancelled},
	RentalStatusUnderReview: {RentalStatusApproved, RentalStatusCancelled},
	RentalStatusApproved:    {RentalStatusConfirmed, RentalStatusCancelled},
	RentalStatusConfirmed:   {RentalStatusActive, RentalStatusCancelled},
	RentalStatusActive:      {RentalStatusCompleted},
	RentalStatusCompleted:   {},
	RentalStatusCancelled:   {},
}

func IsValidRentalTransition(from, to string) bool {
	allowed, ok := ValidRentalTransitions[from]
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

// IsTerminalRentalStatus reports whether no further transition is defined.
func IsTerminalRentalStatus(status string) bool {
	return status == RentalStatusCompleted || status == RentalStatusCancelled
}

// RentalHoldsReceipt reports whether an agreement in this status must carry a
// minted receipt.
func RentalHoldsReceipt(status string) bool {
	switch status {
	case RentalStatusConfirmed, RentalStatusActive, RentalStatusCompleted:
		return true
	}
	return false
}

type RentalAgreement struct {
	ID             int64     `json:"id"`
	PropertyID     int64     `json:"property_id"`
	LandlordUserID uuid.UUID `json:"landlord_user_id"`
	TenantUserID   uuid.UUID `json:"tenant_user_id"`
	Status         string    `json:"status"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	RentAmount     int64     `json:"rent_amount"`
	DepositAmount  int64     `json:"deposit_amount"`
	NFTID          *int64    `json:"nft_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsParty reports whether the user is the landlord or the tenant.
func (r *RentalAgreement) IsParty(userID uuid.UUID) bool {
	return r.LandlordUserID == userID || r.TenantUserID == userID
}

// RentalReceipt is the non-transferable proof-of-rental record minted on
// confirmation.
type RentalReceipt struct {
	ID          int64              `json:"id"`
	OwnerUserID uuid.UUID          `json:"owner_user_id"`
	PropertyID  int64              `json:"property_id"`
	RentalID    int64              `json:"rental_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Image       string             `json:"image"`
	Attributes  []ReceiptAttribute `json:"attributes"`
	CreatedAt   time.Time          `json:"created_at"`
}

type ReceiptAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}
