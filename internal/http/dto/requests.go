package dto

import "time"

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"` // landlord / tenant
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
}

type CreatePropertyRequest struct {
	Title         string   `json:"title"`
	Address       string   `json:"address"`
	Description   string   `json:"description"`
	RentAmount    int64    `json:"rent_amount"`
	DepositAmount int64    `json:"deposit_amount"`
	PropertyType  string   `json:"property_type"`
	Bedrooms      int      `json:"bedrooms"`
	Bathrooms     int      `json:"bathrooms"`
	AreaSqft      int      `json:"area_sqft"`
	ImageURL      string   `json:"image_url,omitempty"`
	Images        []string `json:"images"`
	Amenities     []string `json:"amenities"`
}

// UpdatePropertyRequest is a partial update; omitted fields keep their value.
type UpdatePropertyRequest struct {
	Title         *string  `json:"title"`
	Address       *string  `json:"address"`
	Description   *string  `json:"description"`
	RentAmount    *int64   `json:"rent_amount"`
	DepositAmount *int64   `json:"deposit_amount"`
	PropertyType  *string  `json:"property_type"`
	Bedrooms      *int     `json:"bedrooms"`
	Bathrooms     *int     `json:"bathrooms"`
	AreaSqft      *int     `json:"area_sqft"`
	ImageURL      *string  `json:"image_url"`
	Images        []string `json:"images"`
	Amenities     []string `json:"amenities"`
}

type AvailabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

type CreateRentalRequest struct {
	PropertyID int64     `json:"property_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
}

// Escrows

type CreateEscrowRequest struct {
	RentalID int64 `json:"rental_id"`
	Amount   int64 `json:"amount,omitempty"` // 0 takes the rental's deposit
}

type TransactionRequest struct {
	TransactionHash string `json:"transaction_hash"`
}

type ApproveDepositRequest struct {
	CustodyRef string `json:"custody_ref"`
}

type RefundRequest struct {
	RefundAmount *int64 `json:"refund_amount"`
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

type NoteRequest struct {
	Note string `json:"note,omitempty"`
}
