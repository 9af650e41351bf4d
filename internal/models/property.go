package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PropertyTypeApartment = "apartment"
	PropertyTypeHouse     = "house"
	PropertyTypeVilla     = "villa"
	PropertyTypeStudio    = "studio"
	PropertyTypeCondo     = "condo"
	PropertyTypeTownhouse = "townhouse"
)

var PropertyTypes = []string{
	PropertyTypeApartment,
	PropertyTypeHouse,
	PropertyTypeVilla,
	PropertyTypeStudio,
	PropertyTypeCondo,
	PropertyTypeTownhouse,
}

func IsValidPropertyType(t string) bool {
	for _, v := range PropertyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Property struct {
	ID            int64     `json:"id"`
	OwnerUserID   uuid.UUID `json:"owner_user_id"`
	Title         string    `json:"title"`
	Address       string    `json:"address"`
	Description   string    `json:"description"`
	RentAmount    int64     `json:"rent_amount"`
	DepositAmount int64     `json:"deposit_amount"`
	PropertyType  string    `json:"property_type"`
	Bedrooms      int       `json:"bedrooms"`
	Bathrooms     int       `json:"bathrooms"`
	AreaSqft      int       `json:"area_sqft"`
	ImageURL      string    `json:"image_url,omitempty"`
	Images        []string  `json:"images"`
	Amenities     []string  `json:"amenities"`
	IsAvailable   bool      `json:"is_available"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PropertyUpdate carries the owner-editable fields of a listing. Nil fields
// are left unchanged.
type PropertyUpdate struct {
	Title         *string
	Address       *string
	Description   *string
	RentAmount    *int64
	DepositAmount *int64
	PropertyType  *string
	Bedrooms      *int
	Bathrooms     *int
	AreaSqft      *int
	ImageURL      *string
	Images        []string
	Amenities     []string
}

// Apply copies the set fields of u onto p.
func (u PropertyUpdate) Apply(p *Property) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Address != nil {
		p.Address = *u.Address
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.RentAmount != nil {
		p.RentAmount = *u.RentAmount
	}
	if u.DepositAmount != nil {
		p.DepositAmount = *u.DepositAmount
	}
	if u.PropertyType != nil {
		p.PropertyType = *u.PropertyType
	}
	if u.Bedrooms != nil {
		p.Bedrooms = *u.Bedrooms
	}
	if u.Bathrooms != nil {
		p.Bathrooms = *u.Bathrooms
	}
	if u.AreaSqft != nil {
		p.AreaSqft = *u.AreaSqft
	}
	if u.ImageURL != nil {
		p.ImageURL = *u.ImageURL
	}
	if u.Images != nil {
		p.Images = u.Images
	}
	if u.Amenities != nil {
		p.Amenities = u.Amenities
	}
}
