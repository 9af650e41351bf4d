package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
)

func IsValidRole(r string) bool {
	return r == RoleLandlord || r == RoleTenant
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// PublicUser is the view of a user shown to other callers.
type PublicUser struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, DisplayName: u.DisplayName, Role: u.Role, CreatedAt: u.CreatedAt}
}
