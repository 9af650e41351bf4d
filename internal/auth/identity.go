package auth

import (
	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/models"
)

// Anonymous is the caller identity of unauthenticated requests. It is never a
// valid principal for a mutating operation.
var Anonymous = uuid.Nil

func IsAnonymous(id uuid.UUID) bool {
	return id == Anonymous
}

// RequireAuthenticated returns the caller or models.ErrUnauthenticated.
func RequireAuthenticated(caller uuid.UUID) (uuid.UUID, error) {
	if IsAnonymous(caller) {
		return Anonymous, models.ErrUnauthenticated
	}
	return caller, nil
}
