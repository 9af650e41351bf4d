package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

type AuditLog struct {
	ID          int64      `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"` // user/system
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    int64      `json:"entity_id"`
	Meta        any        `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
