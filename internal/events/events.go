package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Redis channels
const (
	StreamRental = "events:rental"
	StreamEscrow = "events:escrow"
)

// Event types
const (
	EventRentalStatusChanged = "rental_status_changed"
	EventEscrowTimeline      = "escrow_timeline"
)

type Event struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	Recipients []uuid.UUID    `json:"recipients,omitempty"` // users the event concerns
	OccurredAt time.Time      `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
