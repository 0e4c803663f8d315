package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event mirrors the owning event record published by the event service.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID           string     `json:"id" bun:"id,pk"`
	Name         string     `json:"name" bun:"name"`
	TotalTickets int        `json:"totalTickets" bun:"total_tickets"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty" bun:"deleted_at,nullzero"`
	UpdatedAt    time.Time  `json:"updatedAt" bun:"updated_at"`
}

func (e *Event) IsDeleted() bool {
	return e.DeletedAt != nil
}

type EventLifecycleType string

const (
	EventCreated EventLifecycleType = "event.created"
	EventUpdated EventLifecycleType = "event.updated"
	EventDeleted EventLifecycleType = "event.deleted"
)

// EventLifecycleMessage is consumed from the event-lifecycle topic.
type EventLifecycleMessage struct {
	Type      EventLifecycleType `json:"type"`
	EventID   string             `json:"eventId"`
	Name      string             `json:"name"`
	Timestamp time.Time          `json:"timestamp"`
}
