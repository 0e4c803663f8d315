package models

import (
	"time"
)

// DomainEvent is published to Kafka after inventory and order changes commit.
type DomainEvent struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	EventID   string    `json:"eventId,omitempty"`
	Ticket    *Ticket   `json:"ticket,omitempty"`
	Order     *Order    `json:"order,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	TicketReserved = "ticket.reserved"
	TicketReleased = "ticket.released"
	OrderCreated   = "order.created"
	OrderPaidEvent = "order.paid"
)
