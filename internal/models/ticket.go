package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TicketType is a purchasable category of an event with a price and a capacity.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID        string          `json:"id" bun:"id,pk"`
	EventID   string          `json:"eventId" bun:"event_id"`
	Name      string          `json:"name" bun:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice" bun:"unit_price,type:decimal(12,2)"`
	Capacity  int             `json:"capacity" bun:"capacity"`
	// Sold is the materialized sum of ticket quantities; only the inventory
	// counter writes it.
	Sold      int       `json:"sold" bun:"sold"`
	CreatedAt time.Time `json:"createdAt" bun:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bun:"updated_at"`
}

// OwnerDetails identifies the attendee when it differs from the buyer.
type OwnerDetails struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" binding:"omitempty,email"`
}

// Ticket is a reservation of Quantity seats of one ticket type by one buyer.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string        `json:"id" bun:"id,pk"`
	TicketTypeID string        `json:"ticketTypeId" bun:"ticket_type_id"`
	EventID      string        `json:"eventId" bun:"event_id"`
	BuyerID      string        `json:"buyerId" bun:"buyer_id"`
	Quantity     int           `json:"quantity" bun:"quantity"`
	Owner        *OwnerDetails `json:"owner,omitempty" bun:"owner,type:json,nullzero"`
	CreatedAt    time.Time     `json:"createdAt" bun:"created_at"`
}

// Buyer is the authenticated identity forwarded by the upstream auth layer.
type Buyer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
