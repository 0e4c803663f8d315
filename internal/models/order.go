package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID        string   `json:"id" bun:"id,pk"`
	BuyerID   string   `json:"buyerId" bun:"buyer_id"`
	TicketIDs []string `json:"ticketIds" bun:"-"`
	// TotalPrice is in major currency units, rounded up to a whole unit.
	TotalPrice decimal.Decimal `json:"totalPrice" bun:"total_price,type:decimal(12,2)"`
	// AmountDue is TotalPrice in minor units; it is what the gateway charges
	// and what webhook amounts are compared against.
	AmountDue         int64       `json:"amountDue" bun:"amount_due"`
	Currency          string      `json:"currency" bun:"currency"`
	Status            OrderStatus `json:"status" bun:"status"`
	PaymentURL        string      `json:"paymentURL" bun:"payment_url"`
	PaymentAccessCode string      `json:"paymentAccessCode" bun:"payment_access_code"`
	PaymentReference  string      `json:"paymentReference" bun:"payment_reference,unique"`
	Provider          string      `json:"provider" bun:"provider"`
	CreatedAt         time.Time   `json:"createdAt" bun:"created_at"`
	PaidAt            *time.Time  `json:"paidAt,omitempty" bun:"paid_at,nullzero"`
}

func (o *Order) IsPaid() bool {
	return o.Status == OrderPaid
}

// OrderTicket links an order to the tickets it covers.
type OrderTicket struct {
	bun.BaseModel `bun:"table:order_tickets"`

	OrderID  string `bun:"order_id,pk"`
	TicketID string `bun:"ticket_id,pk"`
}
