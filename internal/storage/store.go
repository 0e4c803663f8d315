package storage

import (
	"context"
	"errors"
	"time"

	"ticket-checkout/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store persists events, ticket types, tickets and orders as independent
// collections. Methods called with a context obtained inside WithTx run in
// that transaction; Lock* methods hold a row lock until it ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// SaveEvent upserts the mirrored event. A deletion, once recorded, is kept.
	SaveEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// ListEvents returns the events that have not been deleted.
	ListEvents(ctx context.Context) ([]*models.Event, error)
	LockEvent(ctx context.Context, id string) (*models.Event, error)
	SetEventTotalTickets(ctx context.Context, id string, total int) error

	SaveTicketType(ctx context.Context, ticketType *models.TicketType) error
	UpdateTicketType(ctx context.Context, ticketType *models.TicketType) error
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
	LockTicketType(ctx context.Context, id string) (*models.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]*models.TicketType, error)
	SetTicketTypeSold(ctx context.Context, id string, sold int) error

	SaveTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	LockTicket(ctx context.Context, id string) (*models.Ticket, error)
	// GetTickets returns the tickets that exist among ids; missing ids are skipped.
	GetTickets(ctx context.Context, ids []string) ([]*models.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	SumTicketsByType(ctx context.Context, ticketTypeID string) (int, error)
	SumTicketsByEvent(ctx context.Context, eventID string) (int, error)
	IsTicketOrdered(ctx context.Context, ticketID string) (bool, error)

	// SaveOrder locks the order's tickets and fails with ErrNotFound when
	// any of them no longer exists.
	SaveOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	// MarkOrderPaid moves the order with the given reference from pending to
	// paid. It reports false when no pending order matched.
	MarkOrderPaid(ctx context.Context, reference string, at time.Time) (bool, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
