package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/metrics"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/storage"
	"ticket-checkout/internal/utils"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds ticket quantities and capacities to the INT columns
// that store them.
const MaxQuantity = math.MaxInt32

// InventoryService owns the ticket type registry, the ticket ledger and the
// sold counters derived from it. Every ledger write goes through a
// transaction that locks the event row and then the ticket type row.
type InventoryService struct {
	store     storage.Store
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

func NewInventoryService(store storage.Store, publisher Publisher, log *logger.Logger) *InventoryService {
	return &InventoryService{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type ReserveRequest struct {
	TicketTypeID string
	// EventID is optional; when set it must match the ticket type's event.
	EventID  string
	Quantity int
	Buyer    models.Buyer
	Owner    *models.OwnerDetails
}

// Reserve admits a new ticket only if it fits within the ticket type's
// remaining capacity. The check and the insert share one transaction.
func (s *InventoryService) Reserve(ctx context.Context, req ReserveRequest) (*models.Ticket, error) {
	if req.Buyer.ID == "" {
		return nil, ErrMissingBuyer
	}
	if req.Quantity < 1 || req.Quantity > MaxQuantity {
		metrics.TrackReservation("invalid", 0)
		return nil, ErrInvalidQuantity
	}

	var ticket *models.Ticket
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		tt, err := s.store.GetTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return s.ticketTypeErr(err)
		}
		if req.EventID != "" && req.EventID != tt.EventID {
			return fmt.Errorf("%w: ticket type %s does not belong to event %s", ErrInvalidTicketType, tt.ID, req.EventID)
		}

		if _, err := s.lockLiveEvent(ctx, tt.EventID); err != nil {
			return err
		}
		tt, err = s.store.LockTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return s.ticketTypeErr(err)
		}

		sold, err := s.store.SumTicketsByType(ctx, tt.ID)
		if err != nil {
			return err
		}
		remaining := tt.Capacity - sold
		if req.Quantity > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return fmt.Errorf("%w: %d requested, %d remaining", ErrCapacityExceeded, req.Quantity, remaining)
		}

		ticket = &models.Ticket{
			ID:           utils.GenerateUUID(),
			TicketTypeID: tt.ID,
			EventID:      tt.EventID,
			BuyerID:      req.Buyer.ID,
			Quantity:     req.Quantity,
			Owner:        req.Owner,
			CreatedAt:    s.now(),
		}
		if err := s.store.SaveTicket(ctx, ticket); err != nil {
			return fmt.Errorf("failed to save ticket: %w", err)
		}
		return s.recount(ctx, tt.ID, tt.EventID)
	})
	if err != nil {
		metrics.TrackReservation(reservationOutcome(err), req.Quantity)
		if errors.Is(err, ErrCapacityExceeded) {
			s.log.LogInventory("REJECTED", req.TicketTypeID, err.Error())
		}
		return nil, err
	}

	metrics.TrackReservation("reserved", ticket.Quantity)
	s.log.LogInventory("RESERVED", ticket.TicketTypeID, fmt.Sprintf("Ticket %s reserved %d seat(s) for buyer %s", ticket.ID, ticket.Quantity, ticket.BuyerID))
	publish(ctx, s.publisher, s.log, &models.DomainEvent{
		Type:    models.TicketReserved,
		Key:     ticket.ID,
		EventID: ticket.EventID,
		Ticket:  ticket,
	})
	return ticket, nil
}

// Release deletes a ticket and returns its seats to the ticket type.
// An empty buyerID skips the ownership check.
func (s *InventoryService) Release(ctx context.Context, ticketID, buyerID string) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.store.LockTicket(ctx, ticketID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		if buyerID != "" && ticket.BuyerID != buyerID {
			return ErrTicketNotFound
		}

		ordered, err := s.store.IsTicketOrdered(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if ordered {
			return ErrTicketOrdered
		}

		if _, err := s.store.LockEvent(ctx, ticket.EventID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if _, err := s.store.LockTicketType(ctx, ticket.TicketTypeID); err != nil {
			return s.ticketTypeErr(err)
		}
		if err := s.store.DeleteTicket(ctx, ticket.ID); err != nil {
			return fmt.Errorf("failed to delete ticket: %w", err)
		}
		return s.recount(ctx, ticket.TicketTypeID, ticket.EventID)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogInventory("RELEASED", ticket.TicketTypeID, fmt.Sprintf("Ticket %s released %d seat(s)", ticket.ID, ticket.Quantity))
	publish(ctx, s.publisher, s.log, &models.DomainEvent{
		Type:    models.TicketReleased,
		Key:     ticket.ID,
		EventID: ticket.EventID,
		Ticket:  ticket,
	})
	return ticket, nil
}

func (s *InventoryService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

// recount refreshes the materialized counters from the ledger. It must run
// inside the transaction of the ledger write that triggered it.
func (s *InventoryService) recount(ctx context.Context, ticketTypeID, eventID string) error {
	sold, err := s.store.SumTicketsByType(ctx, ticketTypeID)
	if err != nil {
		return fmt.Errorf("failed to recount ticket type: %w", err)
	}
	if err := s.store.SetTicketTypeSold(ctx, ticketTypeID, sold); err != nil {
		return fmt.Errorf("failed to update sold count: %w", err)
	}

	total, err := s.store.SumTicketsByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to recount event: %w", err)
	}
	if err := s.store.SetEventTotalTickets(ctx, eventID, total); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to update event total: %w", err)
	}
	return nil
}

type TicketTypeInput struct {
	Name      string          `json:"name" binding:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Capacity  int             `json:"capacity"`
}

type TicketTypeUpdate struct {
	Name      *string          `json:"name"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
	Capacity  *int             `json:"capacity"`
}

func (s *InventoryService) RegisterTicketType(ctx context.Context, eventID string, in TicketTypeInput) (*models.TicketType, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateTicketType(in.Name, in.UnitPrice, in.Capacity); err != nil {
		return nil, err
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.IsDeleted() {
		return nil, ErrEventDeleted
	}

	now := s.now()
	tt := &models.TicketType{
		ID:        utils.GenerateUUID(),
		EventID:   eventID,
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		Capacity:  in.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveTicketType(ctx, tt); err != nil {
		return nil, fmt.Errorf("failed to save ticket type: %w", err)
	}

	s.log.LogInventory("REGISTERED", tt.ID, fmt.Sprintf("Ticket type %q for event %s: capacity %d at %s", tt.Name, eventID, tt.Capacity, tt.UnitPrice.StringFixed(2)))
	return tt, nil
}

func (s *InventoryService) UpdateTicketType(ctx context.Context, id string, upd TicketTypeUpdate) (*models.TicketType, error) {
	var tt *models.TicketType
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		tt, err = s.store.LockTicketType(ctx, id)
		if err != nil {
			return s.ticketTypeErr(err)
		}

		priceChanged := upd.UnitPrice != nil && !upd.UnitPrice.Equal(tt.UnitPrice)
		capacityChanged := upd.Capacity != nil && *upd.Capacity != tt.Capacity
		if priceChanged || capacityChanged {
			sold, err := s.store.SumTicketsByType(ctx, tt.ID)
			if err != nil {
				return err
			}
			if sold > 0 {
				return ErrTicketTypeLocked
			}
		}

		if upd.Name != nil {
			tt.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.UnitPrice != nil {
			tt.UnitPrice = *upd.UnitPrice
		}
		if upd.Capacity != nil {
			tt.Capacity = *upd.Capacity
		}
		if err := validateTicketType(tt.Name, tt.UnitPrice, tt.Capacity); err != nil {
			return err
		}
		tt.UpdatedAt = s.now()
		return s.store.UpdateTicketType(ctx, tt)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogInventory("UPDATED", tt.ID, fmt.Sprintf("Ticket type %q now capacity %d at %s", tt.Name, tt.Capacity, tt.UnitPrice.StringFixed(2)))
	return tt, nil
}

func (s *InventoryService) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt, err := s.store.GetTicketType(ctx, id)
	if err != nil {
		return nil, s.ticketTypeErr(err)
	}
	return tt, nil
}

func (s *InventoryService) ListTicketTypes(ctx context.Context, eventID string) ([]*models.TicketType, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return s.store.ListTicketTypes(ctx, eventID)
}

// SoldCount returns the seats sold for a ticket type.
func (s *InventoryService) SoldCount(ctx context.Context, ticketTypeID string) (int, error) {
	tt, err := s.store.GetTicketType(ctx, ticketTypeID)
	if err != nil {
		return 0, s.ticketTypeErr(err)
	}
	return tt.Sold, nil
}

// EventSoldCount returns the seats sold across all of an event's ticket types.
func (s *InventoryService) EventSoldCount(ctx context.Context, eventID string) (int, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrEventNotFound
	}
	if err != nil {
		return 0, err
	}
	return event.TotalTickets, nil
}

// Drift is a counter that disagreed with the ledger and was corrected.
type Drift struct {
	TicketTypeID string `json:"ticketTypeId,omitempty"`
	EventID      string `json:"eventId"`
	Stored       int    `json:"stored"`
	Actual       int    `json:"actual"`
}

// Reconcile recomputes every counter of an event from the ledger and
// returns the ones that had drifted.
func (s *InventoryService) Reconcile(ctx context.Context, eventID string) ([]Drift, error) {
	var drifts []Drift
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		drifts = nil

		event, err := s.store.LockEvent(ctx, eventID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}

		types, err := s.store.ListTicketTypes(ctx, eventID)
		if err != nil {
			return err
		}
		for _, listed := range types {
			tt, err := s.store.LockTicketType(ctx, listed.ID)
			if err != nil {
				return s.ticketTypeErr(err)
			}
			actual, err := s.store.SumTicketsByType(ctx, tt.ID)
			if err != nil {
				return err
			}
			metrics.SetDrift(tt.ID, tt.Sold-actual)
			if actual == tt.Sold {
				continue
			}
			drifts = append(drifts, Drift{TicketTypeID: tt.ID, EventID: eventID, Stored: tt.Sold, Actual: actual})
			if err := s.store.SetTicketTypeSold(ctx, tt.ID, actual); err != nil {
				return err
			}
		}

		total, err := s.store.SumTicketsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if total != event.TotalTickets {
			drifts = append(drifts, Drift{EventID: eventID, Stored: event.TotalTickets, Actual: total})
			return s.store.SetEventTotalTickets(ctx, eventID, total)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, d := range drifts {
		s.log.Warn("INVENTORY", fmt.Sprintf("Corrected drift for event %s type %q: stored %d, actual %d", d.EventID, d.TicketTypeID, d.Stored, d.Actual))
	}
	return drifts, nil
}

// ReconcileAll runs Reconcile over every live event, continuing past failures.
func (s *InventoryService) ReconcileAll(ctx context.Context) ([]Drift, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	var all []Drift
	var firstErr error
	for _, event := range events {
		drifts, err := s.Reconcile(ctx, event.ID)
		if err != nil {
			s.log.Error("INVENTORY", fmt.Sprintf("Reconcile of event %s failed: %v", event.ID, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		all = append(all, drifts...)
	}
	return all, firstErr
}

// ApplyEventLifecycle mirrors an event record owned by the event service.
func (s *InventoryService) ApplyEventLifecycle(ctx context.Context, msg *models.EventLifecycleMessage) error {
	if msg.EventID == "" {
		return fmt.Errorf("%w: lifecycle message without event id", ErrEventNotFound)
	}
	at := msg.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	event := &models.Event{ID: msg.EventID, Name: msg.Name, UpdatedAt: at}
	switch msg.Type {
	case models.EventCreated, models.EventUpdated:
	case models.EventDeleted:
		existing, err := s.store.GetEvent(ctx, msg.EventID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if existing != nil && event.Name == "" {
			event.Name = existing.Name
		}
		event.DeletedAt = &at
	default:
		s.log.Warn("INVENTORY", fmt.Sprintf("Ignoring lifecycle message %q for event %s", msg.Type, msg.EventID))
		return nil
	}

	if err := s.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	s.log.LogInventory(strings.ToUpper(string(msg.Type)), msg.EventID, "Event mirror updated")
	return nil
}

func (s *InventoryService) lockLiveEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.store.LockEvent(ctx, eventID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if event.IsDeleted() {
		return nil, ErrEventDeleted
	}
	return event, nil
}

func (s *InventoryService) ticketTypeErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTicketTypeNotFound
	}
	return err
}

func validateTicketType(name string, price decimal.Decimal, capacity int) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTicketType)
	case price.IsNegative():
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidTicketType)
	case !price.Equal(price.Round(2)):
		return fmt.Errorf("%w: unit price has more than two decimal places", ErrInvalidTicketType)
	case capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidTicketType)
	case capacity > MaxQuantity:
		return fmt.Errorf("%w: capacity must not exceed %d", ErrInvalidTicketType, MaxQuantity)
	}
	return nil
}

func reservationOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrEventDeleted):
		return "event_deleted"
	case errors.Is(err, ErrTicketTypeNotFound), errors.Is(err, ErrEventNotFound), errors.Is(err, ErrInvalidTicketType):
		return "not_found"
	default:
		return "error"
	}
}
