package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ticket-checkout/internal/models"
)

// InMemoryStore keeps everything in maps behind one mutex. A transaction
// holds the mutex for its whole duration and restores a snapshot on error,
// so it serializes every writer the way a row lock would.
type InMemoryStore struct {
	mutex sync.Mutex

	events       map[string]models.Event
	ticketTypes  map[string]models.TicketType
	tickets      map[string]models.Ticket
	orders       map[string]models.Order
	orderByRef   map[string]string
	orderedCount map[string]int
}

type memTxKey struct{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:       make(map[string]models.Event),
		ticketTypes:  make(map[string]models.TicketType),
		tickets:      make(map[string]models.Ticket),
		orders:       make(map[string]models.Order),
		orderByRef:   make(map[string]string),
		orderedCount: make(map[string]int),
	}
}

func (s *InMemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *InMemoryStore) SaveEvent(ctx context.Context, event *models.Event) error {
	defer s.lock(ctx)()

	stored := *event
	if existing, ok := s.events[event.ID]; ok {
		stored.TotalTickets = existing.TotalTickets
		if existing.DeletedAt != nil {
			stored.DeletedAt = existing.DeletedAt
		}
	}
	s.events[event.ID] = stored
	return nil
}

func (s *InMemoryStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	defer s.lock(ctx)()

	event, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &event, nil
}

func (s *InMemoryStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	defer s.lock(ctx)()

	var out []*models.Event
	for _, event := range s.events {
		if event.DeletedAt == nil {
			event := event
			out = append(out, &event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) LockEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.GetEvent(ctx, id)
}

func (s *InMemoryStore) SetEventTotalTickets(ctx context.Context, id string, total int) error {
	defer s.lock(ctx)()

	event, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	event.TotalTickets = total
	s.events[id] = event
	return nil
}

func (s *InMemoryStore) SaveTicketType(ctx context.Context, ticketType *models.TicketType) error {
	defer s.lock(ctx)()

	if _, exists := s.ticketTypes[ticketType.ID]; exists {
		return ErrDuplicate
	}
	s.ticketTypes[ticketType.ID] = *ticketType
	return nil
}

func (s *InMemoryStore) UpdateTicketType(ctx context.Context, ticketType *models.TicketType) error {
	defer s.lock(ctx)()

	existing, ok := s.ticketTypes[ticketType.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = ticketType.Name
	existing.UnitPrice = ticketType.UnitPrice
	existing.Capacity = ticketType.Capacity
	existing.UpdatedAt = ticketType.UpdatedAt
	s.ticketTypes[ticketType.ID] = existing
	return nil
}

func (s *InMemoryStore) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	defer s.lock(ctx)()

	tt, ok := s.ticketTypes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tt, nil
}

func (s *InMemoryStore) LockTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	return s.GetTicketType(ctx, id)
}

func (s *InMemoryStore) ListTicketTypes(ctx context.Context, eventID string) ([]*models.TicketType, error) {
	defer s.lock(ctx)()

	var out []*models.TicketType
	for _, tt := range s.ticketTypes {
		if tt.EventID == eventID {
			tt := tt
			out = append(out, &tt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) SetTicketTypeSold(ctx context.Context, id string, sold int) error {
	defer s.lock(ctx)()

	tt, ok := s.ticketTypes[id]
	if !ok {
		return ErrNotFound
	}
	tt.Sold = sold
	s.ticketTypes[id] = tt
	return nil
}

func (s *InMemoryStore) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	defer s.lock(ctx)()

	if _, exists := s.tickets[ticket.ID]; exists {
		return ErrDuplicate
	}
	s.tickets[ticket.ID] = *ticket
	return nil
}

func (s *InMemoryStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	defer s.lock(ctx)()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ticket, nil
}

func (s *InMemoryStore) LockTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.GetTicket(ctx, id)
}

func (s *InMemoryStore) GetTickets(ctx context.Context, ids []string) ([]*models.Ticket, error) {
	defer s.lock(ctx)()

	out := make([]*models.Ticket, 0, len(ids))
	for _, id := range ids {
		if ticket, ok := s.tickets[id]; ok {
			ticket := ticket
			out = append(out, &ticket)
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteTicket(ctx context.Context, id string) error {
	defer s.lock(ctx)()

	if _, ok := s.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

func (s *InMemoryStore) SumTicketsByType(ctx context.Context, ticketTypeID string) (int, error) {
	defer s.lock(ctx)()

	total := 0
	for _, ticket := range s.tickets {
		if ticket.TicketTypeID == ticketTypeID {
			total += ticket.Quantity
		}
	}
	return total, nil
}

func (s *InMemoryStore) SumTicketsByEvent(ctx context.Context, eventID string) (int, error) {
	defer s.lock(ctx)()

	total := 0
	for _, ticket := range s.tickets {
		if ticket.EventID == eventID {
			total += ticket.Quantity
		}
	}
	return total, nil
}

func (s *InMemoryStore) IsTicketOrdered(ctx context.Context, ticketID string) (bool, error) {
	defer s.lock(ctx)()

	return s.orderedCount[ticketID] > 0, nil
}

func (s *InMemoryStore) SaveOrder(ctx context.Context, order *models.Order) error {
	defer s.lock(ctx)()

	if _, exists := s.orders[order.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := s.orderByRef[order.PaymentReference]; exists {
		return ErrDuplicate
	}
	for _, id := range order.TicketIDs {
		if _, ok := s.tickets[id]; !ok {
			return fmt.Errorf("%w: ticket %s", ErrNotFound, id)
		}
	}

	stored := *order
	stored.TicketIDs = append([]string(nil), order.TicketIDs...)
	s.orders[order.ID] = stored
	s.orderByRef[order.PaymentReference] = order.ID
	for _, id := range stored.TicketIDs {
		s.orderedCount[id]++
	}
	return nil
}

func (s *InMemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	defer s.lock(ctx)()

	return s.orderCopy(id)
}

func (s *InMemoryStore) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	defer s.lock(ctx)()

	id, ok := s.orderByRef[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return s.orderCopy(id)
}

func (s *InMemoryStore) MarkOrderPaid(ctx context.Context, reference string, at time.Time) (bool, error) {
	defer s.lock(ctx)()

	id, ok := s.orderByRef[reference]
	if !ok {
		return false, nil
	}
	order := s.orders[id]
	if order.Status != models.OrderPending {
		return false, nil
	}
	order.Status = models.OrderPaid
	paidAt := at
	order.PaidAt = &paidAt
	s.orders[id] = order
	return true, nil
}

func (s *InMemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func (s *InMemoryStore) orderCopy(id string) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	order.TicketIDs = append([]string(nil), order.TicketIDs...)
	return &order, nil
}

func (s *InMemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*InMemoryStore)
	return owner == s
}

// lock acquires the mutex unless ctx already runs inside this store's transaction.
func (s *InMemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mutex.Lock()
	return s.mutex.Unlock
}

type memSnapshot struct {
	events       map[string]models.Event
	ticketTypes  map[string]models.TicketType
	tickets      map[string]models.Ticket
	orders       map[string]models.Order
	orderByRef   map[string]string
	orderedCount map[string]int
}

func (s *InMemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		events:       cloneMap(s.events),
		ticketTypes:  cloneMap(s.ticketTypes),
		tickets:      cloneMap(s.tickets),
		orders:       cloneMap(s.orders),
		orderByRef:   cloneMap(s.orderByRef),
		orderedCount: cloneMap(s.orderedCount),
	}
}

func (s *InMemoryStore) restore(snap memSnapshot) {
	s.events = snap.events
	s.ticketTypes = snap.ticketTypes
	s.tickets = snap.tickets
	s.orders = snap.orders
	s.orderByRef = snap.orderByRef
	s.orderedCount = snap.orderedCount
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
