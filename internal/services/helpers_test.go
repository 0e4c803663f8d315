package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/redis"
	"ticket-checkout/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGateway implements gateway.Gateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string            { return "mock" }
func (m *MockGateway) SignatureHeader() string { return "x-mock-signature" }

func (m *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Session), args.Error(1)
}

func (m *MockGateway) ParseEvent(payload []byte, signature string) (*gateway.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Event), args.Error(1)
}

// slowGateway never answers before the caller's deadline.
type slowGateway struct{}

func (slowGateway) Name() string            { return "slow" }
func (slowGateway) SignatureHeader() string { return "x-slow-signature" }
func (slowGateway) ParseEvent([]byte, string) (*gateway.Event, error) {
	return nil, gateway.ErrSignatureInvalid
}
func (slowGateway) Initialize(ctx context.Context, _ gateway.InitializeRequest) (*gateway.Session, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type memoryGuard struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{entries: make(map[string]string)}
}

func (g *memoryGuard) Claim(_ context.Context, buyerID, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := redis.Key(buyerID, key)
	val, ok := g.entries[k]
	if !ok {
		g.entries[k] = "pending"
		return "", true, nil
	}
	if val == "pending" {
		return "", false, redis.ErrInProgress
	}
	return val, false, nil
}

func (g *memoryGuard) Complete(_ context.Context, buyerID, key, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[redis.Key(buyerID, key)] = orderID
	return nil
}

func (g *memoryGuard) Release(_ context.Context, buyerID, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := redis.Key(buyerID, key)
	if g.entries[k] == "pending" {
		delete(g.entries, k)
	}
	return nil
}

// instrumentedStore wraps the in-memory store to count calls and inject faults.
type instrumentedStore struct {
	*storage.InMemoryStore

	failSoldUpdate bool
	lookups        atomic.Int32
	savedOrders    atomic.Int32
}

func newInstrumentedStore() *instrumentedStore {
	return &instrumentedStore{InMemoryStore: storage.NewInMemoryStore()}
}

func (s *instrumentedStore) SetTicketTypeSold(ctx context.Context, id string, sold int) error {
	if s.failSoldUpdate {
		return errors.New("disk full")
	}
	return s.InMemoryStore.SetTicketTypeSold(ctx, id, sold)
}

func (s *instrumentedStore) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	s.lookups.Add(1)
	return s.InMemoryStore.GetOrderByReference(ctx, reference)
}

func (s *instrumentedStore) SaveOrder(ctx context.Context, order *models.Order) error {
	s.savedOrders.Add(1)
	return s.InMemoryStore.SaveOrder(ctx, order)
}

var testBuyer = models.Buyer{ID: "buyer-1", Email: "buyer@example.com"}

func seedEvent(t *testing.T, store storage.Store, id string) {
	t.Helper()
	require.NoError(t, store.SaveEvent(context.Background(), &models.Event{
		ID:        id,
		Name:      "Concert " + id,
		UpdatedAt: time.Now().UTC(),
	}))
}

func seedTicketType(t *testing.T, inv *InventoryService, eventID, price string, capacity int) *models.TicketType {
	t.Helper()
	tt, err := inv.RegisterTicketType(context.Background(), eventID, TicketTypeInput{
		Name:      "General",
		UnitPrice: decimal.RequireFromString(price),
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return tt
}

func reserve(t *testing.T, inv *InventoryService, tt *models.TicketType, quantity int) *models.Ticket {
	t.Helper()
	ticket, err := inv.Reserve(context.Background(), ReserveRequest{
		TicketTypeID: tt.ID,
		EventID:      tt.EventID,
		Quantity:     quantity,
		Buyer:        testBuyer,
	})
	require.NoError(t, err)
	return ticket
}

func newTestInventory(store storage.Store) (*InventoryService, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewInventoryService(store, pub, logger.Discard()), pub
}
