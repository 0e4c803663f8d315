package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func paymentConfig(exponent int32) config.PaymentConfig {
	return config.PaymentConfig{
		Provider:         "mock",
		Currency:         "NGN",
		CurrencyExponent: exponent,
		Timeout:          time.Second,
	}
}

type checkoutFixture struct {
	store *instrumentedStore
	inv   *InventoryService
	gw    *MockGateway
	pub   *recordingPublisher
	svc   *CheckoutService
}

func newCheckoutFixture(t *testing.T, guard IdempotencyGuard) *checkoutFixture {
	t.Helper()
	store := newInstrumentedStore()
	inv, _ := newTestInventory(store)
	gw := &MockGateway{}
	pub := &recordingPublisher{}
	seedEvent(t, store, "ev-1")
	return &checkoutFixture{
		store: store,
		inv:   inv,
		gw:    gw,
		pub:   pub,
		svc:   NewCheckoutService(store, gw, guard, pub, paymentConfig(2), logger.Discard()),
	}
}

func session(ref string) *gateway.Session {
	return &gateway.Session{
		AuthorizationURL: "https://checkout.example.com/" + ref,
		AccessCode:       "code-" + ref,
		Reference:        ref,
	}
}

func TestCreateOrderAggregatesTickets(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
		ids = append(ids, reserve(t, f.inv, tt, 2).ID)
	}

	f.gw.On("Initialize", mock.Anything, mock.MatchedBy(func(req gateway.InitializeRequest) bool {
		return req.Amount == 60000 && req.Email == testBuyer.Email && req.Currency == "NGN"
	})).Return(session("ref_b"), nil).Once()

	order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: ids, Buyer: testBuyer})
	require.NoError(t, err)

	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, int64(60000), order.AmountDue)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "ref_b", order.PaymentReference)
	assert.Equal(t, "https://checkout.example.com/ref_b", order.PaymentURL)
	assert.Equal(t, "code-ref_b", order.PaymentAccessCode)
	assert.ElementsMatch(t, ids, order.TicketIDs)
	assert.Equal(t, 1, f.pub.count(models.OrderCreated))

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentReference, stored.PaymentReference)
	f.gw.AssertExpectations(t)
}

func TestCreateOrderRoundsTotalUp(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "10.25", 10)
	ticket := reserve(t, f.inv, tt, 2)

	f.gw.On("Initialize", mock.Anything, mock.MatchedBy(func(req gateway.InitializeRequest) bool {
		return req.Amount == 2100
	})).Return(session("ref_ceil"), nil).Once()

	order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID, ticket.ID}, Buyer: testBuyer})
	require.NoError(t, err)
	assert.Equal(t, "21", order.TotalPrice.String())
	assert.Equal(t, []string{ticket.ID}, order.TicketIDs)
}

func TestCreateOrderInvalidTicketsNeverReachGateway(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	mine := reserve(t, f.inv, tt, 1)
	theirs, err := f.inv.Reserve(context.Background(), ReserveRequest{
		TicketTypeID: tt.ID,
		Quantity:     1,
		Buyer:        models.Buyer{ID: "buyer-2", Email: "two@example.com"},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"empty", nil, ErrInvalidTicket},
		{"blank ids", []string{" ", ""}, ErrInvalidTicket},
		{"unknown id", []string{mine.ID, "missing"}, ErrInvalidTicket},
		{"other buyer", []string{mine.ID, theirs.ID}, ErrInvalidTicket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: tt.ids, Buyer: testBuyer})
			assert.Nil(t, order)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{mine.ID}})
	assert.ErrorIs(t, err, ErrMissingBuyer)

	f.gw.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
	assert.Zero(t, f.store.savedOrders.Load())
}

func TestCreateOrderGatewayFailurePersistsNothing(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 1)

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(nil, gateway.ErrUnavailable).Once()

	order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer})
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Zero(t, f.store.savedOrders.Load())
	assert.Zero(t, f.pub.count(models.OrderCreated))

	ordered, err := f.store.IsTicketOrdered(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.False(t, ordered)
}

func TestCreateOrderGatewayTimeout(t *testing.T) {
	store := newInstrumentedStore()
	inv, _ := newTestInventory(store)
	seedEvent(t, store, "ev-1")
	tt := seedTicketType(t, inv, "ev-1", "100", 10)
	ticket := reserve(t, inv, tt, 1)

	cfg := paymentConfig(2)
	cfg.Timeout = 50 * time.Millisecond
	svc := NewCheckoutService(store, slowGateway{}, nil, nil, cfg, logger.Discard())

	start := time.Now()
	_, err := svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, store.savedOrders.Load())
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	guard := newMemoryGuard()
	f := newCheckoutFixture(t, guard)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 1)
	req := CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer, IdempotencyKey: "key-1"}

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(session("ref_idem"), nil).Once()

	first, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), f.store.savedOrders.Load())
	f.gw.AssertNumberOfCalls(t, "Initialize", 1)

	_, _, err = guard.Claim(context.Background(), testBuyer.ID, "key-2")
	require.NoError(t, err)
	_, err = f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer, IdempotencyKey: "key-2"})
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
}

func TestCreateOrderReleasesKeyOnFailure(t *testing.T) {
	guard := newMemoryGuard()
	f := newCheckoutFixture(t, guard)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 1)
	req := CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer, IdempotencyKey: "retry-me"}

	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(session("ref_retry"), nil).Once()

	_, err := f.svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	order, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ref_retry", order.PaymentReference)
}

func TestGetOrderNotFound(t *testing.T) {
	svc := NewCheckoutService(storage.NewInMemoryStore(), &MockGateway{}, nil, nil, paymentConfig(2), logger.Discard())
	_, err := svc.GetOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCreateOrderFailsWhenTicketReleasedDuringGatewayCall(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 2)

	f.gw.On("Initialize", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		_, err := f.inv.Release(context.Background(), ticket.ID, testBuyer.ID)
		require.NoError(t, err)
	}).Return(session("ref_released"), nil).Once()

	order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer})
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrInvalidTicket)

	_, err = f.store.GetOrderByReference(context.Background(), "ref_released")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.pub.count(models.OrderCreated))
}

func TestReleaseAfterOrderSavedIsRefused(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 2)
	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(session("ref_kept"), nil).Once()

	order, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{TicketIDs: []string{ticket.ID}, Buyer: testBuyer})
	require.NoError(t, err)

	_, err = f.inv.Release(context.Background(), ticket.ID, testBuyer.ID)
	assert.ErrorIs(t, err, ErrTicketOrdered)

	stored, err := f.store.GetTicket(context.Background(), order.TicketIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Quantity)
}

func TestCreateOrderRequiresBuyerEmail(t *testing.T) {
	f := newCheckoutFixture(t, nil)
	tt := seedTicketType(t, f.inv, "ev-1", "100", 10)
	ticket := reserve(t, f.inv, tt, 1)

	_, err := f.svc.CreateOrder(context.Background(), CheckoutRequest{
		TicketIDs: []string{ticket.ID},
		Buyer:     models.Buyer{ID: testBuyer.ID, Email: "  "},
	})
	assert.ErrorIs(t, err, ErrMissingEmail)
	f.gw.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}
