package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/metrics"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/redis"
	"ticket-checkout/internal/storage"
	"ticket-checkout/internal/utils"

	"github.com/shopspring/decimal"
)

// CheckoutService groups a buyer's tickets into a payable order and opens a
// payment session for it.
type CheckoutService struct {
	store     storage.Store
	gateway   gateway.Gateway
	guard     IdempotencyGuard
	publisher Publisher
	log       *logger.Logger

	currency       string
	exponent       int32
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewCheckoutService wires the aggregator. guard may be nil, which disables
// Idempotency-Key handling.
func NewCheckoutService(store storage.Store, gw gateway.Gateway, guard IdempotencyGuard, publisher Publisher, cfg config.PaymentConfig, log *logger.Logger) *CheckoutService {
	return &CheckoutService{
		store:          store,
		gateway:        gw,
		guard:          guard,
		publisher:      publisher,
		log:            log,
		currency:       cfg.Currency,
		exponent:       cfg.CurrencyExponent,
		gatewayTimeout: cfg.Timeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutRequest struct {
	TicketIDs      []string
	Buyer          models.Buyer
	IdempotencyKey string
}

func (s *CheckoutService) CreateOrder(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if req.Buyer.ID == "" {
		return nil, ErrMissingBuyer
	}
	if strings.TrimSpace(req.Buyer.Email) == "" {
		metrics.TrackOrder("invalid_buyer")
		return nil, ErrMissingEmail
	}
	ids := uniqueIDs(req.TicketIDs)
	if len(ids) == 0 {
		metrics.TrackOrder("invalid_ticket")
		return nil, fmt.Errorf("%w: no tickets selected", ErrInvalidTicket)
	}

	key := req.IdempotencyKey
	if key != "" && s.guard != nil {
		existingID, claimed, err := s.guard.Claim(ctx, req.Buyer.ID, key)
		switch {
		case errors.Is(err, redis.ErrInProgress):
			return nil, ErrCheckoutInProgress
		case err != nil:
			s.log.Warn("CHECKOUT", fmt.Sprintf("Idempotency guard unavailable, continuing without it: %v", err))
			key = ""
		case !claimed:
			order, err := s.GetOrder(ctx, existingID)
			if err != nil {
				return nil, err
			}
			s.log.LogPayment("REPLAY", order.ID, "Returning order for repeated idempotency key")
			return order, nil
		}
	} else {
		key = ""
	}

	order, err := s.createOrder(ctx, req.Buyer, ids)
	if err != nil {
		metrics.TrackOrder(orderOutcome(err))
		if key != "" {
			if rerr := s.guard.Release(ctx, req.Buyer.ID, key); rerr != nil {
				s.log.Warn("CHECKOUT", fmt.Sprintf("Failed to release idempotency key: %v", rerr))
			}
		}
		return nil, err
	}

	metrics.TrackOrder("created")
	if key != "" {
		if err := s.guard.Complete(ctx, req.Buyer.ID, key, order.ID); err != nil {
			s.log.Warn("CHECKOUT", fmt.Sprintf("Failed to record idempotency key for order %s: %v", order.ID, err))
		}
	}
	return order, nil
}

func (s *CheckoutService) createOrder(ctx context.Context, buyer models.Buyer, ids []string) (*models.Order, error) {
	tickets, err := s.store.GetTickets(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(ids) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidTicket, missingID(ids, tickets))
	}

	total, err := s.totalPrice(ctx, buyer, tickets)
	if err != nil {
		return nil, err
	}
	amountDue := total.Shift(s.exponent).IntPart()

	orderID := utils.GenerateUUID()
	session, err := s.initialize(ctx, gateway.InitializeRequest{
		OrderID:  orderID,
		Email:    buyer.Email,
		Amount:   amountDue,
		Currency: s.currency,
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:                orderID,
		BuyerID:           buyer.ID,
		TicketIDs:         ids,
		TotalPrice:        total,
		AmountDue:         amountDue,
		Currency:          s.currency,
		Status:            models.OrderPending,
		PaymentURL:        session.AuthorizationURL,
		PaymentAccessCode: session.AccessCode,
		PaymentReference:  session.Reference,
		Provider:          s.gateway.Name(),
		CreatedAt:         s.now(),
	}
	if err := s.store.SaveOrder(ctx, order); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("CHECKOUT", fmt.Sprintf("Ticket released while order %s was being opened (reference %s)", orderID, session.Reference))
			return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
		}
		s.log.Error("CHECKOUT", fmt.Sprintf("Gateway session %s opened but order %s was not saved: %v", session.Reference, orderID, err))
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.log.LogPayment("ORDER_CREATED", order.ID, fmt.Sprintf("%d ticket(s), total %s %s, reference %s", len(ids), total.String(), s.currency, order.PaymentReference))
	publish(ctx, s.publisher, s.log, &models.DomainEvent{
		Type:  models.OrderCreated,
		Key:   order.ID,
		Order: order,
	})
	return order, nil
}

// totalPrice sums unitPrice*quantity over the tickets and rounds up to a
// whole currency unit.
func (s *CheckoutService) totalPrice(ctx context.Context, buyer models.Buyer, tickets []*models.Ticket) (decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, ticket := range tickets {
		if ticket.BuyerID != buyer.ID {
			return decimal.Zero, fmt.Errorf("%w: %s belongs to another buyer", ErrInvalidTicket, ticket.ID)
		}
		price, ok := prices[ticket.TicketTypeID]
		if !ok {
			tt, err := s.store.GetTicketType(ctx, ticket.TicketTypeID)
			if errors.Is(err, storage.ErrNotFound) {
				return decimal.Zero, fmt.Errorf("%w: ticket type of %s no longer exists", ErrInvalidTicket, ticket.ID)
			}
			if err != nil {
				return decimal.Zero, err
			}
			price = tt.UnitPrice
			prices[ticket.TicketTypeID] = price
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(ticket.Quantity))))
	}
	return total.Ceil(), nil
}

func (s *CheckoutService) initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Session, error) {
	if s.gatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
	}

	start := time.Now()
	session, err := s.gateway.Initialize(ctx, req)
	if err != nil {
		metrics.TrackGateway(s.gateway.Name(), "error", time.Since(start))
		s.log.Error("CHECKOUT", fmt.Sprintf("Payment initialization for order %s failed: %v", req.OrderID, err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	metrics.TrackGateway(s.gateway.Name(), "ok", time.Since(start))
	return session, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingID(ids []string, found []*models.Ticket) string {
	have := make(map[string]bool, len(found))
	for _, t := range found {
		have[t.ID] = true
	}
	for _, id := range ids {
		if !have[id] {
			return id
		}
	}
	return ""
}

func orderOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTicket):
		return "invalid_ticket"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	default:
		return "error"
	}
}
