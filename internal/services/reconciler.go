package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/metrics"
	"ticket-checkout/internal/models"
	"ticket-checkout/internal/storage"
)

// Reconciler applies authenticated payment confirmations to orders.
type Reconciler struct {
	store     storage.Store
	gateway   gateway.Gateway
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

func NewReconciler(store storage.Store, gw gateway.Gateway, publisher Publisher, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		gateway:   gw,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SignatureHeader is the request header the active gateway signs deliveries in.
func (r *Reconciler) SignatureHeader() string {
	return r.gateway.SignatureHeader()
}

// Handle verifies and applies one webhook delivery and returns the HTTP
// status to answer the gateway with. A non-nil error explains any non-200.
func (r *Reconciler) Handle(ctx context.Context, body []byte, signature string) (status int, err error) {
	defer func() {
		metrics.TrackWebhook(status)
		if err != nil && status != http.StatusUnauthorized {
			r.log.Warn("WEBHOOK", fmt.Sprintf("Rejected payment confirmation (%d): %v", status, err))
		}
	}()

	event, err := r.gateway.ParseEvent(body, signature)
	if errors.Is(err, gateway.ErrSignatureInvalid) {
		r.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Invalid %s signature on payment webhook (%d bytes)", r.gateway.Name(), len(body)))
		return http.StatusUnauthorized, ErrSignatureInvalid
	}
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !event.Succeeded {
		return http.StatusBadRequest, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Kind)
	}
	if event.Reference == "" {
		return http.StatusBadRequest, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}

	order, err := r.store.GetOrderByReference(ctx, event.Reference)
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusBadRequest, fmt.Errorf("%w: reference %s", ErrOrderNotFound, event.Reference)
	}
	if err != nil {
		return http.StatusInternalServerError, err
	}

	if event.Amount < order.AmountDue {
		return http.StatusBadRequest, fmt.Errorf("%w: received %d, due %d for order %s", ErrAmountMismatch, event.Amount, order.AmountDue, order.ID)
	}
	if event.Currency != "" && order.Currency != "" && !strings.EqualFold(event.Currency, order.Currency) {
		return http.StatusBadRequest, fmt.Errorf("%w: paid in %s, order is in %s", ErrAmountMismatch, event.Currency, order.Currency)
	}

	if order.IsPaid() {
		r.log.LogPayment("REPLAY", order.ID, "Order already paid, ignoring repeated confirmation")
		return http.StatusOK, nil
	}

	paidAt := r.now()
	transitioned, err := r.store.MarkOrderPaid(ctx, order.PaymentReference, paidAt)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	if !transitioned {
		current, err := r.store.GetOrderByReference(ctx, order.PaymentReference)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		if current.IsPaid() {
			r.log.LogPayment("REPLAY", order.ID, "Concurrent confirmation already marked order paid")
			return http.StatusOK, nil
		}
		return http.StatusInternalServerError, fmt.Errorf("order %s is %s and could not be marked paid", order.ID, current.Status)
	}

	order.Status = models.OrderPaid
	order.PaidAt = &paidAt
	r.log.LogPayment("PAID", order.ID, fmt.Sprintf("Reference %s confirmed for %d (due %d)", order.PaymentReference, event.Amount, order.AmountDue))
	publish(ctx, r.publisher, r.log, &models.DomainEvent{
		Type:  models.OrderPaidEvent,
		Key:   order.ID,
		Order: order,
	})
	return http.StatusOK, nil
}
