package services

import (
	"context"
	"fmt"
	"time"

	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"
)

// Publisher emits domain events after the change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, event *models.DomainEvent) error
}

// IdempotencyGuard remembers the order a buyer's idempotency key produced.
type IdempotencyGuard interface {
	Claim(ctx context.Context, buyerID, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, buyerID, key, orderID string) error
	Release(ctx context.Context, buyerID, key string) error
}

// publish never fails the caller; the state change is already durable.
func publish(ctx context.Context, p Publisher, log *logger.Logger, event *models.DomainEvent) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn("EVENTS", fmt.Sprintf("Failed to publish %s for %s: %v", event.Type, event.Key, err))
	}
}
