package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const pendingMarker = "pending"

var ErrInProgress = errors.New("checkout with this idempotency key is still in progress")

// IdempotencyGuard remembers which order a buyer's Idempotency-Key produced.
type IdempotencyGuard struct {
	Client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{Client: client, ttl: ttl}
}

func Key(buyerID, idempotencyKey string) string {
	return fmt.Sprintf("checkout:%s:%s", buyerID, idempotencyKey)
}

// Claim takes the key for a new checkout. When the key already produced an
// order, that order id is returned with claimed=false.
func (g *IdempotencyGuard) Claim(ctx context.Context, buyerID, idempotencyKey string) (orderID string, claimed bool, err error) {
	key := Key(buyerID, idempotencyKey)
	ok, err := g.Client.SetNX(ctx, key, pendingMarker, g.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := g.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		// expired between SETNX and GET
		return "", false, ErrInProgress
	}
	if err != nil {
		return "", false, err
	}
	if val == pendingMarker {
		return "", false, ErrInProgress
	}
	return val, false, nil
}

// Complete records the order produced under a claimed key.
func (g *IdempotencyGuard) Complete(ctx context.Context, buyerID, idempotencyKey, orderID string) error {
	return g.Client.Set(ctx, Key(buyerID, idempotencyKey), orderID, g.ttl).Err()
}

// Release drops a claim whose checkout failed so the buyer can retry.
func (g *IdempotencyGuard) Release(ctx context.Context, buyerID, idempotencyKey string) error {
	key := Key(buyerID, idempotencyKey)
	val, err := g.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != pendingMarker {
		return nil // a finished order stays remembered
	}
	return g.Client.Del(ctx, key).Err()
}

func (g *IdempotencyGuard) Ping(ctx context.Context) error {
	return g.Client.Ping(ctx).Err()
}
