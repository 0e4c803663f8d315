package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"

	"github.com/IBM/sarama"
)

const (
	TopicEventLifecycle  = "event-lifecycle"
	TopicPaymentWebhooks = "payment-webhooks"

	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond

	// SignatureHeader carries the gateway signature of a queued webhook body.
	SignatureHeader = "signature"
)

// LifecycleHandler mirrors event records published by the event service.
type LifecycleHandler interface {
	ApplyEventLifecycle(ctx context.Context, msg *models.EventLifecycleMessage) error
}

// WebhookHandler reconciles a raw webhook delivery and reports the HTTP
// status it would have answered with.
type WebhookHandler interface {
	Handle(ctx context.Context, body []byte, signature string) (int, error)
}

type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewConsumer(brokers []string, groupID string, topics []string, log *logger.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECTED", "consumer", fmt.Sprintf("Consumer group %s subscribed to %v", groupID, topics))
	return &Consumer{
		consumer: consumer,
		topics:   topics,
		log:      log,
	}, nil
}

func (c *Consumer) Consume(ctx context.Context, lifecycle LifecycleHandler, webhooks WebhookHandler) error {
	handler := &MessageHandler{Lifecycle: lifecycle, Webhooks: webhooks, Log: c.log}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// MessageHandler routes consumed messages by topic. A message whose handler
// keeps failing ends the claim unmarked, so neither it nor anything after it
// is committed and the group redelivers from that offset.
type MessageHandler struct {
	Lifecycle LifecycleHandler
	Webhooks  WebhookHandler
	Log       *logger.Logger

	// Attempts and Backoff bound the in-place retries of a failing message.
	Attempts int
	Backoff  time.Duration
}

func (h *MessageHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *MessageHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *MessageHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handleWithRetry(session.Context(), message); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Giving up on %s/%d at offset %d until redelivery: %v", message.Topic, message.Partition, message.Offset, err))
			return fmt.Errorf("offset %d of %s/%d not processed: %w", message.Offset, message.Topic, message.Partition, err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *MessageHandler) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempts := h.Attempts
	if attempts < 1 {
		attempts = defaultAttempts
	}
	backoff := h.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = h.handle(ctx, message); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		h.Log.Warn("KAFKA", fmt.Sprintf("Attempt %d/%d for offset %d failed: %v", attempt, attempts, message.Offset, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// handle returns an error only for failures worth redelivering.
func (h *MessageHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	switch message.Topic {
	case TopicEventLifecycle:
		var msg models.EventLifecycleMessage
		if err := json.Unmarshal(message.Value, &msg); err != nil {
			h.Log.Warn("KAFKA", fmt.Sprintf("Dropping undecodable lifecycle message at offset %d: %v", message.Offset, err))
			return nil
		}
		return h.Lifecycle.ApplyEventLifecycle(ctx, &msg)

	case TopicPaymentWebhooks:
		status, err := h.Webhooks.Handle(ctx, message.Value, headerValue(message, SignatureHeader))
		if status >= 500 {
			if err == nil {
				err = fmt.Errorf("webhook answered %d", status)
			}
			return err
		}
		h.Log.LogKafka("WEBHOOK", message.Topic, fmt.Sprintf("Queued delivery at offset %d reconciled with status %d", message.Offset, status))
		return nil

	default:
		h.Log.Warn("KAFKA", "Ignoring message from unexpected topic "+message.Topic)
		return nil
	}
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
