package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "paystack", cfg.Payment.Provider)
	assert.Equal(t, int32(2), cfg.Payment.CurrencyExponent)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, []string{"localhost:29092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.MockMode)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "stripe")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("PAYMENT_CURRENCY_EXPONENT", "0")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, int32(0), cfg.Payment.CurrencyExponent)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestWebhookSigningSecretFallsBackToSecretKey(t *testing.T) {
	p := PaymentConfig{SecretKey: "sk_test"}
	assert.Equal(t, "sk_test", p.WebhookSigningSecret())

	p.WebhookSecret = "whsec_test"
	assert.Equal(t, "whsec_test", p.WebhookSigningSecret())
}
