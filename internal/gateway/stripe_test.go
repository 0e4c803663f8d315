package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testStripeWebhookSecret = "whsec_test_secret"

func stripeConfig() config.PaymentConfig {
	return config.PaymentConfig{
		Provider:      ProviderStripe,
		SecretKey:     "sk_test_123",
		WebhookSecret: testStripeWebhookSecret,
		CallbackURL:   "https://tickets.example.com/paid",
		Currency:      "NGN",
		Timeout:       2 * time.Second,
	}
}

func signStripe(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestStripeInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "order-1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "60000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "ngn", r.PostForm.Get("line_items[0][price_data][currency]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_123","amount_total":60000,"currency":"ngn"}`))
	}))
	defer srv.Close()

	s := NewStripe(stripeConfig(), logger.Discard(), srv.URL)
	sess, err := s.Initialize(context.Background(), InitializeRequest{
		OrderID:  "order-1",
		Email:    "buyer@example.com",
		Amount:   60000,
		Currency: "NGN",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", sess.Reference)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", sess.AuthorizationURL)
	assert.Equal(t, "cs_test_123", sess.AccessCode)
}

func TestStripeInitializeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`))
	}))
	defer srv.Close()

	s := NewStripe(stripeConfig(), logger.Discard(), srv.URL)
	sess, err := s.Initialize(context.Background(), InitializeRequest{OrderID: "o", Email: "e@x.io", Amount: 100, Currency: "NGN"})

	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStripeParseEvent(t *testing.T) {
	s := NewStripe(stripeConfig(), logger.Discard(), "http://unused")
	completed := []byte(`{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_123", "object": "checkout.session", "amount_total": 60000, "currency": "ngn", "payment_status": "paid"}}
	}`)

	t.Run("completed and paid", func(t *testing.T) {
		ev, err := s.ParseEvent(completed, signStripe(t, completed, testStripeWebhookSecret))
		require.NoError(t, err)
		assert.True(t, ev.Succeeded)
		assert.Equal(t, "cs_test_123", ev.Reference)
		assert.Equal(t, int64(60000), ev.Amount)
		assert.Equal(t, "ngn", ev.Currency)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := s.ParseEvent(completed, signStripe(t, completed, "whsec_other"))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := s.ParseEvent(completed, "")
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("unpaid session", func(t *testing.T) {
		unpaid := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_9","object":"checkout.session","amount_total":100,"payment_status":"unpaid"}}}`)
		ev, err := s.ParseEvent(unpaid, signStripe(t, unpaid, testStripeWebhookSecret))
		require.NoError(t, err)
		assert.False(t, ev.Succeeded)
	})

	t.Run("other event type", func(t *testing.T) {
		other := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
		ev, err := s.ParseEvent(other, signStripe(t, other, testStripeWebhookSecret))
		require.NoError(t, err)
		assert.False(t, ev.Succeeded)
		assert.Equal(t, "customer.created", ev.Kind)
	})
}
