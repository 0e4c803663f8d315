package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paystackConfig(baseURL string) config.PaymentConfig {
	return config.PaymentConfig{
		Provider:  ProviderPaystack,
		SecretKey: "sk_test_secret",
		BaseURL:   baseURL,
		Currency:  "NGN",
		Timeout:   2 * time.Second,
	}
}

func TestPaystackInitialize(t *testing.T) {
	var got paystackInitializeBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ref_123"}}`))
	}))
	defer srv.Close()

	p := NewPaystack(paystackConfig(srv.URL), logger.Discard())
	sess, err := p.Initialize(context.Background(), InitializeRequest{
		OrderID:  "order-1",
		Email:    "buyer@example.com",
		Amount:   60000,
		Currency: "NGN",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", sess.AuthorizationURL)
	assert.Equal(t, "abc", sess.AccessCode)
	assert.Equal(t, "ref_123", sess.Reference)
	assert.Equal(t, "buyer@example.com", got.Email)
	assert.Equal(t, int64(60000), got.Amount)
	assert.Equal(t, "order-1", got.Metadata["order_id"])
}

func TestPaystackInitializeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		timeout time.Duration
		delay   time.Duration
	}{
		{name: "rejected", status: http.StatusBadRequest, body: `{"status":false,"message":"Invalid key"}`},
		{name: "status false", status: http.StatusOK, body: `{"status":false,"message":"nope"}`},
		{name: "not json", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
		{name: "incomplete", status: http.StatusOK, body: `{"status":true,"data":{"access_code":"abc"}}`},
		{name: "timeout", status: http.StatusOK, body: `{}`, timeout: 50 * time.Millisecond, delay: 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					time.Sleep(tt.delay)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := paystackConfig(srv.URL)
			if tt.timeout > 0 {
				cfg.Timeout = tt.timeout
			}
			p := NewPaystack(cfg, logger.Discard())

			sess, err := p.Initialize(context.Background(), InitializeRequest{OrderID: "o", Email: "e@x.io", Amount: 100})
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestPaystackParseEvent(t *testing.T) {
	p := NewPaystack(paystackConfig("http://unused"), logger.Discard())
	body := []byte(`{"event":"charge.success","data":{"reference":"ref_123","amount":60000,"currency":"NGN"}}`)

	t.Run("valid signature", func(t *testing.T) {
		ev, err := p.ParseEvent(body, SignHMACSHA512("sk_test_secret", body))
		require.NoError(t, err)
		assert.True(t, ev.Succeeded)
		assert.Equal(t, "ref_123", ev.Reference)
		assert.Equal(t, int64(60000), ev.Amount)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, err := p.ParseEvent(body, SignHMACSHA512("other", body))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := p.ParseEvent(body, "")
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("not hex", func(t *testing.T) {
		_, err := p.ParseEvent(body, "zz-not-hex")
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := SignHMACSHA512("sk_test_secret", body)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"ref_123","amount":1,"currency":"NGN"}}`)
		_, err := p.ParseEvent(tampered, sig)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("other event kind", func(t *testing.T) {
		other := []byte(`{"event":"transfer.success","data":{"reference":"ref_123","amount":60000}}`)
		ev, err := p.ParseEvent(other, SignHMACSHA512("sk_test_secret", other))
		require.NoError(t, err)
		assert.False(t, ev.Succeeded)
	})

	t.Run("signed garbage", func(t *testing.T) {
		garbage := []byte(`not json`)
		_, err := p.ParseEvent(garbage, SignHMACSHA512("sk_test_secret", garbage))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestPaystackUsesDedicatedWebhookSecret(t *testing.T) {
	cfg := paystackConfig("http://unused")
	cfg.WebhookSecret = "whsec"
	p := NewPaystack(cfg, logger.Discard())
	body := []byte(`{"event":"charge.success","data":{"reference":"r","amount":1}}`)

	_, err := p.ParseEvent(body, SignHMACSHA512("sk_test_secret", body))
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	_, err = p.ParseEvent(body, SignHMACSHA512("whsec", body))
	assert.NoError(t, err)
}

func TestNewSelectsProvider(t *testing.T) {
	gw, err := New(paystackConfig("http://unused"), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, ProviderPaystack, gw.Name())

	cfg := paystackConfig("")
	cfg.Provider = ProviderStripe
	gw, err = New(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, ProviderStripe, gw.Name())

	cfg.Provider = "cash"
	_, err = New(cfg, logger.Discard())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
