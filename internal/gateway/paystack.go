package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"
)

const (
	ProviderPaystack = "paystack"

	PaystackSignatureHeader = "x-paystack-signature"
	PaystackChargeSuccess   = "charge.success"
)

// Paystack talks to the Paystack transaction API.
type Paystack struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string
	client        *http.Client
	log           *logger.Logger
}

func NewPaystack(cfg config.PaymentConfig, log *logger.Logger) *Paystack {
	return &Paystack{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSigningSecret(),
		callbackURL:   cfg.CallbackURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		log:           log,
	}
}

func (p *Paystack) Name() string            { return ProviderPaystack }
func (p *Paystack) SignatureHeader() string { return PaystackSignatureHeader }

type paystackInitializeBody struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	p.log.LogPayment("INITIALIZE", req.OrderID, fmt.Sprintf("Initializing Paystack transaction for %d %s", req.Amount, req.Currency))

	payload, err := json.Marshal(paystackInitializeBody{
		Email:       req.Email,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CallbackURL: p.callbackURL,
		Metadata:    map[string]string{"order_id": req.OrderID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build initialize request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Error("PAYSTACK", fmt.Sprintf("Initialize request for order %s failed: %v", req.OrderID, err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var out paystackInitializeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: status %d, undecodable response", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 || !out.Status {
		p.log.Error("PAYSTACK", fmt.Sprintf("Initialize for order %s rejected (%d): %s", req.OrderID, resp.StatusCode, out.Message))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, out.Message)
	}
	if out.Data.AuthorizationURL == "" || out.Data.Reference == "" {
		return nil, fmt.Errorf("%w: incomplete initialize response", ErrUnavailable)
	}

	p.log.LogPayment("INITIALIZED", req.OrderID, "Paystack reference "+out.Data.Reference)
	return &Session{
		AuthorizationURL: out.Data.AuthorizationURL,
		AccessCode:       out.Data.AccessCode,
		Reference:        out.Data.Reference,
	}, nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

func (p *Paystack) ParseEvent(payload []byte, signature string) (*Event, error) {
	if !VerifyHMACSHA512(p.webhookSecret, payload, signature) {
		return nil, ErrSignatureInvalid
	}

	var ev paystackEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &Event{
		Kind:      ev.Event,
		Reference: ev.Data.Reference,
		Amount:    ev.Data.Amount,
		Currency:  ev.Data.Currency,
		Succeeded: ev.Event == PaystackChargeSuccess,
	}, nil
}

// SignHMACSHA512 returns the hex HMAC-SHA512 of payload keyed with secret.
func SignHMACSHA512(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA512 compares signature against the expected MAC in constant time.
func VerifyHMACSHA512(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), given)
}
