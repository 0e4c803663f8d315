package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	ProviderStripe = "stripe"

	StripeSignatureHeader = "Stripe-Signature"
)

// Stripe opens hosted Checkout Sessions and verifies Stripe webhook deliveries.
type Stripe struct {
	client        *client.API
	webhookSecret string
	successURL    string
	log           *logger.Logger
}

// NewStripe builds a Stripe gateway. apiURL overrides the API endpoint when non-empty.
func NewStripe(cfg config.PaymentConfig, log *logger.Logger, apiURL string) *Stripe {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if apiURL != "" {
		backendCfg.URL = stripe.String(apiURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	sc := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &Stripe{
		client:        sc,
		webhookSecret: cfg.WebhookSigningSecret(),
		successURL:    cfg.CallbackURL,
		log:           log,
	}
}

func (s *Stripe) Name() string            { return ProviderStripe }
func (s *Stripe) SignatureHeader() string { return StripeSignatureHeader }

func (s *Stripe) Initialize(ctx context.Context, req InitializeRequest) (*Session, error) {
	s.log.LogPayment("INITIALIZE", req.OrderID, fmt.Sprintf("Creating Stripe checkout session for %d %s", req.Amount, req.Currency))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Event tickets"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if s.successURL != "" {
		params.SuccessURL = stripe.String(s.successURL)
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for order %s: %v", req.OrderID, err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess.ID == "" || sess.URL == "" {
		return nil, fmt.Errorf("%w: incomplete checkout session", ErrUnavailable)
	}

	accessCode := sess.ClientSecret
	if accessCode == "" {
		accessCode = sess.ID
	}

	s.log.LogPayment("INITIALIZED", req.OrderID, "Stripe session "+sess.ID)
	return &Session{
		AuthorizationURL: sess.URL,
		AccessCode:       accessCode,
		Reference:        sess.ID,
	}, nil
}

func (s *Stripe) ParseEvent(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" || signature == "" {
		return nil, ErrSignatureInvalid
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, ErrSignatureInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return &Event{
			Kind:      string(event.Type),
			Reference: sess.ID,
			Amount:    sess.AmountTotal,
			Currency:  string(sess.Currency),
			Succeeded: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}, nil
	default:
		return &Event{Kind: string(event.Type)}, nil
	}
}
