package gateway

import (
	"context"
	"errors"
	"fmt"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"
)

var (
	ErrUnavailable      = errors.New("payment gateway unavailable")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

// InitializeRequest asks the provider to open a hosted payment session.
type InitializeRequest struct {
	OrderID  string
	Email    string
	Amount   int64 // minor currency units
	Currency string
}

// Session is what the provider hands back; it does not confirm payment.
type Session struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Event is an authenticated webhook notification in provider-neutral form.
type Event struct {
	Kind      string
	Reference string
	Amount    int64 // minor currency units
	Currency  string
	// Succeeded is set only for kinds that denote a successful charge.
	Succeeded bool
}

type Gateway interface {
	Name() string
	Initialize(ctx context.Context, req InitializeRequest) (*Session, error)
	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	// ParseEvent authenticates payload against signature before decoding it.
	// It returns ErrSignatureInvalid without looking at the payload when the
	// signature does not match.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

func New(cfg config.PaymentConfig, log *logger.Logger) (Gateway, error) {
	switch cfg.Provider {
	case ProviderPaystack:
		return NewPaystack(cfg, log), nil
	case ProviderStripe:
		return NewStripe(cfg, log, ""), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
