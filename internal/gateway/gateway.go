package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

// InitializeRequest starts a charge on an external payment rail.
type InitializeRequest struct {
	// Reference is our idempotency key for the charge; gateways receive it
	// so retried calls never double-charge.
	Reference   string
	Amount      decimal.Decimal
	Currency    enums.Currency
	Description string

	// SourceToken is the tokenized card for card charges.
	SourceToken string
	// PhoneNumber is the wallet MSISDN for mobile money charges.
	PhoneNumber string
}

// InitializeResult is the gateway's answer to a charge attempt.
type InitializeResult struct {
	// GatewayReference identifies the charge on the gateway's side.
	GatewayReference string
	// RedirectURL is set when the rail needs user interaction (STK push
	// fallback page, 3DS, bank instructions).
	RedirectURL string
	Status      enums.GatewayStatus
}

// VerifyResult reports the settled state of a charge.
type VerifyResult struct {
	Status        enums.GatewayStatus
	Amount        decimal.Decimal
	Currency      enums.Currency
	TransactionID string
}

// PayoutRequest pushes settled funds out to a provider.
type PayoutRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  enums.Currency
	Method    enums.WithdrawalMethod
	Details   types.WithdrawalDetails
}

// PayoutResult is the gateway's answer to a payout attempt.
type PayoutResult struct {
	TransactionID string
	Status        enums.GatewayStatus
}

// Gateway abstracts one external payment rail. Implementations never touch
// wallets; money movement stays in the ledger services.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

// Registry resolves the gateway for a payment or withdrawal method.
type Registry struct {
	payments map[enums.PaymentMethod]Gateway
	payouts  map[enums.WithdrawalMethod]Gateway
}

// NewRegistry returns an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		payments: make(map[enums.PaymentMethod]Gateway),
		payouts:  make(map[enums.WithdrawalMethod]Gateway),
	}
}

// RegisterPayment binds a gateway to an external payment method.
func (r *Registry) RegisterPayment(method enums.PaymentMethod, gw Gateway) *Registry {
	r.payments[method] = gw
	return r
}

// RegisterPayout binds a gateway to a withdrawal method.
func (r *Registry) RegisterPayout(method enums.WithdrawalMethod, gw Gateway) *Registry {
	r.payouts[method] = gw
	return r
}

// ForPayment resolves the gateway handling an external payment method.
func (r *Registry) ForPayment(method enums.PaymentMethod) (Gateway, error) {
	gw, ok := r.payments[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]any{"method": method})
	}
	return gw, nil
}

// ForPayout resolves the gateway handling a withdrawal method.
func (r *Registry) ForPayout(method enums.WithdrawalMethod) (Gateway, error) {
	gw, ok := r.payouts[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported withdrawal method").
			WithDetails(map[string]any{"method": method})
	}
	return gw, nil
}
