package gateway

import (
	"context"
	"fmt"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/square"
	"github.com/shopspring/decimal"
)

// squarePayments is the slice of the Square wrapper the card gateway uses.
type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// CardGateway charges tokenized cards through Square.
type CardGateway struct {
	client  squarePayments
	timeout time.Duration
	logg    *logger.Logger
}

// NewCardGateway wires the Square-backed card gateway.
func NewCardGateway(client *square.Client, timeout time.Duration, logg *logger.Logger) (*CardGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CardGateway{client: client, timeout: timeout, logg: logg}, nil
}

func (g *CardGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if req.SourceToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source token is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "charge amount must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.Amount.Shift(2).IntPart(),
		Currency:       string(req.Currency),
		SourceID:       req.SourceToken,
		IdempotencyKey: req.Reference,
		ReferenceID:    req.Reference,
		Note:           req.Description,
	})
	if err != nil {
		return nil, err
	}

	return &InitializeResult{
		GatewayReference: deref(payment.GetID()),
		Status:           squareStatus(deref(payment.GetStatus())),
	}, nil
}

func (g *CardGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	payment, err := g.client.GetPayment(ctx, reference)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Status:        squareStatus(deref(payment.GetStatus())),
		TransactionID: deref(payment.GetID()),
	}
	if money := payment.GetAmountMoney(); money != nil {
		if money.Amount != nil {
			result.Amount = decimal.New(*money.Amount, -2)
		}
		if money.Currency != nil {
			result.Currency = enums.Currency(*money.Currency)
		}
	}
	return result, nil
}

// Payout is unsupported on the card rail; withdrawals settle over bank
// transfer or mobile money.
func (g *CardGateway) Payout(ctx context.Context, _ PayoutRequest) (*PayoutResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "card gateway does not support payouts")
}

func squareStatus(status string) enums.GatewayStatus {
	switch status {
	case "COMPLETED", "APPROVED":
		return enums.GatewayStatusSuccess
	case "PENDING":
		return enums.GatewayStatusPending
	default:
		return enums.GatewayStatusFailed
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
