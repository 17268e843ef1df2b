package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

// MobileMoneyGateway charges and pays out over a mobile money aggregator
// (mpesa in production). Charges are STK pushes: Initialize usually returns
// pending and Verify resolves once the subscriber confirms on their handset.
type MobileMoneyGateway struct {
	rest     *restClient
	provider string
	timeout  time.Duration
}

// NewMobileMoneyGateway wires the mobile money HTTP client.
func NewMobileMoneyGateway(cfg config.MobileMoneyConfig, timeout time.Duration, logg *logger.Logger) (*MobileMoneyGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("mobile money base url required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("mobile money api key required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MobileMoneyGateway{
		rest: &restClient{
			name:    "mobile_money",
			baseURL: strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:  cfg.APIKey,
			http:    &http.Client{Timeout: timeout},
			logg:    logg,
		},
		provider: cfg.Provider,
		timeout:  timeout,
	}, nil
}

type momoChargeRequest struct {
	Reference   string `json:"reference"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	Description string `json:"description,omitempty"`
}

type momoChargeResponse struct {
	ChargeID      string `json:"charge_id"`
	Status        string `json:"status"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type momoPayoutRequest struct {
	Reference   string `json:"reference"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
}

type momoPayoutResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (g *MobileMoneyGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mobile money charge requires a phone number")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "charge amount must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp momoChargeResponse
	err := g.rest.do(ctx, http.MethodPost, "/v1/charges", momoChargeRequest{
		Reference:   req.Reference,
		Provider:    g.provider,
		Amount:      req.Amount.StringFixed(2),
		Currency:    string(req.Currency),
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,
	}, &resp)
	if err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("mobile_money", resp.Status)
	if err != nil {
		return nil, err
	}
	return &InitializeResult{
		GatewayReference: resp.ChargeID,
		RedirectURL:      resp.RedirectURL,
		Status:           status,
	}, nil
}

func (g *MobileMoneyGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp momoChargeResponse
	if err := g.rest.do(ctx, http.MethodGet, "/v1/charges/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("mobile_money", resp.Status)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{
		Status:        status,
		TransactionID: resp.TransactionID,
		Currency:      enums.Currency(resp.Currency),
	}
	if resp.Amount != "" {
		amount, err := decimal.NewFromString(resp.Amount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "mobile money gateway returned malformed amount")
		}
		result.Amount = amount
	}
	return result, nil
}

func (g *MobileMoneyGateway) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if err := req.Details.ValidateFor(enums.WithdrawalMethodMobileMoney); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout destination")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payout amount must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp momoPayoutResponse
	err := g.rest.do(ctx, http.MethodPost, "/v1/payouts", momoPayoutRequest{
		Reference:   req.Reference,
		Provider:    g.provider,
		Amount:      req.Amount.StringFixed(2),
		Currency:    string(req.Currency),
		PhoneNumber: req.Details.PhoneNumber,
	}, &resp)
	if err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("mobile_money", resp.Status)
	if err != nil {
		return nil, err
	}
	return &PayoutResult{TransactionID: resp.TransactionID, Status: status}, nil
}
