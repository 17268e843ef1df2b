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

// BankTransferGateway moves money over the bank rail. Inbound transfers
// confirm asynchronously: Initialize returns pending and the ledger entry
// stays pending until Verify reports the rail settled.
type BankTransferGateway struct {
	rest    *restClient
	timeout time.Duration
}

// NewBankTransferGateway wires the bank transfer HTTP client.
func NewBankTransferGateway(cfg config.BankTransferConfig, timeout time.Duration, logg *logger.Logger) (*BankTransferGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("bank transfer base url required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("bank transfer api key required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BankTransferGateway{
		rest: &restClient{
			name:    "bank_transfer",
			baseURL: strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:  cfg.APIKey,
			http:    &http.Client{Timeout: timeout},
			logg:    logg,
		},
		timeout: timeout,
	}, nil
}

type bankTransferRequest struct {
	Reference   string `json:"reference"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

type bankTransferResponse struct {
	TransferID    string `json:"transfer_id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transaction_id,omitempty"`
	Instructions  string `json:"instructions_url,omitempty"`
}

type bankPayoutRequest struct {
	Reference     string `json:"reference"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type bankPayoutResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (g *BankTransferGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "transfer amount must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp bankTransferResponse
	err := g.rest.do(ctx, http.MethodPost, "/v1/transfers/inbound", bankTransferRequest{
		Reference:   req.Reference,
		Amount:      req.Amount.StringFixed(2),
		Currency:    string(req.Currency),
		Description: req.Description,
	}, &resp)
	if err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("bank_transfer", resp.Status)
	if err != nil {
		return nil, err
	}
	return &InitializeResult{
		GatewayReference: resp.TransferID,
		RedirectURL:      resp.Instructions,
		Status:           status,
	}, nil
}

func (g *BankTransferGateway) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp bankTransferResponse
	if err := g.rest.do(ctx, http.MethodGet, "/v1/transfers/inbound/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("bank_transfer", resp.Status)
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
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "bank gateway returned malformed amount")
		}
		result.Amount = amount
	}
	return result, nil
}

func (g *BankTransferGateway) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if err := req.Details.ValidateFor(enums.WithdrawalMethodBankTransfer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout destination")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payout amount must be greater than zero")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var resp bankPayoutResponse
	err := g.rest.do(ctx, http.MethodPost, "/v1/transfers/outbound", bankPayoutRequest{
		Reference:     req.Reference,
		Amount:        req.Amount.StringFixed(2),
		Currency:      string(req.Currency),
		BankName:      req.Details.BankName,
		AccountNumber: req.Details.AccountNumber,
		AccountName:   req.Details.AccountName,
	}, &resp)
	if err != nil {
		return nil, err
	}

	status, err := parseGatewayStatus("bank_transfer", resp.Status)
	if err != nil {
		return nil, err
	}
	return &PayoutResult{TransactionID: resp.TransactionID, Status: status}, nil
}
