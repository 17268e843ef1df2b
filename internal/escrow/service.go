package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/gateway"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

// ProcessPaymentParams describes one booking payment.
type ProcessPaymentParams struct {
	BookingID      uuid.UUID
	PayerUserID    uuid.UUID
	ProviderUserID uuid.UUID
	Amount         decimal.Decimal
	Method         enums.PaymentMethod
	Description    string

	// SourceToken is required for card payments, PhoneNumber for mobile money.
	SourceToken string
	PhoneNumber string
}

// PaymentResult reports where a booking payment landed.
type PaymentResult struct {
	BookingID uuid.UUID           `json:"booking_id"`
	Hold      *models.PaymentHold `json:"hold,omitempty"`
	// Pending means the external rail has not confirmed yet; the charge
	// credit sits pending in the payer's ledger awaiting confirmation.
	Pending     bool   `json:"pending"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Reference   string `json:"reference"`
}

// ReleaseResult reports the commission math applied when escrow released.
type ReleaseResult struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	Rate          decimal.Decimal `json:"rate"`
	Commission    decimal.Decimal `json:"commission"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	ConfigVersion int             `json:"config_version"`
}

// RefundParams describes a full or split refund of a held booking payment.
type RefundParams struct {
	BookingID      uuid.UUID
	PayerAmount    decimal.Decimal
	ProviderAmount decimal.Decimal
}

// RefundResult reports the refund split applied.
type RefundResult struct {
	BookingID      uuid.UUID       `json:"booking_id"`
	PayerAmount    decimal.Decimal `json:"payer_amount"`
	ProviderAmount decimal.Decimal `json:"provider_amount"`
}

// Service runs the escrow flow: funds leave the payer at booking time, sit on
// a hold, and reach the provider (minus commission) only on release.
type Service interface {
	ProcessBookingPayment(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error)
	ConfirmExternalPayment(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error)
	Release(ctx context.Context, bookingID uuid.UUID) (*ReleaseResult, error)
	Refund(ctx context.Context, params RefundParams) (*RefundResult, error)
	GetHold(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error)
	ListHoldsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentHold, error)
}

// ServiceParams wires the escrow service dependencies.
type ServiceParams struct {
	Repo       Repository
	Wallets    wallet.Service
	Commission commission.Service
	Gateways   *gateway.Registry
	Logger     *logger.Logger
}

type service struct {
	repo       Repository
	wallets    wallet.Service
	commission commission.Service
	gateways   *gateway.Registry
	logg       *logger.Logger
}

// NewService wires an escrow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Commission == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       params.Repo,
		wallets:    params.Wallets,
		commission: params.Commission,
		gateways:   params.Gateways,
		logg:       params.Logger,
	}, nil
}

// Deterministic ledger references: retries and crash recovery hit the same
// unique keys instead of minting new money movements.
func chargeRef(bookingID uuid.UUID) string { return fmt.Sprintf("bkg-%s-charge", bookingID) }
func holdRef(bookingID uuid.UUID) string   { return fmt.Sprintf("bkg-%s-hold", bookingID) }
func holdReversalRef(bookingID uuid.UUID) string {
	return fmt.Sprintf("bkg-%s-hold-reversal", bookingID)
}
func releaseRef(bookingID uuid.UUID) string     { return fmt.Sprintf("bkg-%s-release", bookingID) }
func refundPayerRef(bookingID uuid.UUID) string { return fmt.Sprintf("bkg-%s-refund-payer", bookingID) }
func refundProviderRef(bookingID uuid.UUID) string {
	return fmt.Sprintf("bkg-%s-refund-provider", bookingID)
}

func (s *service) ProcessBookingPayment(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetHoldByBookingID(ctx, params.BookingID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking is already paid").
			WithDetails(map[string]any{"booking_id": params.BookingID})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment hold")
	}

	if params.Method == enums.PaymentMethodWallet {
		return s.payFromWallet(ctx, params)
	}
	return s.payExternal(ctx, params)
}

// payFromWallet debits the payer and escrows the funds in one pass. The debit
// carries the booking's deterministic hold reference, so a crash after the
// debit but before the hold insert is repaired by retrying the same call.
func (s *service) payFromWallet(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error) {
	payerWallet, err := s.wallets.GetOrCreateWallet(ctx, params.PayerUserID)
	if err != nil {
		return nil, err
	}

	meta := types.TransactionMetadata{
		Purpose: enums.PurposeBookingHold,
		BookingHold: &types.BookingHoldMetadata{
			BookingID:      params.BookingID,
			ProviderUserID: params.ProviderUserID,
		},
	}
	_, err = s.wallets.Debit(ctx, wallet.EntryParams{
		WalletID:    payerWallet.ID,
		Amount:      params.Amount,
		Description: params.Description,
		Reference:   holdRef(params.BookingID),
		Metadata:    meta,
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReference) {
		return nil, err
	}

	return s.createHold(ctx, params)
}

func (s *service) createHold(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error) {
	hold := &models.PaymentHold{
		ID:             uuid.New(),
		BookingID:      params.BookingID,
		PayerUserID:    params.PayerUserID,
		ProviderUserID: params.ProviderUserID,
		Amount:         params.Amount,
		Currency:       enums.CurrencyKES,
		Status:         enums.HoldStatusHeld,
	}
	if err := s.repo.CreateHold(ctx, hold); err != nil {
		if db.IsUniqueViolation(err, "") {
			// Lost the unique booking index race: hand the money back
			// before reporting the conflict.
			if _, creditErr := s.wallets.Credit(ctx, wallet.EntryParams{
				WalletID:    mustWalletID(ctx, s.wallets, params.PayerUserID),
				Amount:      params.Amount,
				Description: "duplicate booking payment reversal",
				Reference:   holdReversalRef(params.BookingID),
				Metadata: types.TransactionMetadata{
					Purpose: enums.PurposeBookingRefund,
					BookingRefund: &types.BookingRefundMetadata{
						BookingID:  params.BookingID,
						HeldAmount: params.Amount,
					},
				},
			}); creditErr != nil && !pkgerrors.IsCode(creditErr, pkgerrors.CodeDuplicateReference) {
				logCtx := s.logg.WithFields(ctx, map[string]any{"booking_id": params.BookingID.String()})
				s.logg.Error(logCtx, "escrow.compensation_failed", creditErr)
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking is already paid")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment hold")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"booking_id": params.BookingID.String(),
		"amount":     params.Amount.String(),
		"method":     params.Method,
	})
	s.logg.Info(logCtx, "escrow.hold_created")

	return &PaymentResult{
		BookingID: params.BookingID,
		Hold:      hold,
		Reference: holdRef(params.BookingID),
	}, nil
}

// payExternal charges the rail first. Synchronous rails (card, settled STK
// pushes) top up the payer's wallet and escrow in one pass; async rails leave
// a pending credit that ConfirmExternalPayment resolves.
func (s *service) payExternal(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error) {
	gw, err := s.gateways.ForPayment(params.Method)
	if err != nil {
		return nil, err
	}

	init, err := gw.Initialize(ctx, gateway.InitializeRequest{
		Reference:   chargeRef(params.BookingID),
		Amount:      params.Amount,
		Currency:    enums.CurrencyKES,
		Description: params.Description,
		SourceToken: params.SourceToken,
		PhoneNumber: params.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	status := init.Status
	if status == enums.GatewayStatusPending {
		// One immediate verify catches rails that settle synchronously.
		if verified, verifyErr := gw.Verify(ctx, init.GatewayReference); verifyErr == nil {
			status = verified.Status
		}
	}

	switch status {
	case enums.GatewayStatusFailed:
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDeclined, "payment was declined").
			WithDetails(map[string]any{"booking_id": params.BookingID})
	case enums.GatewayStatusPending:
		if err := s.creditCharge(ctx, params, init.GatewayReference, true); err != nil {
			return nil, err
		}
		return &PaymentResult{
			BookingID:   params.BookingID,
			Pending:     true,
			RedirectURL: init.RedirectURL,
			Reference:   chargeRef(params.BookingID),
		}, nil
	}

	if err := s.creditCharge(ctx, params, init.GatewayReference, false); err != nil {
		return nil, err
	}
	return s.payFromWallet(ctx, params)
}

// creditCharge records the external top-up in the payer's ledger.
func (s *service) creditCharge(ctx context.Context, params ProcessPaymentParams, gatewayRef string, pending bool) error {
	payerWallet, err := s.wallets.GetOrCreateWallet(ctx, params.PayerUserID)
	if err != nil {
		return err
	}

	bookingID := params.BookingID
	_, err = s.wallets.Credit(ctx, wallet.EntryParams{
		WalletID:    payerWallet.ID,
		Amount:      params.Amount,
		Description: params.Description,
		Reference:   chargeRef(params.BookingID),
		Pending:     pending,
		Metadata: types.TransactionMetadata{
			Purpose: enums.PurposeExternalPayment,
			ExternalPayment: &types.ExternalPaymentMetadata{
				BookingID:     &bookingID,
				PaymentMethod: params.Method,
				GatewayTxnID:  gatewayRef,
			},
		},
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReference) {
		return err
	}
	return nil
}

// ConfirmExternalPayment resolves a pending external charge: it re-verifies
// the rail and, on success, completes the credit and escrows the funds. Safe
// to call repeatedly; every money movement uses the booking's references.
func (s *service) ConfirmExternalPayment(ctx context.Context, params ProcessPaymentParams) (*PaymentResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if !params.Method.IsExternal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet payments need no confirmation")
	}

	txn, err := s.wallets.GetTransactionByReference(ctx, chargeRef(params.BookingID))
	if err != nil {
		return nil, err
	}

	meta, err := types.DecodeTransactionMetadata(txn.Metadata)
	if err != nil || meta.ExternalPayment == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "charge entry metadata unreadable")
	}

	gw, err := s.gateways.ForPayment(params.Method)
	if err != nil {
		return nil, err
	}
	verified, err := gw.Verify(ctx, meta.ExternalPayment.GatewayTxnID)
	if err != nil {
		return nil, err
	}

	switch verified.Status {
	case enums.GatewayStatusPending:
		return &PaymentResult{
			BookingID: params.BookingID,
			Pending:   true,
			Reference: chargeRef(params.BookingID),
		}, nil
	case enums.GatewayStatusFailed:
		if _, err := s.wallets.FailTransaction(ctx, chargeRef(params.BookingID)); err != nil &&
			!pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDeclined, "payment was declined").
			WithDetails(map[string]any{"booking_id": params.BookingID})
	}

	if _, err := s.wallets.ConfirmTransaction(ctx, chargeRef(params.BookingID)); err != nil {
		return nil, err
	}
	return s.payFromWallet(ctx, params)
}

func (s *service) Release(ctx context.Context, bookingID uuid.UUID) (*ReleaseResult, error) {
	hold, err := s.getHold(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch hold.Status {
	case enums.HoldStatusReleased:
		// Claimed earlier. Re-drive the provider credit so a crash between
		// the claim and the credit heals on retry.
		if err := s.settleRelease(ctx, hold); err != nil {
			return nil, err
		}
		return releaseOutcome(hold), nil
	case enums.HoldStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeHoldResolved, "booking payment was refunded").
			WithDetails(map[string]any{"booking_id": bookingID})
	}

	quote, err := s.commission.Calculate(ctx, hold.Amount)
	if err != nil {
		return nil, err
	}

	// Claim the hold before any money moves. Release and Refund race on
	// this transition, so only the winner's credits ever land.
	marked, err := s.repo.MarkReleased(ctx, hold.ID, quote.Rate, quote.Commission, quote.Net, quote.ConfigVersion, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark hold released")
	}
	if !marked {
		// Another writer resolved the hold between our read and update.
		current, err := s.getHold(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.HoldStatusReleased {
			if err := s.settleRelease(ctx, current); err != nil {
				return nil, err
			}
			return releaseOutcome(current), nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeHoldResolved, "booking payment was refunded")
	}

	hold.Status = enums.HoldStatusReleased
	hold.CommissionRate = &quote.Rate
	hold.CommissionAmount = &quote.Commission
	hold.NetAmount = &quote.Net
	version := quote.ConfigVersion
	hold.CommissionConfigVersion = &version
	if err := s.settleRelease(ctx, hold); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"gross":      quote.Gross.String(),
		"commission": quote.Commission.String(),
		"net":        quote.Net.String(),
	})
	s.logg.Info(logCtx, "escrow.released")

	return &ReleaseResult{
		BookingID:     bookingID,
		GrossAmount:   quote.Gross,
		Rate:          quote.Rate,
		Commission:    quote.Commission,
		NetAmount:     quote.Net,
		ConfigVersion: quote.ConfigVersion,
	}, nil
}

func (s *service) Refund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	if params.PayerAmount.IsNegative() || params.ProviderAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "refund amounts must not be negative")
	}

	hold, err := s.getHold(ctx, params.BookingID)
	if err != nil {
		return nil, err
	}

	switch hold.Status {
	case enums.HoldStatusRefunded:
		if err := s.settleRefund(ctx, hold); err != nil {
			return nil, err
		}
		return refundOutcome(hold), nil
	case enums.HoldStatusReleased:
		return nil, pkgerrors.New(pkgerrors.CodeHoldResolved, "booking payment was released").
			WithDetails(map[string]any{"booking_id": params.BookingID})
	}

	if !params.PayerAmount.Add(params.ProviderAmount).Equal(hold.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeRefundMismatch, "refund split does not match held amount").
			WithDetails(map[string]any{
				"held":     hold.Amount.String(),
				"payer":    params.PayerAmount.String(),
				"provider": params.ProviderAmount.String(),
			})
	}

	// Claim before crediting, mirroring Release.
	marked, err := s.repo.MarkRefunded(ctx, hold.ID, params.PayerAmount, params.ProviderAmount, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark hold refunded")
	}
	if !marked {
		current, err := s.getHold(ctx, params.BookingID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.HoldStatusRefunded {
			if err := s.settleRefund(ctx, current); err != nil {
				return nil, err
			}
			return refundOutcome(current), nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeHoldResolved, "booking payment was released")
	}

	hold.Status = enums.HoldStatusRefunded
	hold.RefundPayerAmount = &params.PayerAmount
	hold.RefundProviderAmount = &params.ProviderAmount
	if err := s.settleRefund(ctx, hold); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"booking_id": params.BookingID.String(),
		"payer":      params.PayerAmount.String(),
		"provider":   params.ProviderAmount.String(),
	})
	s.logg.Info(logCtx, "escrow.refunded")

	return &RefundResult{
		BookingID:      params.BookingID,
		PayerAmount:    params.PayerAmount,
		ProviderAmount: params.ProviderAmount,
	}, nil
}

// settleRelease lands the provider credit for a hold already claimed as
// released. The deterministic reference makes re-driving it safe.
func (s *service) settleRelease(ctx context.Context, hold *models.PaymentHold) error {
	if hold.CommissionRate == nil || hold.CommissionAmount == nil || hold.NetAmount == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "released hold is missing commission fields").
			WithDetails(map[string]any{"booking_id": hold.BookingID})
	}
	providerWallet, err := s.wallets.GetOrCreateWallet(ctx, hold.ProviderUserID)
	if err != nil {
		return err
	}

	var version int
	if hold.CommissionConfigVersion != nil {
		version = *hold.CommissionConfigVersion
	}
	_, err = s.wallets.Credit(ctx, wallet.EntryParams{
		WalletID:    providerWallet.ID,
		Amount:      *hold.NetAmount,
		Description: "booking payment released",
		Reference:   releaseRef(hold.BookingID),
		Metadata: types.TransactionMetadata{
			Purpose: enums.PurposeJobPayment,
			JobPayment: &types.JobPaymentMetadata{
				BookingID:      hold.BookingID,
				GrossAmount:    hold.Amount,
				CommissionRate: *hold.CommissionRate,
				Commission:     *hold.CommissionAmount,
				ConfigVersion:  version,
			},
		},
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReference) {
		return err
	}
	return nil
}

// settleRefund lands the refund credits for a hold already claimed as
// refunded, using the split stored on the hold.
func (s *service) settleRefund(ctx context.Context, hold *models.PaymentHold) error {
	if hold.RefundPayerAmount == nil || hold.RefundProviderAmount == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "refunded hold is missing the refund split").
			WithDetails(map[string]any{"booking_id": hold.BookingID})
	}
	partial := hold.RefundProviderAmount.IsPositive()

	if hold.RefundPayerAmount.IsPositive() {
		if err := s.refundCredit(ctx, hold.PayerUserID, *hold.RefundPayerAmount, hold, partial,
			refundPayerRef(hold.BookingID), "booking payment refunded"); err != nil {
			return err
		}
	}
	if partial {
		if err := s.refundCredit(ctx, hold.ProviderUserID, *hold.RefundProviderAmount, hold, partial,
			refundProviderRef(hold.BookingID), "partial booking payout on dispute"); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) refundCredit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, hold *models.PaymentHold, partial bool, reference, description string) error {
	target, err := s.wallets.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.wallets.Credit(ctx, wallet.EntryParams{
		WalletID:    target.ID,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Metadata: types.TransactionMetadata{
			Purpose: enums.PurposeBookingRefund,
			BookingRefund: &types.BookingRefundMetadata{
				BookingID:  hold.BookingID,
				HeldAmount: hold.Amount,
				Partial:    partial,
			},
		},
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReference) {
		return err
	}
	return nil
}

func (s *service) GetHold(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error) {
	return s.getHold(ctx, bookingID)
}

func (s *service) ListHoldsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentHold, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	holds, err := s.repo.ListHoldsByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment holds")
	}
	return holds, nil
}

func (s *service) getHold(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error) {
	hold, err := s.repo.GetHoldByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment hold for booking").
				WithDetails(map[string]any{"booking_id": bookingID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment hold")
	}
	return hold, nil
}

func validateParams(params ProcessPaymentParams) error {
	if params.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	if params.PayerUserID == uuid.Nil || params.ProviderUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer and provider are required")
	}
	if params.PayerUserID == params.ProviderUserID {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer and provider must differ")
	}
	if !params.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment amount must be greater than zero")
	}
	if !params.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	return nil
}

func releaseOutcome(hold *models.PaymentHold) *ReleaseResult {
	result := &ReleaseResult{BookingID: hold.BookingID, GrossAmount: hold.Amount}
	if hold.CommissionRate != nil {
		result.Rate = *hold.CommissionRate
	}
	if hold.CommissionAmount != nil {
		result.Commission = *hold.CommissionAmount
	}
	if hold.NetAmount != nil {
		result.NetAmount = *hold.NetAmount
	}
	if hold.CommissionConfigVersion != nil {
		result.ConfigVersion = *hold.CommissionConfigVersion
	}
	return result
}

func refundOutcome(hold *models.PaymentHold) *RefundResult {
	result := &RefundResult{BookingID: hold.BookingID}
	if hold.RefundPayerAmount != nil {
		result.PayerAmount = *hold.RefundPayerAmount
	}
	if hold.RefundProviderAmount != nil {
		result.ProviderAmount = *hold.RefundProviderAmount
	}
	return result
}

// mustWalletID resolves the wallet id for compensation credits; failures fall
// back to uuid.Nil and the credit error path logs the problem.
func mustWalletID(ctx context.Context, wallets wallet.Service, userID uuid.UUID) uuid.UUID {
	w, err := wallets.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return uuid.Nil
	}
	return w.ID
}
