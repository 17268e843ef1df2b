package withdrawals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

// RequestParams describes a provider's withdrawal request.
type RequestParams struct {
	UserID  uuid.UUID
	Amount  decimal.Decimal
	Method  enums.WithdrawalMethod
	Details types.WithdrawalDetails
}

// Service runs the withdrawal workflow. The full amount leaves the wallet at
// request time; rejection, cancellation, or terminal settlement failure puts
// it back with a reversal credit.
type Service interface {
	Request(ctx context.Context, params RequestParams) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, id, adminID uuid.UUID) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, id, userID uuid.UUID) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WithdrawalRequest, error)
}

// ServiceParams wires the withdrawal service dependencies.
type ServiceParams struct {
	Repo    Repository
	Wallets wallet.Service
	Config  config.WithdrawalsConfig
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	wallets wallet.Service
	cfg     config.WithdrawalsConfig
	logg    *logger.Logger
}

// NewService wires a withdrawal service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		wallets: params.Wallets,
		cfg:     params.Config,
		logg:    params.Logger,
	}, nil
}

func withdrawalRef(id uuid.UUID) string         { return fmt.Sprintf("wd-%s", id) }
func withdrawalReversalRef(id uuid.UUID) string { return fmt.Sprintf("wd-%s-reversal", id) }

func (s *service) Request(ctx context.Context, params RequestParams) (*models.WithdrawalRequest, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "withdrawal amount must be greater than zero")
	}
	if params.Amount.LessThan(s.cfg.MinimumAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "withdrawal amount below minimum").
			WithDetails(map[string]any{"minimum": s.cfg.MinimumAmount.String()})
	}
	if !params.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid withdrawal method")
	}
	if err := params.Details.ValidateFor(params.Method); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout destination")
	}

	userWallet, err := s.wallets.GetByUserID(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	fee := params.Amount.Mul(s.cfg.PlatformFeeRate).Round(2)
	net := params.Amount.Sub(fee)

	id := uuid.New()

	// The full requested amount leaves the wallet immediately so it cannot
	// be spent while the request is in flight.
	_, err = s.wallets.Debit(ctx, wallet.EntryParams{
		WalletID:    userWallet.ID,
		Amount:      params.Amount,
		Description: "withdrawal request",
		Reference:   withdrawalRef(id),
		Metadata: types.TransactionMetadata{
			Purpose: enums.PurposeWithdrawal,
			Withdrawal: &types.WithdrawalMetadata{
				WithdrawalID: id,
				Method:       params.Method,
				PlatformFee:  fee,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	details, err := encodeDetails(params.Details)
	if err != nil {
		return nil, err
	}

	request := &models.WithdrawalRequest{
		ID:          id,
		UserID:      params.UserID,
		WalletID:    userWallet.ID,
		Amount:      params.Amount,
		PlatformFee: fee,
		NetAmount:   net,
		Currency:    userWallet.Currency,
		Method:      params.Method,
		Details:     details,
		Reference:   withdrawalRef(id),
		Status:      enums.WithdrawalStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		// Funds already left the wallet; put them back before failing.
		s.reverse(ctx, request, "withdrawal creation failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id": id.String(),
		"amount":        params.Amount.String(),
		"fee":           fee.String(),
		"method":        params.Method,
	})
	s.logg.Info(logCtx, "withdrawal.requested")

	return request, nil
}

func (s *service) Approve(ctx context.Context, id, adminID uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status == enums.WithdrawalStatusApproved {
		return request, nil
	}
	if request.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is not pending").
			WithDetails(map[string]any{"status": request.Status})
	}

	moved, err := s.repo.Transition(ctx, id, enums.WithdrawalStatusPending, enums.WithdrawalStatusApproved,
		map[string]any{"approved_by": adminID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve withdrawal")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is not pending")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"withdrawal_id": id.String()}), "withdrawal.approved")
	return s.get(ctx, id)
}

func (s *service) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}

	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case enums.WithdrawalStatusRejected:
		// Redelivered rejection: make sure the reversal landed.
		s.reverse(ctx, request, reason)
		return request, nil
	case enums.WithdrawalStatusPending, enums.WithdrawalStatusApproved:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal can no longer be rejected").
			WithDetails(map[string]any{"status": request.Status})
	}

	moved, err := s.repo.Transition(ctx, id, request.Status, enums.WithdrawalStatusRejected,
		map[string]any{"reject_reason": reason})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject withdrawal")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal changed state concurrently")
	}

	s.reverse(ctx, request, reason)

	logCtx := s.logg.WithFields(ctx, map[string]any{"withdrawal_id": id.String(), "reason": reason})
	s.logg.Info(logCtx, "withdrawal.rejected")
	return s.get(ctx, id)
}

func (s *service) Cancel(ctx context.Context, id, userID uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "withdrawal belongs to another user")
	}
	if request.Status == enums.WithdrawalStatusRejected {
		return request, nil
	}
	// Approved requests may already be on their way to the rail.
	if request.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending withdrawals can be canceled").
			WithDetails(map[string]any{"status": request.Status})
	}

	const reason = "canceled by provider"
	moved, err := s.repo.Transition(ctx, id, enums.WithdrawalStatusPending, enums.WithdrawalStatusRejected,
		map[string]any{"reject_reason": reason})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel withdrawal")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal changed state concurrently")
	}

	s.reverse(ctx, request, reason)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"withdrawal_id": id.String()}), "withdrawal.canceled")
	return s.get(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.get(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WithdrawalRequest, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	requests, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return requests, nil
}

func (s *service) get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found").
				WithDetails(map[string]any{"withdrawal_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch withdrawal request")
	}
	return request, nil
}

// reverse returns the held funds to the wallet. The deterministic reference
// makes redelivered rejections and crash retries safe.
func (s *service) reverse(ctx context.Context, request *models.WithdrawalRequest, reason string) {
	reverseWithdrawal(ctx, s.wallets, s.logg, request, reason)
}

func reverseWithdrawal(ctx context.Context, wallets wallet.Service, logg *logger.Logger, request *models.WithdrawalRequest, reason string) {
	_, err := wallets.Credit(ctx, wallet.EntryParams{
		WalletID:    request.WalletID,
		Amount:      request.Amount,
		Description: "withdrawal reversal",
		Reference:   withdrawalReversalRef(request.ID),
		Metadata: types.TransactionMetadata{
			Purpose: enums.PurposeWithdrawalReversal,
			WithdrawalReversal: &types.WithdrawalReversalMetadata{
				WithdrawalID: request.ID,
				Reason:       reason,
			},
		},
	})
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReference) {
		logCtx := logg.WithFields(ctx, map[string]any{"withdrawal_id": request.ID.String()})
		logg.Error(logCtx, "withdrawal.reversal_failed", err)
	}
}

func encodeDetails(details types.WithdrawalDetails) ([]byte, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding payout details")
	}
	return raw, nil
}
