package withdrawals

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

// stubWallets covers the ledger calls the withdrawal flow makes: lookup,
// funds-hold debit, reversal credit.
type stubWallets struct {
	wallet.Service

	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
	refs    map[string]int
}

func newStubWallets() *stubWallets {
	return &stubWallets{
		wallets: make(map[uuid.UUID]*models.Wallet),
		refs:    make(map[string]int),
	}
}

func (s *stubWallets) seed(userID uuid.UUID, balance decimal.Decimal) *models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  balance,
		Currency: enums.CurrencyKES,
		Status:   enums.WalletStatusActive,
	}
	s.wallets[userID] = w
	return w
}

func (s *stubWallets) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return w, nil
}

func (s *stubWallets) Debit(ctx context.Context, params wallet.EntryParams) (*models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[params.Reference] > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateReference, "reference already used")
	}
	w := s.walletByID(params.WalletID)
	if w == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if w.Balance.LessThan(params.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient funds")
	}
	w.Balance = w.Balance.Sub(params.Amount)
	s.refs[params.Reference]++
	return &models.WalletTransaction{Reference: params.Reference}, nil
}

func (s *stubWallets) Credit(ctx context.Context, params wallet.EntryParams) (*models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[params.Reference] > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateReference, "reference already used")
	}
	w := s.walletByID(params.WalletID)
	if w == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	w.Balance = w.Balance.Add(params.Amount)
	s.refs[params.Reference]++
	return &models.WalletTransaction{Reference: params.Reference}, nil
}

func (s *stubWallets) walletByID(id uuid.UUID) *models.Wallet {
	for _, w := range s.wallets {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (s *stubWallets) balance(userID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID].Balance
}

func (s *stubWallets) creditCount(reference string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[reference]
}

// stubWithdrawalRepo is an in-memory withdrawal store with conditional
// transitions.
type stubWithdrawalRepo struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]*models.WithdrawalRequest
	createErr error
}

func newStubWithdrawalRepo() *stubWithdrawalRepo {
	return &stubWithdrawalRepo{requests: make(map[uuid.UUID]*models.WithdrawalRequest)}
}

func (s *stubWithdrawalRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubWithdrawalRepo) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	request.CreatedAt = time.Now().UTC()
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

func (s *stubWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *request
	return &clone, nil
}

func (s *stubWithdrawalRepo) Transition(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, updates map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok || request.Status != from {
		return false, nil
	}
	request.Status = to
	for column, value := range updates {
		switch column {
		case "approved_by":
			adminID := value.(uuid.UUID)
			request.ApprovedBy = &adminID
		case "reject_reason":
			reason := value.(string)
			request.RejectReason = &reason
		case "failure_reason":
			reason := value.(string)
			request.FailureReason = &reason
		case "attempts":
			request.Attempts++
		case "gateway_txn_id":
			txnID := value.(string)
			request.GatewayTxnID = &txnID
		case "processed_at":
			at := value.(time.Time)
			request.ProcessedAt = &at
		}
	}
	return true, nil
}

func (s *stubWithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, request := range s.requests {
		if request.UserID == userID {
			out = append(out, *request)
		}
	}
	return out, nil
}

func (s *stubWithdrawalRepo) ListApprovedForSettlement(ctx context.Context, batchSize int) ([]models.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, request := range s.requests {
		if request.Status == enums.WithdrawalStatusApproved {
			out = append(out, *request)
		}
		if len(out) == batchSize {
			break
		}
	}
	return out, nil
}

func testWithdrawalsConfig() config.WithdrawalsConfig {
	return config.WithdrawalsConfig{
		MinimumAmount:     decimal.RequireFromString("100"),
		PlatformFeeRate:   decimal.RequireFromString("0.02"),
		MaxSettleAttempts: 3,
		SettleBatchSize:   20,
	}
}

type withdrawalFixture struct {
	svc     Service
	wallets *stubWallets
	repo    *stubWithdrawalRepo
}

func newWithdrawalFixture(t *testing.T) *withdrawalFixture {
	t.Helper()
	wallets := newStubWallets()
	repo := newStubWithdrawalRepo()

	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Wallets: wallets,
		Config:  testWithdrawalsConfig(),
		Logger:  logger.New(logger.Options{ServiceName: "withdrawals-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &withdrawalFixture{svc: svc, wallets: wallets, repo: repo}
}

func bankDetails() types.WithdrawalDetails {
	return types.WithdrawalDetails{
		BankName:      "Equity Bank",
		AccountNumber: "0123456789",
		AccountName:   "Jane Wanjiku",
	}
}

func requestParams(userID uuid.UUID, amount string) RequestParams {
	return RequestParams{
		UserID:  userID,
		Amount:  decimal.RequireFromString(amount),
		Method:  enums.WithdrawalMethodBankTransfer,
		Details: bankDetails(),
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "withdrawals-test", Output: io.Discard})

	_, err := NewService(ServiceParams{Wallets: newStubWallets(), Logger: logg})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Repo: newStubWithdrawalRepo(), Logger: logg})
	require.Error(t, err)
}

func TestRequestHoldsFundsAndComputesFee(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)

	assert.Equal(t, enums.WithdrawalStatusPending, request.Status)
	assert.True(t, request.PlatformFee.Equal(decimal.RequireFromString("10")))
	assert.True(t, request.NetAmount.Equal(decimal.RequireFromString("490")))
	assert.Equal(t, fmt.Sprintf("wd-%s", request.ID), request.Reference)

	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("500")))
}

func TestRequestRejectsAmountBelowMinimum(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	_, err := fx.svc.Request(context.Background(), requestParams(userID, "50"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("1000")))
}

func TestRequestFailsOnInsufficientBalance(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("400"))

	_, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("400")))
	assert.Empty(t, fx.repo.requests)
}

func TestRequestValidatesDestination(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	params := requestParams(userID, "500")
	params.Details = types.WithdrawalDetails{PhoneNumber: "+254712345678"}

	_, err := fx.svc.Request(context.Background(), params)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRequestCompensatesWhenCreateFails(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))
	fx.repo.createErr = fmt.Errorf("connection reset")

	_, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("1000")))
}

func TestApproveTransitionsPendingRequest(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	adminID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)

	approved, err := fx.svc.Approve(context.Background(), request.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, adminID, *approved.ApprovedBy)

	// Redelivered approval is a no-op.
	again, err := fx.svc.Approve(context.Background(), request.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, again.Status)
}

func TestRejectRestoresBalance(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)
	require.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("500")))

	rejected, err := fx.svc.Reject(context.Background(), request.ID, uuid.New(), "suspicious destination")
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "suspicious destination", *rejected.RejectReason)
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("1000")))

	// Redelivered rejection credits the reversal exactly once.
	_, err = fx.svc.Reject(context.Background(), request.ID, uuid.New(), "suspicious destination")
	require.NoError(t, err)
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("1000")))
	assert.Equal(t, 1, fx.wallets.creditCount(withdrawalReversalRef(request.ID)))
}

func TestRejectRequiresReason(t *testing.T) {
	fx := newWithdrawalFixture(t)
	_, err := fx.svc.Reject(context.Background(), uuid.New(), uuid.New(), "  ")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRejectCompletedRequestConflicts(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)

	fx.repo.mu.Lock()
	fx.repo.requests[request.ID].Status = enums.WithdrawalStatusCompleted
	fx.repo.mu.Unlock()

	_, err = fx.svc.Reject(context.Background(), request.ID, uuid.New(), "too late")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelByOwner(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)

	canceled, err := fx.svc.Cancel(context.Background(), request.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRejected, canceled.Status)
	require.NotNil(t, canceled.RejectReason)
	assert.Equal(t, "canceled by provider", *canceled.RejectReason)
	assert.True(t, fx.wallets.balance(userID).Equal(decimal.RequireFromString("1000")))
}

func TestCancelByStrangerForbidden(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), request.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestCancelApprovedRequestConflicts(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	request, err := fx.svc.Request(context.Background(), requestParams(userID, "500"))
	require.NoError(t, err)
	_, err = fx.svc.Approve(context.Background(), request.ID, uuid.New())
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), request.ID, userID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestGetUnknownWithdrawal(t *testing.T) {
	fx := newWithdrawalFixture(t)
	_, err := fx.svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListByUser(t *testing.T) {
	fx := newWithdrawalFixture(t)
	userID := uuid.New()
	fx.wallets.seed(userID, decimal.RequireFromString("1000"))

	_, err := fx.svc.Request(context.Background(), requestParams(userID, "200"))
	require.NoError(t, err)
	_, err = fx.svc.Request(context.Background(), requestParams(userID, "300"))
	require.NoError(t, err)

	requests, err := fx.svc.ListByUser(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.Len(t, requests, 2)
}
