package withdrawals

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidkaranja/fundilink-backend/internal/gateway"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

// scriptedPayoutGateway answers Payout from a queue of canned outcomes.
type scriptedPayoutGateway struct {
	results []payoutOutcome
	calls   int
}

type payoutOutcome struct {
	result *gateway.PayoutResult
	err    error
}

func (g *scriptedPayoutGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout rail only")
}

func (g *scriptedPayoutGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout rail only")
}

func (g *scriptedPayoutGateway) Payout(ctx context.Context, req gateway.PayoutRequest) (*gateway.PayoutResult, error) {
	idx := g.calls
	g.calls++
	if idx >= len(g.results) {
		idx = len(g.results) - 1
	}
	outcome := g.results[idx]
	return outcome.result, outcome.err
}

type settlerFixture struct {
	settler *Settler
	wallets *stubWallets
	repo    *stubWithdrawalRepo
	gw      *scriptedPayoutGateway
}

func newSettlerFixture(t *testing.T) *settlerFixture {
	t.Helper()
	wallets := newStubWallets()
	repo := newStubWithdrawalRepo()
	gw := &scriptedPayoutGateway{}

	registry := gateway.NewRegistry().
		RegisterPayout(enums.WithdrawalMethodBankTransfer, gw).
		RegisterPayout(enums.WithdrawalMethodMobileMoney, gw)

	settler, err := NewSettler(SettlerParams{
		Repo:     repo,
		Wallets:  wallets,
		Gateways: registry,
		Config:   testWithdrawalsConfig(),
		Gateway:  config.GatewayConfig{RetryAttempts: 1, RetryBackoff: time.Millisecond},
		Logger:   logger.New(logger.Options{ServiceName: "settler-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &settlerFixture{settler: settler, wallets: wallets, repo: repo, gw: gw}
}

// seedApproved plants an approved request whose funds already left the wallet.
func (fx *settlerFixture) seedApproved(t *testing.T, attempts int) *models.WithdrawalRequest {
	t.Helper()

	userID := uuid.New()
	w := fx.wallets.seed(userID, decimal.Zero)

	details, err := json.Marshal(bankDetails())
	require.NoError(t, err)

	id := uuid.New()
	request := &models.WithdrawalRequest{
		ID:          id,
		UserID:      userID,
		WalletID:    w.ID,
		Amount:      decimal.RequireFromString("500"),
		PlatformFee: decimal.RequireFromString("10"),
		NetAmount:   decimal.RequireFromString("490"),
		Currency:    enums.CurrencyKES,
		Method:      enums.WithdrawalMethodBankTransfer,
		Details:     details,
		Reference:   withdrawalRef(id),
		Status:      enums.WithdrawalStatusApproved,
		Attempts:    attempts,
	}
	require.NoError(t, fx.repo.Create(context.Background(), request))
	return request
}

func TestSettleBatchCompletesPayout(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 0)
	fx.gw.results = []payoutOutcome{{result: &gateway.PayoutResult{
		TransactionID: "bank-txn-1",
		Status:        enums.GatewayStatusSuccess,
	}}}

	attempted, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)

	settled, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusCompleted, settled.Status)
	assert.Equal(t, 1, settled.Attempts)
	require.NotNil(t, settled.GatewayTxnID)
	assert.Equal(t, "bank-txn-1", *settled.GatewayTxnID)
	assert.NotNil(t, settled.ProcessedAt)

	// The held funds stay out of the wallet.
	assert.True(t, fx.wallets.balance(request.UserID).IsZero())
}

func TestSettleDeclineFailsAndReverses(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 0)
	fx.gw.results = []payoutOutcome{{err: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "account closed")}}

	_, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)

	settled, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, settled.Status)
	assert.NotNil(t, settled.FailureReason)

	// Full amount, fee included, returns to the wallet.
	assert.True(t, fx.wallets.balance(request.UserID).Equal(decimal.RequireFromString("500")))
	assert.Equal(t, 1, fx.wallets.creditCount(withdrawalReversalRef(request.ID)))
}

func TestSettleRetryableFailureRequeues(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 0)
	fx.gw.results = []payoutOutcome{{err: pkgerrors.New(pkgerrors.CodeGatewayError, "rail timeout")}}

	_, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)

	settled, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, settled.Status)
	assert.Equal(t, 1, settled.Attempts)
	assert.True(t, fx.wallets.balance(request.UserID).IsZero())
}

func TestSettleExhaustedAttemptsFailTerminally(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 2) // MaxSettleAttempts is 3; this claim makes it 3.
	fx.gw.results = []payoutOutcome{{err: pkgerrors.New(pkgerrors.CodeGatewayError, "rail timeout")}}

	_, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)

	settled, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusFailed, settled.Status)
	assert.True(t, fx.wallets.balance(request.UserID).Equal(decimal.RequireFromString("500")))
}

func TestSettlePendingPayoutRequeuesWithTxnID(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 0)
	fx.gw.results = []payoutOutcome{{result: &gateway.PayoutResult{
		TransactionID: "bank-txn-2",
		Status:        enums.GatewayStatusPending,
	}}}

	_, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)

	settled, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, settled.Status)
	require.NotNil(t, settled.GatewayTxnID)
	assert.Equal(t, "bank-txn-2", *settled.GatewayTxnID)
	assert.True(t, fx.wallets.balance(request.UserID).IsZero())
}

func TestSettlePendingPayoutParksAfterAttemptBudget(t *testing.T) {
	fx := newSettlerFixture(t)
	request := fx.seedApproved(t, 2) // MaxSettleAttempts is 3; this claim makes it 3.
	fx.gw.results = []payoutOutcome{{result: &gateway.PayoutResult{
		TransactionID: "bank-txn-3",
		Status:        enums.GatewayStatusPending,
	}}}

	_, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)

	parked, err := fx.repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusProcessing, parked.Status)
	assert.Equal(t, 3, parked.Attempts)
	require.NotNil(t, parked.GatewayTxnID)
	assert.Equal(t, "bank-txn-3", *parked.GatewayTxnID)
	assert.True(t, fx.wallets.balance(request.UserID).IsZero())

	// A parked request leaves the approved queue, so later cycles never
	// resubmit it to the rail.
	attempted, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
	assert.Equal(t, 1, fx.gw.calls)
}

func TestSettleBatchSkipsWhenQueueEmpty(t *testing.T) {
	fx := newSettlerFixture(t)

	attempted, err := fx.settler.SettleBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, attempted)
	assert.Zero(t, fx.gw.calls)
}
