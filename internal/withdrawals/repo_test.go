package withdrawals

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

func setupWithdrawalTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One database per test so the settlement queue assertions see only
	// their own rows.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS withdrawal_requests (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  wallet_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  platform_fee NUMERIC NOT NULL,
  net_amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  method TEXT NOT NULL,
  details TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  reject_reason TEXT,
  failure_reason TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  gateway_txn_id TEXT,
  approved_by TEXT,
  processed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func newStoredRequest(t *testing.T, repo Repository, status enums.WithdrawalStatus, createdAt time.Time) *models.WithdrawalRequest {
	t.Helper()

	details, err := json.Marshal(types.WithdrawalDetails{PhoneNumber: "+254712345678"})
	require.NoError(t, err)

	id := uuid.New()
	request := &models.WithdrawalRequest{
		ID:          id,
		UserID:      uuid.New(),
		WalletID:    uuid.New(),
		Amount:      decimal.RequireFromString("500"),
		PlatformFee: decimal.RequireFromString("10"),
		NetAmount:   decimal.RequireFromString("490"),
		Currency:    enums.CurrencyKES,
		Method:      enums.WithdrawalMethodMobileMoney,
		Details:     details,
		Reference:   withdrawalRef(id),
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), request))
	return request
}

func TestWithdrawalRoundTrip(t *testing.T) {
	conn := setupWithdrawalTestDB(t)
	repo := NewRepository(conn)

	request := newStoredRequest(t, repo, enums.WithdrawalStatusPending, time.Now().UTC())

	fetched, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.Reference, fetched.Reference)
	assert.Equal(t, enums.WithdrawalStatusPending, fetched.Status)
	assert.True(t, fetched.NetAmount.Equal(decimal.RequireFromString("490")))
}

func TestTransitionIsConditional(t *testing.T) {
	conn := setupWithdrawalTestDB(t)
	repo := NewRepository(conn)

	request := newStoredRequest(t, repo, enums.WithdrawalStatusPending, time.Now().UTC())
	adminID := uuid.New()

	moved, err := repo.Transition(context.Background(), request.ID,
		enums.WithdrawalStatusPending, enums.WithdrawalStatusApproved,
		map[string]any{"approved_by": adminID})
	require.NoError(t, err)
	assert.True(t, moved)

	fetched, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusApproved, fetched.Status)
	require.NotNil(t, fetched.ApprovedBy)
	assert.Equal(t, adminID, *fetched.ApprovedBy)

	// A second writer expecting the old status loses.
	moved, err = repo.Transition(context.Background(), request.ID,
		enums.WithdrawalStatusPending, enums.WithdrawalStatusRejected,
		map[string]any{"reject_reason": "late"})
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestTransitionIncrementsAttempts(t *testing.T) {
	conn := setupWithdrawalTestDB(t)
	repo := NewRepository(conn)

	request := newStoredRequest(t, repo, enums.WithdrawalStatusApproved, time.Now().UTC())

	moved, err := repo.Transition(context.Background(), request.ID,
		enums.WithdrawalStatusApproved, enums.WithdrawalStatusProcessing,
		map[string]any{"attempts": gorm.Expr("attempts + 1")})
	require.NoError(t, err)
	assert.True(t, moved)

	fetched, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.Attempts)
}

func TestListApprovedForSettlementOldestFirst(t *testing.T) {
	conn := setupWithdrawalTestDB(t)
	repo := NewRepository(conn)

	base := time.Now().UTC().Add(-time.Hour)
	older := newStoredRequest(t, repo, enums.WithdrawalStatusApproved, base)
	newer := newStoredRequest(t, repo, enums.WithdrawalStatusApproved, base.Add(10*time.Minute))
	newStoredRequest(t, repo, enums.WithdrawalStatusPending, base.Add(20*time.Minute))

	approved, err := repo.ListApprovedForSettlement(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, approved, 2)
	assert.Equal(t, older.ID, approved[0].ID)
	assert.Equal(t, newer.ID, approved[1].ID)
}

func TestListByUserFiltersOwner(t *testing.T) {
	conn := setupWithdrawalTestDB(t)
	repo := NewRepository(conn)

	request := newStoredRequest(t, repo, enums.WithdrawalStatusPending, time.Now().UTC())
	newStoredRequest(t, repo, enums.WithdrawalStatusPending, time.Now().UTC())

	mine, err := repo.ListByUser(context.Background(), request.UserID, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, request.ID, mine[0].ID)
}
