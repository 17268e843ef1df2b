package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

func setupHoldTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payment_holds (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL UNIQUE,
  payer_user_id TEXT NOT NULL,
  provider_user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'held',
  commission_rate NUMERIC,
  commission_amount NUMERIC,
  net_amount NUMERIC,
  commission_config_version INTEGER,
  refund_payer_amount NUMERIC,
  refund_provider_amount NUMERIC,
  released_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func newTestHold(t *testing.T, conn *gorm.DB, repo Repository) *models.PaymentHold {
	t.Helper()

	hold := &models.PaymentHold{
		ID:             uuid.New(),
		BookingID:      uuid.New(),
		PayerUserID:    uuid.New(),
		ProviderUserID: uuid.New(),
		Amount:         decimal.RequireFromString("1000"),
		Currency:       enums.CurrencyKES,
		Status:         enums.HoldStatusHeld,
	}
	require.NoError(t, repo.CreateHold(context.Background(), hold))
	return hold
}

func TestHoldRoundTrip(t *testing.T) {
	conn := setupHoldTestDB(t)
	repo := NewRepository(conn)

	hold := newTestHold(t, conn, repo)

	fetched, err := repo.GetHoldByBookingID(context.Background(), hold.BookingID)
	require.NoError(t, err)
	assert.Equal(t, hold.ID, fetched.ID)
	assert.Equal(t, enums.HoldStatusHeld, fetched.Status)
	assert.True(t, fetched.Amount.Equal(decimal.RequireFromString("1000")))
	assert.Nil(t, fetched.NetAmount)
}

func TestHoldBookingUniqueness(t *testing.T) {
	conn := setupHoldTestDB(t)
	repo := NewRepository(conn)

	hold := newTestHold(t, conn, repo)

	dup := &models.PaymentHold{
		ID:             uuid.New(),
		BookingID:      hold.BookingID,
		PayerUserID:    hold.PayerUserID,
		ProviderUserID: hold.ProviderUserID,
		Amount:         hold.Amount,
		Currency:       enums.CurrencyKES,
		Status:         enums.HoldStatusHeld,
	}
	err := repo.CreateHold(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestMarkReleasedTransitionsOnce(t *testing.T) {
	conn := setupHoldTestDB(t)
	repo := NewRepository(conn)

	hold := newTestHold(t, conn, repo)

	rate := decimal.RequireFromString("0.15")
	fee := decimal.RequireFromString("150")
	net := decimal.RequireFromString("850")
	at := time.Now().UTC()

	marked, err := repo.MarkReleased(context.Background(), hold.ID, rate, fee, net, 3, at)
	require.NoError(t, err)
	assert.True(t, marked)

	fetched, err := repo.GetHoldByBookingID(context.Background(), hold.BookingID)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, fetched.Status)
	require.NotNil(t, fetched.NetAmount)
	assert.True(t, fetched.NetAmount.Equal(net))
	require.NotNil(t, fetched.CommissionAmount)
	assert.True(t, fetched.CommissionAmount.Equal(fee))
	require.NotNil(t, fetched.CommissionConfigVersion)
	assert.Equal(t, 3, *fetched.CommissionConfigVersion)
	assert.NotNil(t, fetched.ReleasedAt)

	// Resolved holds never transition again.
	marked, err = repo.MarkReleased(context.Background(), hold.ID, rate, fee, net, 3, at)
	require.NoError(t, err)
	assert.False(t, marked)

	marked, err = repo.MarkRefunded(context.Background(), hold.ID, hold.Amount, decimal.Zero, at)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestMarkRefundedStoresSplit(t *testing.T) {
	conn := setupHoldTestDB(t)
	repo := NewRepository(conn)

	hold := newTestHold(t, conn, repo)

	marked, err := repo.MarkRefunded(context.Background(), hold.ID,
		decimal.RequireFromString("600"), decimal.RequireFromString("400"), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, marked)

	fetched, err := repo.GetHoldByBookingID(context.Background(), hold.BookingID)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusRefunded, fetched.Status)
	require.NotNil(t, fetched.RefundPayerAmount)
	assert.True(t, fetched.RefundPayerAmount.Equal(decimal.RequireFromString("600")))
	require.NotNil(t, fetched.RefundProviderAmount)
	assert.True(t, fetched.RefundProviderAmount.Equal(decimal.RequireFromString("400")))
	assert.NotNil(t, fetched.RefundedAt)
}

func TestListHoldsByUserMatchesBothSides(t *testing.T) {
	conn := setupHoldTestDB(t)
	repo := NewRepository(conn)

	hold := newTestHold(t, conn, repo)
	newTestHold(t, conn, repo)

	asPayer, err := repo.ListHoldsByUser(context.Background(), hold.PayerUserID, 10)
	require.NoError(t, err)
	require.Len(t, asPayer, 1)
	assert.Equal(t, hold.BookingID, asPayer[0].BookingID)

	asProvider, err := repo.ListHoldsByUser(context.Background(), hold.ProviderUserID, 10)
	require.NoError(t, err)
	require.Len(t, asProvider, 1)

	none, err := repo.ListHoldsByUser(context.Background(), uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
