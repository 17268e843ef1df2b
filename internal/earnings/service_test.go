package earnings

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/internal/commission"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/pagination"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

type stubLedger struct {
	wallet.Repository

	wallet  *models.Wallet
	credits []models.WalletTransaction
	recent  []models.WalletTransaction
}

func (s *stubLedger) GetWalletByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if s.wallet == nil || s.wallet.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.wallet, nil
}

func (s *stubLedger) ListTransactions(_ context.Context, _ uuid.UUID, _ pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error) {
	return s.recent, nil, nil
}

func (s *stubLedger) ListCompletedCredits(_ context.Context, userID uuid.UUID, purpose enums.TransactionPurpose, from, to time.Time) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for _, txn := range s.credits {
		if txn.UserID != userID || txn.Purpose != purpose {
			continue
		}
		if txn.CreatedAt.Before(from) || !txn.CreatedAt.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

type stubCommission struct {
	commission.Service

	quote *commission.Quote
	err   error
}

func (s *stubCommission) Calculate(_ context.Context, gross decimal.Decimal) (*commission.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	q := *s.quote
	q.Gross = gross
	return &q, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T, ledger *stubLedger, comm commission.Service) Service {
	t.Helper()

	if comm == nil {
		comm = &stubCommission{quote: &commission.Quote{Rate: d("0.15")}}
	}
	svc, err := NewService(ServiceParams{
		Ledger:     ledger,
		Commission: comm,
		Logger:     logger.New(logger.Options{ServiceName: "earnings-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func jobPayment(userID uuid.UUID, net, gross, commissionAmt string, at time.Time) models.WalletTransaction {
	meta := types.TransactionMetadata{
		Purpose: enums.PurposeJobPayment,
		JobPayment: &types.JobPaymentMetadata{
			BookingID:      uuid.New(),
			GrossAmount:    d(gross),
			CommissionRate: d("0.20"),
			Commission:     d(commissionAmt),
			ConfigVersion:  1,
		},
	}
	raw, _ := meta.Encode()
	return models.WalletTransaction{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		UserID:    userID,
		Type:      enums.TransactionTypeCredit,
		Purpose:   enums.PurposeJobPayment,
		Amount:    d(net),
		Currency:  enums.CurrencyKES,
		Status:    enums.TransactionStatusCompleted,
		Metadata:  raw,
		CreatedAt: at,
	}
}

func TestReportBucketsByDay(t *testing.T) {
	userID := uuid.New()
	day1 := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 11, 14, 0, 0, 0, time.UTC)

	ledger := &stubLedger{credits: []models.WalletTransaction{
		jobPayment(userID, "400", "500", "100", day1),
		jobPayment(userID, "850", "1000", "150", day1.Add(2*time.Hour)),
		jobPayment(userID, "1700", "2000", "300", day2),
	}}
	svc := newTestService(t, ledger, nil)

	report, err := svc.Report(context.Background(), userID, PeriodDay,
		time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.True(t, report.TotalNet.Equal(d("2950")))
	require.Len(t, report.Buckets, 2)

	first := report.Buckets[0]
	assert.Equal(t, "2026-08-10", first.Label)
	assert.Equal(t, 2, first.Count)
	assert.True(t, first.Net.Equal(d("1250")))
	assert.True(t, first.Gross.Equal(d("1500")))
	assert.True(t, first.Commission.Equal(d("250")))

	second := report.Buckets[1]
	assert.Equal(t, "2026-08-11", second.Label)
	assert.True(t, second.Net.Equal(d("1700")))
}

func TestReportWeekAndMonthBuckets(t *testing.T) {
	userID := uuid.New()
	// Wed Aug 12 and Tue Aug 18 2026 fall in ISO weeks 33 and 34.
	wk1 := time.Date(2026, 8, 12, 10, 0, 0, 0, time.UTC)
	wk2 := time.Date(2026, 8, 18, 10, 0, 0, 0, time.UTC)
	sep := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

	ledger := &stubLedger{credits: []models.WalletTransaction{
		jobPayment(userID, "100", "125", "25", wk1),
		jobPayment(userID, "200", "250", "50", wk2),
		jobPayment(userID, "300", "375", "75", sep),
	}}
	svc := newTestService(t, ledger, nil)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	weekly, err := svc.Report(context.Background(), userID, PeriodWeek, from, to)
	require.NoError(t, err)
	require.Len(t, weekly.Buckets, 3)
	assert.Equal(t, "2026-W33", weekly.Buckets[0].Label)
	assert.Equal(t, "2026-W34", weekly.Buckets[1].Label)

	monthly, err := svc.Report(context.Background(), userID, PeriodMonth, from, to)
	require.NoError(t, err)
	require.Len(t, monthly.Buckets, 2)
	assert.Equal(t, "2026-08", monthly.Buckets[0].Label)
	assert.True(t, monthly.Buckets[0].Net.Equal(d("300")))
	assert.Equal(t, "2026-09", monthly.Buckets[1].Label)
	assert.True(t, monthly.Buckets[1].Net.Equal(d("300")))
}

func TestReportValidation(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, nil)
	now := time.Now()

	_, err := svc.Report(context.Background(), uuid.New(), Period("year"), now.Add(-time.Hour), now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Report(context.Background(), uuid.New(), PeriodDay, now, now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestBreakdownDecodesCommissionMath(t *testing.T) {
	userID := uuid.New()
	at := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	ledger := &stubLedger{credits: []models.WalletTransaction{
		jobPayment(userID, "400", "500", "100", at),
	}}
	svc := newTestService(t, ledger, nil)

	lines, err := svc.Breakdown(context.Background(), userID, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.True(t, lines[0].Gross.Equal(d("500")))
	assert.True(t, lines[0].Commission.Equal(d("100")))
	assert.True(t, lines[0].Net.Equal(d("400")))
	assert.True(t, lines[0].Rate.Equal(d("0.20")))
	assert.NotEqual(t, uuid.Nil, lines[0].BookingID)
}

func TestSummaryAggregates(t *testing.T) {
	userID := uuid.New()
	now := time.Now().UTC()

	walletRow := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  d("1234.56"),
		Currency: enums.CurrencyKES,
		Status:   enums.WalletStatusActive,
	}
	recent := []models.WalletTransaction{{ID: uuid.New()}}
	ledger := &stubLedger{
		wallet:  walletRow,
		recent:  recent,
		credits: []models.WalletTransaction{jobPayment(userID, "400", "500", "100", now)},
	}
	svc := newTestService(t, ledger, nil)

	summary, err := svc.Summary(context.Background(), userID)
	require.NoError(t, err)

	assert.True(t, summary.Balance.Equal(d("1234.56")))
	assert.Equal(t, enums.CurrencyKES, summary.Currency)
	assert.True(t, summary.Today.Equal(d("400")))
	assert.True(t, summary.ThisWeek.Equal(d("400")))
	assert.True(t, summary.ThisMonth.Equal(d("400")))
	assert.Len(t, summary.Recent, 1)
}

func TestSummaryWeekSpanningMonthBoundary(t *testing.T) {
	userID := uuid.New()
	// Wednesday July 1st: the week started Monday June 29th, in the
	// previous month.
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)

	walletRow := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  d("500"),
		Currency: enums.CurrencyKES,
		Status:   enums.WalletStatusActive,
	}
	ledger := &stubLedger{
		wallet: walletRow,
		credits: []models.WalletTransaction{
			jobPayment(userID, "100", "125", "25", time.Date(2026, time.June, 29, 9, 0, 0, 0, time.UTC)),
			jobPayment(userID, "50", "62.50", "12.50", time.Date(2026, time.July, 1, 8, 0, 0, 0, time.UTC)),
			jobPayment(userID, "70", "87.50", "17.50", time.Date(2026, time.June, 10, 8, 0, 0, 0, time.UTC)),
		},
	}
	svc := newTestService(t, ledger, nil)
	svc.(*service).now = func() time.Time { return now }

	summary, err := svc.Summary(context.Background(), userID)
	require.NoError(t, err)

	// The June 29th credit counts toward the week but not the month.
	assert.True(t, summary.ThisWeek.Equal(d("150")), "week %s", summary.ThisWeek)
	assert.True(t, summary.ThisMonth.Equal(d("50")), "month %s", summary.ThisMonth)
	assert.True(t, summary.Today.Equal(d("50")), "today %s", summary.Today)
}

func TestSummaryUnknownWallet(t *testing.T) {
	svc := newTestService(t, &stubLedger{}, nil)

	_, err := svc.Summary(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestEstimateDelegatesToCommission(t *testing.T) {
	comm := &stubCommission{quote: &commission.Quote{
		Rate:          d("0.20"),
		Commission:    d("100"),
		Net:           d("400"),
		ConfigVersion: 3,
	}}
	svc := newTestService(t, &stubLedger{}, comm)

	quote, err := svc.Estimate(context.Background(), d("500"))
	require.NoError(t, err)
	assert.True(t, quote.Gross.Equal(d("500")))
	assert.Equal(t, 3, quote.ConfigVersion)
}
