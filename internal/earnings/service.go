package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// Period is the bucketing granularity for earnings reports.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func (p Period) IsValid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// Bucket is one aggregated interval of provider earnings.
type Bucket struct {
	Label      string          `json:"label"`
	Start      time.Time       `json:"start"`
	Gross      decimal.Decimal `json:"gross"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
	Count      int             `json:"count"`
}

// Report aggregates completed job payment credits over a range.
type Report struct {
	Period   Period          `json:"period"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	TotalNet decimal.Decimal `json:"total_net"`
	Buckets  []Bucket        `json:"buckets"`
}

// Line is one job payment with its commission math, for itemized views.
type Line struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	PaidAt     time.Time       `json:"paid_at"`
	Gross      decimal.Decimal `json:"gross"`
	Rate       decimal.Decimal `json:"rate"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

// Summary is the provider dashboard payload.
type Summary struct {
	Balance   decimal.Decimal            `json:"balance"`
	Currency  enums.Currency             `json:"currency"`
	Today     decimal.Decimal            `json:"today"`
	ThisWeek  decimal.Decimal            `json:"this_week"`
	ThisMonth decimal.Decimal            `json:"this_month"`
	Recent    []models.WalletTransaction `json:"recent"`
}

// Service is the read-only earnings reporting surface for providers.
type Service interface {
	Report(ctx context.Context, userID uuid.UUID, period Period, from, to time.Time) (*Report, error)
	Breakdown(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Line, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	Estimate(ctx context.Context, gross decimal.Decimal) (*commission.Quote, error)
}

// ServiceParams wires the earnings service dependencies.
type ServiceParams struct {
	Ledger     wallet.Repository
	Commission commission.Service
	Logger     *logger.Logger
}

type service struct {
	ledger     wallet.Repository
	commission commission.Service
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires an earnings service.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Commission == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		ledger:     params.Ledger,
		commission: params.Commission,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Report(ctx context.Context, userID uuid.UUID, period Period, from, to time.Time) (*Report, error) {
	if !period.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period must be day, week or month")
	}
	if !to.After(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "range end must be after range start")
	}

	credits, err := s.jobPayments(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	byStart := make(map[time.Time]*Bucket)
	total := decimal.Zero
	for i := range credits {
		txn := &credits[i]
		start := bucketStart(period, txn.CreatedAt.UTC())

		bucket, ok := byStart[start]
		if !ok {
			bucket = &Bucket{Label: bucketLabel(period, start), Start: start}
			byStart[start] = bucket
		}

		gross, commissionAmt := paymentSplit(txn)
		bucket.Gross = bucket.Gross.Add(gross)
		bucket.Commission = bucket.Commission.Add(commissionAmt)
		bucket.Net = bucket.Net.Add(txn.Amount)
		bucket.Count++
		total = total.Add(txn.Amount)
	}

	// Credits arrive ordered by created_at, so walking them again yields
	// the buckets in chronological order.
	buckets := make([]Bucket, 0, len(byStart))
	seen := make(map[time.Time]bool)
	for i := range credits {
		start := bucketStart(period, credits[i].CreatedAt.UTC())
		if seen[start] {
			continue
		}
		seen[start] = true
		buckets = append(buckets, *byStart[start])
	}

	return &Report{
		Period:   period,
		From:     from,
		To:       to,
		TotalNet: total,
		Buckets:  buckets,
	}, nil
}

func (s *service) Breakdown(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Line, error) {
	if !to.After(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "range end must be after range start")
	}

	credits, err := s.jobPayments(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(credits))
	for i := range credits {
		txn := &credits[i]
		line := Line{PaidAt: txn.CreatedAt, Net: txn.Amount}
		if meta, err := types.DecodeTransactionMetadata(txn.Metadata); err == nil && meta.JobPayment != nil {
			line.BookingID = meta.JobPayment.BookingID
			line.Gross = meta.JobPayment.GrossAmount
			line.Rate = meta.JobPayment.CommissionRate
			line.Commission = meta.JobPayment.Commission
		} else {
			logCtx := s.logg.WithFields(ctx, map[string]any{"transaction_id": txn.ID.String()})
			s.logg.Warn(logCtx, "earnings.metadata_unreadable")
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	walletRow, err := s.ledger.GetWalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch wallet")
	}

	now := s.now().UTC()
	monthStart := bucketStart(PeriodMonth, now)
	weekStart := bucketStart(PeriodWeek, now)
	dayStart := bucketStart(PeriodDay, now)

	// The current week can start in the previous month, so fetch from
	// whichever window opens first and bound each figure separately.
	fetchFrom := monthStart
	if weekStart.Before(fetchFrom) {
		fetchFrom = weekStart
	}
	credits, err := s.jobPayments(ctx, userID, fetchFrom, now.Add(time.Second))
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Balance:  walletRow.Balance,
		Currency: walletRow.Currency,
	}
	for i := range credits {
		txn := &credits[i]
		created := txn.CreatedAt.UTC()
		if !created.Before(monthStart) {
			summary.ThisMonth = summary.ThisMonth.Add(txn.Amount)
		}
		if !created.Before(weekStart) {
			summary.ThisWeek = summary.ThisWeek.Add(txn.Amount)
		}
		if !created.Before(dayStart) {
			summary.Today = summary.Today.Add(txn.Amount)
		}
	}

	recent, _, err := s.ledger.ListTransactions(ctx, walletRow.ID, pagination.Params{Limit: 10})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recent transactions")
	}
	summary.Recent = recent
	return summary, nil
}

func (s *service) Estimate(ctx context.Context, gross decimal.Decimal) (*commission.Quote, error) {
	return s.commission.Calculate(ctx, gross)
}

func (s *service) jobPayments(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.WalletTransaction, error) {
	credits, err := s.ledger.ListCompletedCredits(ctx, userID, enums.PurposeJobPayment, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list job payments")
	}
	return credits, nil
}

// paymentSplit recovers gross and commission from the entry metadata, falling
// back to the net amount when old entries carry no readable metadata.
func paymentSplit(txn *models.WalletTransaction) (gross, commissionAmt decimal.Decimal) {
	meta, err := types.DecodeTransactionMetadata(txn.Metadata)
	if err != nil || meta.JobPayment == nil {
		return txn.Amount, decimal.Zero
	}
	return meta.JobPayment.GrossAmount, meta.JobPayment.Commission
}

func bucketStart(period Period, t time.Time) time.Time {
	switch period {
	case PeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Walk back to Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func bucketLabel(period Period, start time.Time) string {
	switch period {
	case PeriodWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case PeriodMonth:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}
