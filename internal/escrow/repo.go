package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// Repository persists payment holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateHold(ctx context.Context, hold *models.PaymentHold) error
	GetHoldByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error)
	// MarkReleased transitions held -> released with the commission math.
	// Returns false when the hold was already resolved by another writer.
	MarkReleased(ctx context.Context, holdID uuid.UUID, rate, commission, net decimal.Decimal, configVersion int, at time.Time) (bool, error)
	// MarkRefunded transitions held -> refunded with the refund split.
	MarkRefunded(ctx context.Context, holdID uuid.UUID, payerAmount, providerAmount decimal.Decimal, at time.Time) (bool, error)
	ListHoldsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentHold, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment hold repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateHold(ctx context.Context, hold *models.PaymentHold) error {
	return r.db.WithContext(ctx).Create(hold).Error
}

func (r *repository) GetHoldByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.PaymentHold, error) {
	var hold models.PaymentHold
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		First(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) MarkReleased(ctx context.Context, holdID uuid.UUID, rate, commission, net decimal.Decimal, configVersion int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentHold{}).
		Where("id = ? AND status = ?", holdID, enums.HoldStatusHeld).
		Updates(map[string]any{
			"status":                    enums.HoldStatusReleased,
			"commission_rate":           rate,
			"commission_amount":         commission,
			"net_amount":                net,
			"commission_config_version": configVersion,
			"released_at":               at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkRefunded(ctx context.Context, holdID uuid.UUID, payerAmount, providerAmount decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentHold{}).
		Where("id = ? AND status = ?", holdID, enums.HoldStatusHeld).
		Updates(map[string]any{
			"status":                 enums.HoldStatusRefunded,
			"refund_payer_amount":    payerAmount,
			"refund_provider_amount": providerAmount,
			"refunded_at":            at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListHoldsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.PaymentHold, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var holds []models.PaymentHold
	if err := r.db.WithContext(ctx).
		Where("payer_user_id = ? OR provider_user_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&holds).Error; err != nil {
		return nil, err
	}
	return holds, nil
}
