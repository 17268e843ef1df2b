package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// PaymentHold is the escrow record for one booking payment. Funds leave the
// payer's wallet when the hold is created and reach the provider (minus
// commission) only when the hold is released. Released and refunded holds
// never transition again.
type PaymentHold struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID      uuid.UUID        `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:idx_payment_holds_booking_id"`
	PayerUserID    uuid.UUID        `gorm:"column:payer_user_id;type:uuid;not null;index"`
	ProviderUserID uuid.UUID        `gorm:"column:provider_user_id;type:uuid;not null;index"`
	Amount         decimal.Decimal  `gorm:"column:amount;type:numeric(20,2);not null"`
	Currency       enums.Currency   `gorm:"column:currency;not null"`
	Status         enums.HoldStatus `gorm:"column:status;type:hold_status;not null;default:'held'"`

	CommissionRate          *decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4)"`
	CommissionAmount        *decimal.Decimal `gorm:"column:commission_amount;type:numeric(20,2)"`
	NetAmount               *decimal.Decimal `gorm:"column:net_amount;type:numeric(20,2)"`
	CommissionConfigVersion *int             `gorm:"column:commission_config_version"`

	RefundPayerAmount    *decimal.Decimal `gorm:"column:refund_payer_amount;type:numeric(20,2)"`
	RefundProviderAmount *decimal.Decimal `gorm:"column:refund_provider_amount;type:numeric(20,2)"`

	ReleasedAt *time.Time `gorm:"column:released_at"`
	RefundedAt *time.Time `gorm:"column:refunded_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
