package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// WithdrawalRequest tracks a provider payout from request through settlement.
// Wallet funds are debited at creation; reversal credits restore them when the
// request is rejected, canceled, or fails terminally.
type WithdrawalRequest struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	WalletID      uuid.UUID              `gorm:"column:wallet_id;type:uuid;not null;index"`
	Amount        decimal.Decimal        `gorm:"column:amount;type:numeric(20,2);not null"`
	PlatformFee   decimal.Decimal        `gorm:"column:platform_fee;type:numeric(20,2);not null"`
	NetAmount     decimal.Decimal        `gorm:"column:net_amount;type:numeric(20,2);not null"`
	Currency      enums.Currency         `gorm:"column:currency;not null"`
	Method        enums.WithdrawalMethod `gorm:"column:method;type:withdrawal_method;not null"`
	Details       json.RawMessage        `gorm:"column:details;type:jsonb;not null"`
	Reference     string                 `gorm:"column:reference;not null;uniqueIndex:idx_withdrawal_requests_reference"`
	Status        enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	RejectReason  *string                `gorm:"column:reject_reason"`
	FailureReason *string                `gorm:"column:failure_reason"`
	Attempts      int                    `gorm:"column:attempts;not null;default:0"`
	GatewayTxnID  *string                `gorm:"column:gateway_txn_id"`
	ApprovedBy    *uuid.UUID             `gorm:"column:approved_by;type:uuid"`
	ProcessedAt   *time.Time             `gorm:"column:processed_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
