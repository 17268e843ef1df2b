package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. Only the status column may
// change after creation (pending entries resolve on gateway confirmation);
// rows are never deleted.
type WalletTransaction struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID      uuid.UUID                `gorm:"column:wallet_id;type:uuid;not null;index"`
	UserID        uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Type          enums.TransactionType    `gorm:"column:type;type:transaction_type;not null"`
	Purpose       enums.TransactionPurpose `gorm:"column:purpose;type:transaction_purpose;not null"`
	Amount        decimal.Decimal          `gorm:"column:amount;type:numeric(20,2);not null"`
	Currency      enums.Currency           `gorm:"column:currency;not null"`
	Description   string                   `gorm:"column:description;not null"`
	Reference     string                   `gorm:"column:reference;not null;uniqueIndex:idx_wallet_transactions_reference"`
	Status        enums.TransactionStatus  `gorm:"column:status;type:transaction_status;not null;default:'completed'"`
	Metadata      json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	BalanceBefore decimal.Decimal          `gorm:"column:balance_before;type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal          `gorm:"column:balance_after;type:numeric(20,2);not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
