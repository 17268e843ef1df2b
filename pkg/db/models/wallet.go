package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// Wallet holds the current balance for one user. The balance always equals the
// balance_after of the most recent completed transaction on the wallet.
type Wallet struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_wallets_user_id"`
	Balance   decimal.Decimal    `gorm:"column:balance;type:numeric(20,2);not null;default:0"`
	Currency  enums.Currency     `gorm:"column:currency;not null;default:'KES'"`
	Status    enums.WalletStatus `gorm:"column:status;type:wallet_status;not null;default:'active'"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
