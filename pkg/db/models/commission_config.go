package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionConfig is an immutable version of the platform's commission
// schedule. Updates insert a new row with version+1; historical transactions
// keep the rate applied at their time in their metadata.
type CommissionConfig struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Version     int             `gorm:"column:version;not null;uniqueIndex:idx_commission_configs_version"`
	DefaultRate decimal.Decimal `gorm:"column:default_rate;type:numeric(5,4);not null"`
	Tiers       json.RawMessage `gorm:"column:tiers;type:jsonb;not null"`
	CreatedBy   *uuid.UUID      `gorm:"column:created_by;type:uuid"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
