package commission

import (
	"context"

	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
)

// Repository persists the versioned commission schedule.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, cfg *models.CommissionConfig) error
	GetLatest(ctx context.Context) (*models.CommissionConfig, error)
	GetByVersion(ctx context.Context, version int) (*models.CommissionConfig, error)
	ListVersions(ctx context.Context, limit int) ([]models.CommissionConfig, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission config repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, cfg *models.CommissionConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *repository) GetLatest(ctx context.Context) (*models.CommissionConfig, error) {
	var cfg models.CommissionConfig
	if err := r.db.WithContext(ctx).
		Order("version DESC").
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) GetByVersion(ctx context.Context, version int) (*models.CommissionConfig, error) {
	var cfg models.CommissionConfig
	if err := r.db.WithContext(ctx).
		Where("version = ?", version).
		First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) ListVersions(ctx context.Context, limit int) ([]models.CommissionConfig, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var cfgs []models.CommissionConfig
	if err := r.db.WithContext(ctx).
		Order("version DESC").
		Limit(limit).
		Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}
