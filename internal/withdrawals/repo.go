package withdrawals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
)

// Repository persists withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, request *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	// Transition moves the request from one status to another with extra
	// column updates. Returns false when the request was not in the
	// expected status, so exactly one writer wins each transition.
	Transition(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, updates map[string]any) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WithdrawalRequest, error)
	// ListApprovedForSettlement returns the oldest approved requests, up
	// to batchSize, for the settlement worker.
	ListApprovedForSettlement(ctx context.Context, batchSize int) ([]models.WithdrawalRequest, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a withdrawal request repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.WithdrawalStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var requests []models.WithdrawalRequest
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListApprovedForSettlement(ctx context.Context, batchSize int) ([]models.WithdrawalRequest, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	var requests []models.WithdrawalRequest
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.WithdrawalStatusApproved).
		Order("created_at ASC").
		Limit(batchSize).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
