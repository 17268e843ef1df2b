package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	"github.com/davidkaranja/fundilink-backend/pkg/pagination"
)

// Repository manages persistence for wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error

	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error)
	GetLastCompletedTransaction(ctx context.Context, walletID uuid.UUID) (*models.WalletTransaction, error)
	ResolveTransaction(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, before, after decimal.Decimal) error
	ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error)
	ListCompletedCredits(ctx context.Context, userID uuid.UUID, purpose enums.TransactionPurpose, from, to time.Time) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) GetWallet(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("id = ?", walletID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetWalletForUpdate reads the wallet under a row lock so the
// read-validate-append-write sequence serializes across instances. The lock
// clause only exists on Postgres; the sqlite test dialect relies on the
// service-level wallet mutex instead.
func (r *repository) GetWalletForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var wallet models.Wallet
	if err := q.Where("id = ?", walletID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) UpdateWalletBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", balance).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) GetLastCompletedTransaction(ctx context.Context, walletID uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND status = ?", walletID, enums.TransactionStatusCompleted).
		Order("created_at DESC, id DESC").
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// ResolveTransaction finalizes a pending entry, rewriting its provisional
// balance snapshot with the values current at confirmation time.
func (r *repository) ResolveTransaction(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, before, after decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         status,
			"balance_before": before,
			"balance_after":  after,
		}).Error
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	q := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, nil, err
		}
		if cursor != nil {
			q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var txns []models.WalletTransaction
	if err := q.Find(&txns).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(txns) > limit {
		txns = txns[:limit]
		last := txns[len(txns)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return txns, next, nil
}

func (r *repository) ListCompletedCredits(ctx context.Context, userID uuid.UUID, purpose enums.TransactionPurpose, from, to time.Time) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND purpose = ? AND status = ?",
			userID, enums.TransactionTypeCredit, purpose, enums.TransactionStatusCompleted).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
