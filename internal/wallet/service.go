package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/pkg/db"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/pagination"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

// Service is the wallet ledger. Every balance mutation appends an immutable
// transaction and updates the wallet inside one serialized critical section.
type Service interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, params EntryParams) (*models.WalletTransaction, error)
	Debit(ctx context.Context, params EntryParams) (*models.WalletTransaction, error)
	ConfirmTransaction(ctx context.Context, reference string) (*models.WalletTransaction, error)
	FailTransaction(ctx context.Context, reference string) (*models.WalletTransaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
}

// EntryParams captures one ledger mutation.
type EntryParams struct {
	WalletID    uuid.UUID
	Amount      decimal.Decimal
	Description string
	// Reference is the globally unique idempotency key for the entry.
	Reference string
	Metadata  types.TransactionMetadata
	// Pending defers the balance effect until ConfirmTransaction. Only
	// credits may be created pending (bank transfers awaiting the rail).
	Pending bool
}

// TransactionPage is one cursor page of ledger entries.
type TransactionPage struct {
	Items  []models.WalletTransaction `json:"items"`
	Cursor string                     `json:"cursor,omitempty"`
}

// ServiceParams wires the ledger's dependencies.
type ServiceParams struct {
	Repo            Repository
	Tx              db.TxRunner
	Logger          *logger.Logger
	DefaultCurrency enums.Currency
}

type service struct {
	repo     Repository
	tx       db.TxRunner
	logg     *logger.Logger
	locks    *walletLocks
	currency enums.Currency
}

// NewService wires a wallet ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyKES
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", currency)
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		logg:     params.Logger,
		locks:    newWalletLocks(),
		currency: currency,
	}, nil
}

func (s *service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	wallet, err := s.repo.GetWalletByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch wallet")
	}

	created := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: s.currency,
		Status:   enums.WalletStatusActive,
	}
	if err := s.repo.CreateWallet(ctx, created); err != nil {
		// A concurrent first access won the unique index race; the
		// existing wallet is the one true record.
		if db.IsUniqueViolation(err, "") {
			existing, fetchErr := s.repo.GetWalletByUserID(ctx, userID)
			if fetchErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fetchErr, "fetch wallet after race")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return created, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.GetWalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch wallet")
	}
	return wallet, nil
}

func (s *service) Credit(ctx context.Context, params EntryParams) (*models.WalletTransaction, error) {
	return s.mutate(ctx, enums.TransactionTypeCredit, params)
}

func (s *service) Debit(ctx context.Context, params EntryParams) (*models.WalletTransaction, error) {
	if params.Pending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debits cannot be created pending")
	}
	return s.mutate(ctx, enums.TransactionTypeDebit, params)
}

// mutate runs the read-validate-append-write sequence for one wallet. The
// per-wallet mutex plus the row lock taken by GetWalletForUpdate linearize
// concurrent mutations on the same wallet.
func (s *service) mutate(ctx context.Context, entryType enums.TransactionType, params EntryParams) (*models.WalletTransaction, error) {
	if params.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": params.Amount.String()})
	}
	reference := strings.TrimSpace(params.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	metadata, err := params.Metadata.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction metadata")
	}

	unlock := s.locks.Lock(params.WalletID)
	defer unlock()

	var txn *models.WalletTransaction
	txErr := s.tx.WithTx(ctx, func(gtx *gorm.DB) error {
		repo := s.repo.WithTx(gtx)

		wallet, err := repo.GetWalletForUpdate(ctx, params.WalletID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		if wallet.Status != enums.WalletStatusActive {
			return pkgerrors.New(pkgerrors.CodeWalletFrozen, "wallet is not active")
		}
		if err := s.checkInvariant(ctx, repo, wallet); err != nil {
			return err
		}

		before := wallet.Balance
		var after decimal.Decimal
		switch entryType {
		case enums.TransactionTypeCredit:
			after = before.Add(params.Amount)
		case enums.TransactionTypeDebit:
			if params.Amount.GreaterThan(before) {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "debit exceeds wallet balance").
					WithDetails(map[string]any{
						"balance": before.String(),
						"amount":  params.Amount.String(),
					})
			}
			after = before.Sub(params.Amount)
		default:
			return pkgerrors.New(pkgerrors.CodeInternal, "unknown transaction type")
		}

		status := enums.TransactionStatusCompleted
		if params.Pending {
			status = enums.TransactionStatusPending
		}

		txn = &models.WalletTransaction{
			ID:            uuid.New(),
			WalletID:      wallet.ID,
			UserID:        wallet.UserID,
			Type:          entryType,
			Purpose:       params.Metadata.Purpose,
			Amount:        params.Amount,
			Currency:      wallet.Currency,
			Description:   params.Description,
			Reference:     reference,
			Status:        status,
			Metadata:      metadata,
			BalanceBefore: before,
			BalanceAfter:  after,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeDuplicateReference, "transaction reference already used").
					WithDetails(map[string]any{"reference": reference})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}

		// Pending entries carry a provisional balance snapshot; the wallet
		// balance only moves when the entry is confirmed.
		if status == enums.TransactionStatusCompleted {
			if err := repo.UpdateWalletBalance(ctx, wallet.ID, after); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"wallet_id": params.WalletID.String(),
		"reference": reference,
		"type":      txn.Type,
		"amount":    txn.Amount.String(),
		"status":    txn.Status,
	})
	s.logg.Info(logCtx, "ledger.entry")
	return txn, nil
}

func (s *service) ConfirmTransaction(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	return s.resolve(ctx, reference, enums.TransactionStatusCompleted)
}

func (s *service) FailTransaction(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	return s.resolve(ctx, reference, enums.TransactionStatusFailed)
}

// resolve transitions a pending entry to completed or failed. Re-delivered
// gateway confirmations are no-ops: an entry already in the target status is
// returned unchanged.
func (s *service) resolve(ctx context.Context, reference string, target enums.TransactionStatus) (*models.WalletTransaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	peek, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch transaction")
	}

	unlock := s.locks.Lock(peek.WalletID)
	defer unlock()

	var resolved *models.WalletTransaction
	txErr := s.tx.WithTx(ctx, func(gtx *gorm.DB) error {
		repo := s.repo.WithTx(gtx)

		txn, err := repo.GetTransactionByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch transaction")
		}
		if txn.Status == target {
			resolved = txn
			return nil
		}
		if txn.Status != enums.TransactionStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not pending").
				WithDetails(map[string]any{"status": txn.Status})
		}

		if target == enums.TransactionStatusFailed {
			if err := repo.ResolveTransaction(ctx, txn.ID, target, txn.BalanceBefore, txn.BalanceAfter); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail transaction")
			}
			txn.Status = target
			resolved = txn
			return nil
		}

		wallet, err := repo.GetWalletForUpdate(ctx, txn.WalletID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
		}
		if err := s.checkInvariant(ctx, repo, wallet); err != nil {
			return err
		}

		before := wallet.Balance
		var after decimal.Decimal
		switch txn.Type {
		case enums.TransactionTypeCredit:
			after = before.Add(txn.Amount)
		case enums.TransactionTypeDebit:
			if txn.Amount.GreaterThan(before) {
				return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "confirmation would overdraw wallet")
			}
			after = before.Sub(txn.Amount)
		}

		if err := repo.ResolveTransaction(ctx, txn.ID, target, before, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm transaction")
		}
		if err := repo.UpdateWalletBalance(ctx, wallet.ID, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
		}
		txn.Status = target
		txn.BalanceBefore = before
		txn.BalanceAfter = after
		resolved = txn
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"reference": reference,
		"status":    resolved.Status,
	})
	s.logg.Info(logCtx, "ledger.resolve")
	return resolved, nil
}

func (s *service) GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	txn, err := s.repo.GetTransactionByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch transaction")
	}
	return txn, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	wallet, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, next, err := s.repo.ListTransactions(ctx, wallet.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page := &TransactionPage{Items: items}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// checkInvariant verifies the stored balance matches the tail of the ledger.
// A mismatch is surfaced, never corrected: silent repair could mask fraud or
// a serialization bug.
func (s *service) checkInvariant(ctx context.Context, repo Repository, wallet *models.Wallet) error {
	last, err := repo.GetLastCompletedTransaction(ctx, wallet.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger tail")
	}
	if !last.BalanceAfter.Equal(wallet.Balance) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"wallet_id":     wallet.ID.String(),
			"balance":       wallet.Balance.String(),
			"ledger_tail":   last.BalanceAfter.String(),
			"tail_txn":      last.ID.String(),
			"tail_txn_ref":  last.Reference,
			"tail_txn_type": last.Type,
		})
		err := fmt.Errorf("wallet balance %s does not match ledger tail %s", wallet.Balance, last.BalanceAfter)
		s.logg.Error(logCtx, "ledger.invariant_violation", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "wallet ledger invariant violation")
	}
	return nil
}
