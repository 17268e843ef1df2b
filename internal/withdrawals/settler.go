package withdrawals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/davidkaranja/fundilink-backend/internal/gateway"
	"github.com/davidkaranja/fundilink-backend/internal/wallet"
	"github.com/davidkaranja/fundilink-backend/pkg/config"
	"github.com/davidkaranja/fundilink-backend/pkg/db/models"
	"github.com/davidkaranja/fundilink-backend/pkg/enums"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
	"github.com/davidkaranja/fundilink-backend/pkg/metrics"
	"github.com/davidkaranja/fundilink-backend/pkg/types"
)

const settleJobName = "withdrawal-settlement"

// Settler drains approved withdrawal requests through the payout gateways.
// Each request settles at most once: the approved -> processing transition is
// conditional, and payouts reuse the request's reference so the rail dedupes
// resubmissions.
type Settler struct {
	repo     Repository
	wallets  wallet.Service
	gateways *gateway.Registry
	cfg      config.WithdrawalsConfig
	retryCfg config.GatewayConfig
	metrics  *metrics.CronJobMetrics
	logg     *logger.Logger
}

// SettlerParams wires the settlement worker dependencies.
type SettlerParams struct {
	Repo     Repository
	Wallets  wallet.Service
	Gateways *gateway.Registry
	Config   config.WithdrawalsConfig
	Gateway  config.GatewayConfig
	Metrics  *metrics.CronJobMetrics
	Logger   *logger.Logger
}

// NewSettler wires a settlement worker.
func NewSettler(params SettlerParams) (*Settler, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Settler{
		repo:     params.Repo,
		wallets:  params.Wallets,
		gateways: params.Gateways,
		cfg:      params.Config,
		retryCfg: params.Gateway,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Run polls for approved requests until the context is canceled.
func (s *Settler) Run(ctx context.Context) error {
	interval := s.cfg.SettlePollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logg.Info(ctx, "withdrawal settler started")
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "withdrawal settler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SettleBatch(ctx); err != nil {
				s.logg.Error(ctx, "withdrawal settle batch failed", err)
			}
		}
	}
}

// SettleBatch settles one batch of approved requests and reports how many
// were attempted.
func (s *Settler) SettleBatch(ctx context.Context) (int, error) {
	started := time.Now()

	requests, err := s.repo.ListApprovedForSettlement(ctx, s.cfg.SettleBatchSize)
	if err != nil {
		s.metrics.IncFailure(settleJobName)
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved withdrawals")
	}

	attempted := 0
	for _, request := range requests {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		attempted++
		if err := s.settleOne(ctx, request); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"withdrawal_id": request.ID.String()})
			s.logg.Error(logCtx, "withdrawal.settle_failed", err)
		}
	}

	s.metrics.ObserveDuration(settleJobName, time.Since(started))
	s.metrics.IncSuccess(settleJobName)
	return attempted, nil
}

func (s *Settler) settleOne(ctx context.Context, request models.WithdrawalRequest) error {
	moved, err := s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusApproved, enums.WithdrawalStatusProcessing,
		map[string]any{"attempts": gorm.Expr("attempts + 1")})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim withdrawal for settlement")
	}
	if !moved {
		// Another worker claimed it.
		return nil
	}
	request.Attempts++

	var details types.WithdrawalDetails
	if err := json.Unmarshal(request.Details, &details); err != nil {
		return s.failTerminally(ctx, request, "payout details unreadable")
	}

	gw, err := s.gateways.ForPayout(request.Method)
	if err != nil {
		return s.failTerminally(ctx, request, "no gateway for withdrawal method")
	}

	result, err := s.payout(ctx, gw, request, details)
	if err != nil {
		if pkgerrors.Retryable(err) && request.Attempts < s.cfg.MaxSettleAttempts {
			return s.requeue(ctx, request)
		}
		return s.failTerminally(ctx, request, err.Error())
	}

	switch result.Status {
	case enums.GatewayStatusFailed:
		return s.failTerminally(ctx, request, "payout declined by gateway")
	case enums.GatewayStatusPending:
		// The rail has the payout; resubmitting the same reference next
		// cycle returns its current state instead of paying twice. Past
		// the attempt budget the request parks in processing for
		// reconciliation instead of being resubmitted forever.
		if request.Attempts >= s.cfg.MaxSettleAttempts {
			return s.parkPending(ctx, request, result.TransactionID)
		}
		return s.requeueWithTxn(ctx, request, result.TransactionID)
	}

	now := time.Now().UTC()
	moved, err = s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusCompleted,
		map[string]any{"gateway_txn_id": result.TransactionID, "processed_at": now})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete withdrawal")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal changed state during settlement")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id":  request.ID.String(),
		"gateway_txn_id": result.TransactionID,
		"net":            request.NetAmount.String(),
	})
	s.logg.Info(logCtx, "withdrawal.settled")
	return nil
}

// payout submits the net amount to the rail with backoff on retryable
// failures. Declines surface immediately.
func (s *Settler) payout(ctx context.Context, gw gateway.Gateway, request models.WithdrawalRequest, details types.WithdrawalDetails) (*gateway.PayoutResult, error) {
	backoffBase := s.retryCfg.RetryBackoff
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	attempts := s.retryCfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(backoffBase))

	var result *gateway.PayoutResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var payoutErr error
		result, payoutErr = gw.Payout(ctx, gateway.PayoutRequest{
			Reference: request.Reference,
			Amount:    request.NetAmount,
			Currency:  request.Currency,
			Method:    request.Method,
			Details:   details,
		})
		if payoutErr != nil && pkgerrors.Retryable(payoutErr) {
			return retry.RetryableError(payoutErr)
		}
		return payoutErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// requeue puts a claimed request back in the approved queue for the next cycle.
func (s *Settler) requeue(ctx context.Context, request models.WithdrawalRequest) error {
	_, err := s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusApproved, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue withdrawal")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id": request.ID.String(),
		"attempts":      request.Attempts,
	})
	s.logg.Warn(logCtx, "withdrawal.requeued")
	return nil
}

func (s *Settler) requeueWithTxn(ctx context.Context, request models.WithdrawalRequest, gatewayTxnID string) error {
	_, err := s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusApproved,
		map[string]any{"gateway_txn_id": gatewayTxnID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue withdrawal")
	}
	return nil
}

// parkPending records the rail's transaction id and leaves the request in
// processing, out of the approved queue, until reconciliation resolves it.
func (s *Settler) parkPending(ctx context.Context, request models.WithdrawalRequest, gatewayTxnID string) error {
	_, err := s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusProcessing,
		map[string]any{"gateway_txn_id": gatewayTxnID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "park pending withdrawal")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id":  request.ID.String(),
		"gateway_txn_id": gatewayTxnID,
		"attempts":       request.Attempts,
	})
	s.logg.Warn(logCtx, "withdrawal.parked_pending")
	return nil
}

// failTerminally marks the request failed and returns the held funds.
func (s *Settler) failTerminally(ctx context.Context, request models.WithdrawalRequest, reason string) error {
	moved, err := s.repo.Transition(ctx, request.ID, enums.WithdrawalStatusProcessing, enums.WithdrawalStatusFailed,
		map[string]any{"failure_reason": reason})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail withdrawal")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal changed state during settlement")
	}

	reverseWithdrawal(ctx, s.wallets, s.logg, &request, reason)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id": request.ID.String(),
		"reason":        reason,
	})
	s.logg.Warn(logCtx, "withdrawal.failed")
	return nil
}
